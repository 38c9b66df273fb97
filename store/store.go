// Package store provides the typed, subtree-scoped views Transactions stage
// writes through: DocStore for free-form documents, Table for record
// collections, and SettingsStore for the reserved _settings subtree.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/arcuru/eidetica/crdt"
)

// ErrKeyNotFound is returned by the typed GetAs/GetPathAs accessors when the
// requested key or path has no live value in the merged view.
var ErrKeyNotFound = errors.New("store: key not found")

// Transaction is the subset of transaction.Transaction every Store needs.
// Stores depend on this interface rather than the concrete type so the
// transaction package never needs to import store (which needs it back for
// SettingsStore's auth helpers).
type Transaction interface {
	UpdateSubtree(ctx context.Context, name, data string) error
	LocalData(ctx context.Context, name string) (string, error)
	FullState(ctx context.Context, name string) (*crdt.Doc, error)
}

// DocStore is a thin, key-based view over a single subtree's Doc, merging
// this transaction's staged delta over the historical state on every read.
type DocStore struct {
	tx   Transaction
	name string
}

// NewDocStore returns a Store bound to name within tx.
func NewDocStore(tx Transaction, name string) *DocStore {
	return &DocStore{tx: tx, name: name}
}

func (s *DocStore) TypeID() string        { return "docstore" }
func (s *DocStore) DefaultConfig() string { return "" }

func (s *DocStore) localDelta(ctx context.Context) (*crdt.Doc, error) {
	data, err := s.tx.LocalData(ctx, s.name)
	if err != nil {
		return nil, err
	}
	return crdt.UnmarshalDoc(data)
}

func (s *DocStore) stage(ctx context.Context, delta *crdt.Doc) error {
	data, err := delta.Marshal()
	if err != nil {
		return err
	}
	return s.tx.UpdateSubtree(ctx, s.name, data)
}

// Get returns a key from the merged (historical + staged) view.
func (s *DocStore) Get(ctx context.Context, key string) (crdt.Value, bool, error) {
	state, err := s.tx.FullState(ctx, s.name)
	if err != nil {
		return crdt.Value{}, false, err
	}
	v, ok := state.Get(key)
	return v, ok, nil
}

// Set stages a key assignment.
func (s *DocStore) Set(ctx context.Context, key string, v crdt.Value) error {
	delta, err := s.localDelta(ctx)
	if err != nil {
		return err
	}
	delta.Set(key, v)
	return s.stage(ctx, delta)
}

// Delete stages a tombstone for key.
func (s *DocStore) Delete(ctx context.Context, key string) error {
	delta, err := s.localDelta(ctx)
	if err != nil {
		return err
	}
	delta.Delete(key)
	return s.stage(ctx, delta)
}

// ContainsKey reports whether key is live in the merged view.
func (s *DocStore) ContainsKey(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// GetAll returns every live top-level key in the merged view.
func (s *DocStore) GetAll(ctx context.Context) (map[string]crdt.Value, error) {
	state, err := s.tx.FullState(ctx, s.name)
	if err != nil {
		return nil, err
	}
	return state.GetAll(), nil
}

// GetPath resolves a dot-separated path in the merged view.
func (s *DocStore) GetPath(ctx context.Context, path string) (crdt.Value, bool, error) {
	state, err := s.tx.FullState(ctx, s.name)
	if err != nil {
		return crdt.Value{}, false, err
	}
	v, ok := state.GetPath(path)
	return v, ok, nil
}

// SetPath stages a dot-separated path assignment.
func (s *DocStore) SetPath(ctx context.Context, path string, v crdt.Value) error {
	delta, err := s.localDelta(ctx)
	if err != nil {
		return err
	}
	if err := delta.SetPath(path, v); err != nil {
		return err
	}
	return s.stage(ctx, delta)
}

// ContainsPath reports whether path resolves to a live value in the merged
// view.
func (s *DocStore) ContainsPath(ctx context.Context, path string) (bool, error) {
	_, ok, err := s.GetPath(ctx, path)
	return ok, err
}

// ModifyPath applies fn to the merged value at path and stages the result.
func (s *DocStore) ModifyPath(ctx context.Context, path string, fn func(crdt.Value) crdt.Value) error {
	state, err := s.tx.FullState(ctx, s.name)
	if err != nil {
		return err
	}
	cur, _ := state.GetPath(path)
	return s.SetPath(ctx, path, fn(cur))
}

// GetOrInsertPath returns the merged value at path, staging def if absent.
func (s *DocStore) GetOrInsertPath(ctx context.Context, path string, def crdt.Value) (crdt.Value, error) {
	v, ok, err := s.GetPath(ctx, path)
	if err != nil {
		return crdt.Value{}, err
	}
	if ok {
		return v, nil
	}
	if err := s.SetPath(ctx, path, def); err != nil {
		return crdt.Value{}, err
	}
	return def, nil
}

// ModifyOrInsertPath applies fn to the merged value at path and stages the
// result, or stages def directly if path has no live value yet.
func (s *DocStore) ModifyOrInsertPath(ctx context.Context, path string, def crdt.Value, fn func(crdt.Value) crdt.Value) error {
	v, ok, err := s.GetPath(ctx, path)
	if err != nil {
		return err
	}
	if !ok {
		return s.SetPath(ctx, path, def)
	}
	return s.SetPath(ctx, path, fn(v))
}

// GetAs resolves key in s's merged view and converts it to T, the typed
// counterpart to Get for callers that already know the Go type they want.
func GetAs[T any](ctx context.Context, s *DocStore, key string) (T, error) {
	var zero T
	v, ok, err := s.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return crdt.TryInto[T](v)
}

// GetPathAs resolves path in s's merged view and converts it to T.
func GetPathAs[T any](ctx context.Context, s *DocStore, path string) (T, error) {
	var zero T
	v, ok, err := s.GetPath(ctx, path)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrKeyNotFound, path)
	}
	return crdt.TryInto[T](v)
}
