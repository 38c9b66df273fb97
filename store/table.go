package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/arcuru/eidetica"
	"github.com/arcuru/eidetica/crdt"
)

// Table is a generic record store atop DocStore: each record serializes to
// a crdt.Value (via JSON, carried as text) under a UUID primary key.
type Table[T any] struct {
	doc *DocStore
}

// NewTable returns a Table bound to name within tx.
func NewTable[T any](tx Transaction, name string) *Table[T] {
	return &Table[T]{doc: NewDocStore(tx, name)}
}

func (t *Table[T]) TypeID() string        { return "table" }
func (t *Table[T]) DefaultConfig() string { return "" }

func encodeRecord[T any](v T) (crdt.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return crdt.Value{}, fmt.Errorf("store: encode record: %w", err)
	}
	return crdt.NewText(string(b)), nil
}

func decodeRecord[T any](v crdt.Value) (T, error) {
	var out T
	text, err := v.AsText()
	if err != nil {
		return out, fmt.Errorf("store: decode record: %w", err)
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return out, fmt.Errorf("store: decode record: %w", err)
	}
	return out, nil
}

// Insert stages a new record, returning its assigned primary key.
func (t *Table[T]) Insert(ctx context.Context, record T) (string, error) {
	pk := uuid.NewString()
	if err := t.Set(ctx, pk, record); err != nil {
		return "", err
	}
	return pk, nil
}

// Set stages record under an existing (or new) primary key.
func (t *Table[T]) Set(ctx context.Context, pk string, record T) error {
	v, err := encodeRecord(record)
	if err != nil {
		return err
	}
	return t.doc.Set(ctx, pk, v)
}

// Get returns the record stored at pk in the merged view.
func (t *Table[T]) Get(ctx context.Context, pk string) (T, error) {
	var zero T
	v, ok, err := t.doc.Get(ctx, pk)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, fmt.Errorf("store: record %q: %w", pk, eidetica.ErrNotFound)
	}
	return decodeRecord[T](v)
}

// Delete stages a tombstone for pk.
func (t *Table[T]) Delete(ctx context.Context, pk string) error {
	return t.doc.Delete(ctx, pk)
}

// Search returns every record in the merged view for which pred holds,
// paired with their primary keys.
func (t *Table[T]) Search(ctx context.Context, pred func(T) bool) (map[string]T, error) {
	all, err := t.doc.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T)
	for pk, v := range all {
		rec, err := decodeRecord[T](v)
		if err != nil {
			continue
		}
		if pred(rec) {
			out[pk] = rec
		}
	}
	return out, nil
}
