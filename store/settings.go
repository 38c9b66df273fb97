package store

import (
	"context"

	"github.com/arcuru/eidetica"
	"github.com/arcuru/eidetica/crdt"
)

// SettingsStore is a DocStore specialized to the reserved _settings
// subtree. Writes here are only accepted at commit time with Admin
// capability (enforced by the transaction/auth packages); this type just
// shapes the staging API.
type SettingsStore struct {
	doc *DocStore
}

// NewSettingsStore returns a SettingsStore bound to tx's _settings subtree.
func NewSettingsStore(tx Transaction) *SettingsStore {
	return &SettingsStore{doc: NewDocStore(tx, eidetica.SettingsName)}
}

func (s *SettingsStore) TypeID() string        { return "settings" }
func (s *SettingsStore) DefaultConfig() string { return "" }

// GetName returns the database's configured display name.
func (s *SettingsStore) GetName(ctx context.Context) (string, error) {
	v, ok, err := s.doc.Get(ctx, "name")
	if err != nil || !ok {
		return "", err
	}
	return v.AsText()
}

// SetName stages a display name update.
func (s *SettingsStore) SetName(ctx context.Context, name string) error {
	return s.doc.Set(ctx, "name", crdt.NewText(name))
}

// GetAuthSettings returns the merged Settings view (auth keys and
// delegations) as of this transaction's staged state.
func (s *SettingsStore) GetAuthSettings(ctx context.Context) (*eidetica.Settings, error) {
	state, err := s.doc.tx.FullState(ctx, eidetica.SettingsName)
	if err != nil {
		return nil, err
	}
	return eidetica.SettingsFromDoc(state)
}

// AddKey stages a new (or updated) auth key entry, keyed by its pubkey.
func (s *SettingsStore) AddKey(ctx context.Context, key eidetica.AuthKey) error {
	settings, err := s.stagedOrEmpty(ctx)
	if err != nil {
		return err
	}
	settings.Auth[key.PubKey] = key
	return s.writeBack(ctx, settings)
}

// RevokeKey marks pubkey's entry as Revoked without removing it, preserving
// history for past-signature verification.
func (s *SettingsStore) RevokeKey(ctx context.Context, pubkey string) error {
	settings, err := s.stagedOrEmpty(ctx)
	if err != nil {
		return err
	}
	ak, ok := settings.Auth[pubkey]
	if !ok {
		return eidetica.ErrKeyNotFound
	}
	ak.Status = eidetica.Revoked
	settings.Auth[pubkey] = ak
	return s.writeBack(ctx, settings)
}

// AddDelegatedTree stages a delegation entry keyed by name, granting
// another database's keys bounded rights in this one.
func (s *SettingsStore) AddDelegatedTree(ctx context.Context, name string, ref eidetica.DelegatedTreeRef) error {
	settings, err := s.stagedOrEmpty(ctx)
	if err != nil {
		return err
	}
	settings.DelegatedTrees[name] = ref
	return s.writeBack(ctx, settings)
}

func (s *SettingsStore) stagedOrEmpty(ctx context.Context) (*eidetica.Settings, error) {
	settings, err := s.GetAuthSettings(ctx)
	if err != nil {
		return nil, err
	}
	if settings.Auth == nil {
		settings.Auth = make(map[string]eidetica.AuthKey)
	}
	if settings.DelegatedTrees == nil {
		settings.DelegatedTrees = make(map[string]eidetica.DelegatedTreeRef)
	}
	return settings, nil
}

func (s *SettingsStore) writeBack(ctx context.Context, settings *eidetica.Settings) error {
	delta, err := settings.ToDoc()
	if err != nil {
		return err
	}
	data, err := delta.Marshal()
	if err != nil {
		return err
	}
	return s.doc.tx.UpdateSubtree(ctx, eidetica.SettingsName, data)
}
