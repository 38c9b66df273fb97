// Package session provides a convenience wrapper bundling an Instance, a
// signed-in user's default signing key, and their personal database of
// preferences and key mappings, so applications don't have to juggle raw
// Instance/Database/Transaction plumbing for common interactive flows.
package session

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/arcuru/eidetica"
	"github.com/arcuru/eidetica/crypto"
	"github.com/arcuru/eidetica/store"
	esync "github.com/arcuru/eidetica/sync"
	"github.com/arcuru/eidetica/transaction"
)

// DatabasePreferences records a user's personal notes about one database in
// their list: a display name override and whether it should be favorited.
type DatabasePreferences struct {
	DatabaseID eidetica.ID `json:"database_id"`
	Name       string      `json:"name,omitempty"`
	Favorite   bool        `json:"favorite,omitempty"`
}

// keyRecord is one named signing identity held in the session's private
// key vault table, alongside the backend-held raw private key bytes.
type keyRecord struct {
	PubKey string `json:"pubkey"`
	Name   string `json:"name,omitempty"`
}

// Session is an authenticated user's working context: an Instance, the
// pubkey of their default signing key, and a private database tracking which
// other databases they use and how their keys map to each.
type Session struct {
	instance   *eidetica.Instance
	engine     *esync.Engine
	prefsDB    *eidetica.Database
	defaultKey string

	mu sync.Mutex
}

// New opens (or creates, if prefsRoot is empty) the session's private
// preferences database, signed by signingKey, which also becomes the
// session's default key.
func New(ctx context.Context, instance *eidetica.Instance, signingKey ed25519.PrivateKey, prefsRoot eidetica.ID) (*Session, error) {
	pub := crypto.PubKeyFromPrivate(signingKey)
	var db *eidetica.Database
	var err error
	if prefsRoot.IsEmpty() {
		db, err = instance.CreateDatabase(ctx, signingKey, eidetica.NewSettings())
	} else {
		db, err = instance.OpenDatabase(ctx, prefsRoot, signingKey)
	}
	if err != nil {
		return nil, fmt.Errorf("session: open preferences database: %w", err)
	}
	return &Session{instance: instance, prefsDB: db, defaultKey: pub}, nil
}

// SetSyncEngine attaches the sync engine used by RequestDatabaseAccess.
func (s *Session) SetSyncEngine(e *esync.Engine) { s.engine = e }

// Instance returns the underlying Instance.
func (s *Session) Instance() *eidetica.Instance { return s.instance }

// DefaultKey returns the canonical pubkey string of this session's default
// signing identity.
func (s *Session) DefaultKey() string { return s.defaultKey }

// CreateDatabase creates a new database signed by signingKey and records it
// in the preferences list.
func (s *Session) CreateDatabase(ctx context.Context, signingKey ed25519.PrivateKey, settings *eidetica.Settings, name string) (*eidetica.Database, error) {
	db, err := s.instance.CreateDatabase(ctx, signingKey, settings)
	if err != nil {
		return nil, err
	}
	if err := s.AddDatabase(ctx, DatabasePreferences{DatabaseID: db.RootID, Name: name}); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenDatabase opens an existing database with the given signing key.
func (s *Session) OpenDatabase(ctx context.Context, root eidetica.ID, signingKey ed25519.PrivateKey) (*eidetica.Database, error) {
	return s.instance.OpenDatabase(ctx, root, signingKey)
}

// FindDatabases returns every database this instance knows about whose
// current settings name matches name.
func (s *Session) FindDatabases(ctx context.Context, name string) ([]*eidetica.Database, error) {
	roots, err := s.instance.AllDatabases(ctx)
	if err != nil {
		return nil, err
	}
	var out []*eidetica.Database
	for _, root := range roots {
		db, err := s.instance.OpenDatabase(ctx, root, nil)
		if err != nil {
			continue
		}
		settings, err := db.CurrentSettings(ctx)
		if err != nil {
			continue
		}
		if settings.Name == name {
			out = append(out, db)
		}
	}
	return out, nil
}

// AddDatabase upserts prefs into the session's personal database list,
// keyed by DatabaseID.
func (s *Session) AddDatabase(ctx context.Context, prefs DatabasePreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := transaction.New(ctx, s.prefsDB, s.instance)
	if err != nil {
		return err
	}
	table := store.NewTable[DatabasePreferences](tx, "prefs")
	if err := table.Set(ctx, string(prefs.DatabaseID), prefs); err != nil {
		return err
	}
	_, err = tx.Commit(ctx)
	return err
}

// DatabasePrefs returns the stored preferences for databaseID, if any.
func (s *Session) DatabasePrefs(ctx context.Context, databaseID eidetica.ID) (DatabasePreferences, error) {
	tx, err := transaction.New(ctx, s.prefsDB, s.instance)
	if err != nil {
		return DatabasePreferences{}, err
	}
	table := store.NewTable[DatabasePreferences](tx, "prefs")
	return table.Get(ctx, string(databaseID))
}

// ListDatabasePrefs returns every database in the session's personal list.
func (s *Session) ListDatabasePrefs(ctx context.Context) ([]DatabasePreferences, error) {
	tx, err := transaction.New(ctx, s.prefsDB, s.instance)
	if err != nil {
		return nil, err
	}
	table := store.NewTable[DatabasePreferences](tx, "prefs")
	matches, err := table.Search(ctx, func(DatabasePreferences) bool { return true })
	if err != nil {
		return nil, err
	}
	out := make([]DatabasePreferences, 0, len(matches))
	for _, p := range matches {
		out = append(out, p)
	}
	return out, nil
}

// RemoveDatabase drops databaseID from the session's personal list.
func (s *Session) RemoveDatabase(ctx context.Context, databaseID eidetica.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := transaction.New(ctx, s.prefsDB, s.instance)
	if err != nil {
		return err
	}
	table := store.NewTable[DatabasePreferences](tx, "prefs")
	if err := table.Delete(ctx, string(databaseID)); err != nil {
		return err
	}
	_, err = tx.Commit(ctx)
	return err
}

// AddPrivateKey generates a new signing key, stores it in the instance's
// backend-held vault, and records it under name in this session's key
// table.
func (s *Session) AddPrivateKey(ctx context.Context, name string) (string, error) {
	pub, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		return "", err
	}
	pubStr := crypto.FormatPubKey(pub)
	if err := s.instance.Backend().StorePrivateKey(ctx, pubStr, priv); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := transaction.New(ctx, s.prefsDB, s.instance)
	if err != nil {
		return "", err
	}
	keys := store.NewTable[keyRecord](tx, "keys")
	if err := keys.Set(ctx, pubStr, keyRecord{PubKey: pubStr, Name: name}); err != nil {
		return "", err
	}
	if _, err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return pubStr, nil
}

// ListKeys returns the pubkeys of every key this session has recorded.
func (s *Session) ListKeys(ctx context.Context) ([]string, error) {
	tx, err := transaction.New(ctx, s.prefsDB, s.instance)
	if err != nil {
		return nil, err
	}
	keys := store.NewTable[keyRecord](tx, "keys")
	matches, err := keys.Search(ctx, func(keyRecord) bool { return true })
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for pk := range matches {
		out = append(out, pk)
	}
	return out, nil
}

// GetSigningKey retrieves the raw private key bytes for pubkey from the
// backend vault.
func (s *Session) GetSigningKey(ctx context.Context, pubkey string) (ed25519.PrivateKey, error) {
	raw, err := s.instance.Backend().GetPrivateKey(ctx, pubkey)
	if err != nil {
		return nil, err
	}
	return ed25519.PrivateKey(raw), nil
}

// RequestDatabaseAccess asks peerID to grant this session's default key
// access to root, via the attached sync engine's bootstrap flow.
func (s *Session) RequestDatabaseAccess(ctx context.Context, peerID string, root eidetica.ID, requested eidetica.Permission) (esync.AccessResponse, error) {
	if s.engine == nil {
		return esync.AccessResponse{}, fmt.Errorf("session: no sync engine attached")
	}
	return s.engine.RequestBootstrapAccess(ctx, peerID, root, requested)
}
