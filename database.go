package eidetica

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sort"

	"github.com/arcuru/eidetica/crypto"
)

// DatabaseKey binds a Database handle to the identity it signs entries as:
// a locally held private key and the SigKey it should embed in commits made
// through this handle.
type DatabaseKey struct {
	SigningKey ed25519.PrivateKey
	Identity   SigKey
}

// Database is a handle onto one database's DAG: its root ID, the backend it
// is stored in, and (optionally) the signing identity writes through this
// handle use. A Database holds no mutable DAG state itself — every read
// goes through Backend, every write goes through a Transaction.
type Database struct {
	RootID  ID
	Key     *DatabaseKey
	backend Backend
}

// Create starts a brand-new database: it builds and stores an unsigned or
// self-signed root entry carrying the "_root" marker subtree and, if
// settings is non-nil, an initial "_settings" subtree establishing the
// first admin key. signingKey may be nil for an unauthenticated database.
func Create(ctx context.Context, backend Backend, signingKey ed25519.PrivateKey, settings *Settings) (*Database, error) {
	b := NewBuilder("")
	b.StageSubtree(RootName, "", nil)

	var key *DatabaseKey
	if signingKey != nil {
		pub := crypto.FormatPubKey(signingKey.Public().(ed25519.PublicKey))
		key = &DatabaseKey{SigningKey: signingKey, Identity: DirectKey(pub)}
		b.SetSigKey(DirectKey(GlobalKeyHint))
		b.SetSigPubKey(pub)
		if settings == nil {
			settings = NewSettings()
		}
		if !settings.HasAuth() {
			settings.Auth[pub] = AuthKey{PubKey: pub, Permissions: AdminPermission(0), Status: Active, Name: "root"}
		}
	}

	if settings != nil {
		doc, err := settings.ToDoc()
		if err != nil {
			return nil, err
		}
		data, err := doc.Marshal()
		if err != nil {
			return nil, err
		}
		b.StageSubtree(SettingsName, data, nil)
	}

	entry, err := b.Build()
	if err != nil {
		return nil, err
	}
	if key != nil {
		if err := SignEntry(entry, key.SigningKey); err != nil {
			return nil, err
		}
	}
	if err := backend.Put(ctx, Verified, entry); err != nil {
		return nil, err
	}

	return &Database{RootID: entry.ID(), Key: key, backend: backend}, nil
}

// Open attaches a handle to an existing database, authenticating future
// writes through this handle with signingKey. When the database has any
// auth configured, signingKey's pubkey must match a recorded, Active
// AuthKey exactly, or Open fails with a typed auth error instead of
// silently binding a key that every future commit will reject.
func Open(ctx context.Context, backend Backend, root ID, signingKey ed25519.PrivateKey) (*Database, error) {
	if _, err := backend.Get(ctx, root); err != nil {
		return nil, fmt.Errorf("eidetica: open database %s: %w", root, err)
	}

	var key *DatabaseKey
	if signingKey != nil {
		pub := crypto.FormatPubKey(signingKey.Public().(ed25519.PublicKey))

		settings, err := loadSettings(ctx, backend, root)
		if err != nil {
			return nil, fmt.Errorf("eidetica: open database %s: %w", root, err)
		}
		if settings.HasAuth() {
			if err := validateKeyAgainstAuth(settings, pub); err != nil {
				return nil, fmt.Errorf("eidetica: open database %s: %w", root, err)
			}
		}
		key = &DatabaseKey{SigningKey: signingKey, Identity: DirectKey(pub)}
	}
	return &Database{RootID: root, Key: key, backend: backend}, nil
}

// validateKeyAgainstAuth checks pub against settings.Auth per the pubkey
// identity variant: a recorded, Active key whose PubKey equals pub exactly.
func validateKeyAgainstAuth(settings *Settings, pub string) error {
	ak, ok := settings.Auth[pub]
	if !ok || ak.PubKey != pub {
		return fmt.Errorf("%w: no recorded key matches this signing key's pubkey", ErrKeyNotFound)
	}
	if !ak.IsActive() {
		return fmt.Errorf("%w: key %s is revoked", ErrInsufficientPermissions, pub)
	}
	return nil
}

// OpenUnauthenticated attaches a read-only handle with no signing identity;
// any transaction committed through it must target an unauthenticated
// database or it will fail auth validation.
func OpenUnauthenticated(ctx context.Context, backend Backend, root ID) (*Database, error) {
	return Open(ctx, backend, root, nil)
}

// Backend returns the storage substrate this database lives on.
func (db *Database) Backend() Backend { return db.backend }

// Tips returns the database's current overall tip IDs.
func (db *Database) Tips(ctx context.Context) ([]ID, error) {
	return db.backend.GetTips(ctx, db.RootID)
}

// StoreTips returns the current tip IDs of a single named subtree.
func (db *Database) StoreTips(ctx context.Context, store string) ([]ID, error) {
	return db.backend.GetStoreTips(ctx, db.RootID, store)
}

// CurrentSettings reads and parses the database's live _settings state.
func (db *Database) CurrentSettings(ctx context.Context) (*Settings, error) {
	return loadSettings(ctx, db.backend, db.RootID)
}

// loadSettings reads and parses root's live _settings state directly
// against backend, for use before a Database handle exists (e.g. Open's
// key validation).
func loadSettings(ctx context.Context, backend Backend, root ID) (*Settings, error) {
	tips, err := backend.GetStoreTips(ctx, root, SettingsName)
	if err != nil {
		return nil, err
	}
	if len(tips) == 0 {
		return NewSettings(), nil
	}
	state, err := backend.ComputeState(ctx, root, SettingsName, tips)
	if err != nil {
		return nil, err
	}
	return SettingsFromDoc(state)
}

// SigKeyCandidate pairs a SigKey that pubkey could sign with and the
// Permission it would grant if used, for presenting identity choices to
// user-level tooling before calling Open.
type SigKeyCandidate struct {
	Key        SigKey
	Permission Permission
}

// FindSigKeys enumerates every identity pubkey can sign as in this
// database: direct keys recorded under pubkey in this database's own
// _settings.auth, plus every delegation path (recursively, up to
// MaxDelegationDepth) through another database whose own auth grants
// pubkey a registered identity, clamped by each hop's permission bounds.
// Results are sorted by permission, strongest first.
func (db *Database) FindSigKeys(ctx context.Context, pubkey string) ([]SigKeyCandidate, error) {
	settings, err := db.CurrentSettings(ctx)
	if err != nil {
		return nil, err
	}
	out, err := findSigKeysIn(ctx, db.backend, settings, pubkey, nil, 0)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[j].Permission.Less(out[i].Permission) })
	return out, nil
}

// findSigKeysIn recurses through settings' own auth and delegated trees,
// building up the DelegationHop chain (prefix) a resolved identity would
// need to present, and clamping each candidate's permission by every
// delegation bound traversed so far as recursion unwinds.
func findSigKeysIn(ctx context.Context, backend Backend, settings *Settings, pubkey string, prefix []DelegationHop, depth int) ([]SigKeyCandidate, error) {
	if depth > MaxDelegationDepth {
		return nil, nil
	}

	var out []SigKeyCandidate
	for pk, ak := range settings.Auth {
		if pk != pubkey || !ak.IsActive() {
			continue
		}
		hint := pk
		if ak.Name != "" {
			hint = ak.Name
		}
		key := DirectKey(hint)
		if len(prefix) > 0 {
			key = DelegatedKey(prefix, hint)
		}
		out = append(out, SigKeyCandidate{Key: key, Permission: ak.Permissions})
	}

	for _, ref := range settings.DelegatedTrees {
		hopSettings, err := loadSettings(ctx, backend, ref.Tree.Root)
		if err != nil {
			continue
		}
		hopPrefix := append(append([]DelegationHop(nil), prefix...), DelegationHop{Tree: ref.Tree.Root, Tips: ref.Tree.Tips})
		inner, err := findSigKeysIn(ctx, backend, hopSettings, pubkey, hopPrefix, depth+1)
		if err != nil {
			continue
		}
		for _, c := range inner {
			out = append(out, SigKeyCandidate{
				Key:        c.Key,
				Permission: c.Permission.Clamp(ref.Bounds.Max, ref.Bounds.Min),
			})
		}
	}
	return out, nil
}
