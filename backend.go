package eidetica

import (
	"context"

	"github.com/arcuru/eidetica/crdt"
)

// PutStatus tells a Backend whether an incoming entry comes from a local
// commit that already validated it, so the backend can skip its own check.
type PutStatus int

const (
	// Unverified entries arrive from an untrusted source (sync); the backend
	// rechecks their content ID before acceptance.
	Unverified PutStatus = iota
	// Verified entries come from a local commit that already validated them.
	Verified
)

// Backend is the storage substrate a Database and Instance are built on: an
// append-only, content-addressed entry store plus the bookkeeping needed to
// find tips, walk the DAG, and cache computed CRDT state. Implementations
// must be safe for concurrent use.
type Backend interface {
	// Get retrieves a single entry by ID.
	Get(ctx context.Context, id ID) (*Entry, error)

	// Put stores an entry. Unverified entries have their content ID
	// rechecked against their canonical bytes before being accepted; Put
	// checks neither signature nor auth. Verified entries are stored as-is.
	// Put is idempotent: storing an already-present ID is a no-op.
	Put(ctx context.Context, status PutStatus, entry *Entry) error

	// GetTips returns the current tip IDs (entries with no children) of the
	// whole database rooted at root.
	GetTips(ctx context.Context, root ID) ([]ID, error)

	// GetStoreTips returns the current tip IDs within a single named
	// subtree of the database rooted at root.
	GetStoreTips(ctx context.Context, root ID, store string) ([]ID, error)

	// GetStoreTipsUpToEntries returns the tips of store as of the
	// historical point defined by upTo: the subtree's state when upTo was
	// the set of overall database tips.
	GetStoreTipsUpToEntries(ctx context.Context, root ID, store string, upTo []ID) ([]ID, error)

	// GetSortedStoreParents returns ids' direct subtree-local parents,
	// deterministically ordered by (height, id).
	GetSortedStoreParents(ctx context.Context, root ID, store string, ids []ID) ([]ID, error)

	// FindLCA returns the lowest common ancestor set of ids within store.
	// When ids has a single element, that element is its own LCA.
	FindLCA(ctx context.Context, root ID, store string, ids []ID) ([]ID, error)

	// GetPathFromTo returns every entry reachable from tip back to (and
	// including) any of the ancestors boundary, in the subtree store, used
	// to fold deltas between a cached state and new tips.
	GetPathFromTo(ctx context.Context, root ID, store string, boundary []ID, tip ID) ([]*Entry, error)

	// GetCachedCRDTState returns a previously cached, fully-merged state as
	// of a single entry within store (i.e. compute_single's memo), if one
	// is cached.
	GetCachedCRDTState(ctx context.Context, root ID, store string, entry ID) (*crdt.Doc, bool, error)

	// CacheCRDTState stores the fully-merged state as of entry within
	// store, for reuse by any future computation that folds through entry.
	CacheCRDTState(ctx context.Context, root ID, store string, entry ID, state *crdt.Doc) error

	// ComputeState returns store's fully-merged CRDT state as of tips,
	// consulting the per-entry state cache and LCA-based delta folding as
	// needed. An empty tips slice yields an empty Doc.
	ComputeState(ctx context.Context, root ID, store string, tips []ID) (*crdt.Doc, error)

	// AllRoots returns the root ID of every database known to this backend.
	AllRoots(ctx context.Context) ([]ID, error)

	// GetTree returns every entry belonging to the database rooted at root.
	GetTree(ctx context.Context, root ID) ([]*Entry, error)

	// GetPrivateKey retrieves a locally-held signing key by its pubkey hint.
	GetPrivateKey(ctx context.Context, pubkey string) ([]byte, error)

	// StorePrivateKey persists a locally-held signing key under pubkey.
	StorePrivateKey(ctx context.Context, pubkey string, keyBytes []byte) error

	// Close releases any resources (file handles, connections) held by the
	// backend.
	Close() error
}
