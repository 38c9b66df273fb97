package eidetica

import (
	"context"
	"crypto/ed25519"
	"sync"

	"github.com/arcuru/eidetica/log"
)

// WriteSource distinguishes a locally-committed entry from one that arrived
// via sync, letting callbacks tell apart "I just wrote this" from
// "a peer told me about this".
type WriteSource int

const (
	WriteLocal WriteSource = iota
	WriteRemote
)

// WriteCallback is invoked after an entry is durably stored, letting
// subscribers (the sync engine's change feed, store-level watchers, test
// harnesses) react to new commits.
type WriteCallback func(source WriteSource, root ID, entry *Entry)

// Syncer is the subset of the sync engine's surface an Instance needs,
// kept as an interface here so the root package never imports sync and
// sync can freely import eidetica.
type Syncer interface {
	NotifyLocalCommit(root ID, entry *Entry)
	Close() error
}

// Instance is the top-level handle an application holds: a Backend, an
// optional Syncer, and the registry of write callbacks, used to open and
// create Databases.
type Instance struct {
	backend Backend
	sync    Syncer

	mu        sync.RWMutex
	callbacks map[ID][]WriteCallback
	global    []WriteCallback
}

// NewInstance builds an Instance atop backend, with no sync engine attached.
// Attach one afterward with SetSyncer.
func NewInstance(backend Backend) *Instance {
	return &Instance{
		backend:   backend,
		callbacks: make(map[ID][]WriteCallback),
	}
}

// SetSyncer attaches (or replaces) the sync engine used to propagate writes.
func (inst *Instance) SetSyncer(s Syncer) { inst.sync = s }

// Backend returns the storage substrate this instance is built on.
func (inst *Instance) Backend() Backend { return inst.backend }

// CreateDatabase creates a new database on this instance's backend and
// fires write callbacks for its root entry.
func (inst *Instance) CreateDatabase(ctx context.Context, signingKey ed25519.PrivateKey, settings *Settings) (*Database, error) {
	db, err := Create(ctx, inst.backend, signingKey, settings)
	if err != nil {
		return nil, err
	}
	entry, getErr := inst.backend.Get(ctx, db.RootID)
	if getErr == nil {
		inst.notify(WriteLocal, db.RootID, entry)
	}
	log.Logger.Info().Str("root_id", db.RootID.String()).Msg("created database")
	return db, nil
}

// OpenDatabase attaches a handle to an existing database on this instance.
func (inst *Instance) OpenDatabase(ctx context.Context, root ID, signingKey ed25519.PrivateKey) (*Database, error) {
	return Open(ctx, inst.backend, root, signingKey)
}

// OnWrite registers a callback fired whenever NotifyCommit reports an entry
// for root: after a Transaction commit, or when CreateDatabase stores a
// root entry. Entries stored by the sync engine do not fire it.
func (inst *Instance) OnWrite(root ID, cb WriteCallback) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.callbacks[root] = append(inst.callbacks[root], cb)
}

// OnAnyWrite registers a callback fired for every commit to any database on
// this instance.
func (inst *Instance) OnAnyWrite(cb WriteCallback) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.global = append(inst.global, cb)
}

// notify fires registered callbacks for a commit and, for local commits,
// tells the attached syncer so it can queue the entry for peers.
func (inst *Instance) notify(source WriteSource, root ID, entry *Entry) {
	inst.mu.RLock()
	cbs := append([]WriteCallback(nil), inst.callbacks[root]...)
	globals := append([]WriteCallback(nil), inst.global...)
	inst.mu.RUnlock()

	for _, cb := range cbs {
		cb(source, root, entry)
	}
	for _, cb := range globals {
		cb(source, root, entry)
	}
	if source == WriteLocal && inst.sync != nil {
		inst.sync.NotifyLocalCommit(root, entry)
	}
}

// NotifyCommit is called by a Transaction after a successful Put. The sync
// engine does not call it for entries it receives from peers.
func (inst *Instance) NotifyCommit(source WriteSource, root ID, entry *Entry) {
	inst.notify(source, root, entry)
}

// AllDatabases returns the root ID of every database this instance's
// backend knows about.
func (inst *Instance) AllDatabases(ctx context.Context) ([]ID, error) {
	return inst.backend.AllRoots(ctx)
}

// Close releases the sync engine (if any) and the backend.
func (inst *Instance) Close() error {
	if inst.sync != nil {
		if err := inst.sync.Close(); err != nil {
			return err
		}
	}
	return inst.backend.Close()
}
