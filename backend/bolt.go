// Package backend implements the durable storage substrate databases live
// on, atop BoltDB. BoltBackend is the only concrete eidetica.Backend in this
// module; everything above it (Instance, Database, Transaction, Stores)
// talks to storage purely through that interface.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/sync/singleflight"

	"github.com/arcuru/eidetica"
	"github.com/arcuru/eidetica/crdt"
	"github.com/arcuru/eidetica/crypto"
	"github.com/arcuru/eidetica/log"
)

var (
	bucketEntries       = []byte("entries")
	bucketRootEntries   = []byte("root_entries")
	bucketRoots         = []byte("roots")
	bucketTips          = []byte("tips")
	bucketStoreTips     = []byte("store_tips")
	bucketStoreChildren = []byte("store_children")
	bucketOverallChild  = []byte("overall_children")
	bucketStateCache    = []byte("state_cache")
	bucketHeights       = []byte("store_heights")
	bucketPrivateKeys   = []byte("private_keys")
)

// BoltBackend implements eidetica.Backend on top of a single BoltDB file.
type BoltBackend struct {
	db    *bolt.DB
	vault *crypto.KeyVault

	mu    sync.Mutex // guards tip-set read-modify-write
	group singleflight.Group
}

// Option configures a BoltBackend at construction time.
type Option func(*BoltBackend)

// WithKeyVault enables at-rest encryption of stored private keys. Without
// one, StorePrivateKey persists keys unencrypted (fine for tests and local
// single-user use, not for shared hosts).
func WithKeyVault(v *crypto.KeyVault) Option {
	return func(b *BoltBackend) { b.vault = v }
}

// Open creates or opens a BoltDB-backed backend at path.
func Open(path string, opts ...Option) (*BoltBackend, error) {
	db, err := bolt.Open(filepath.Clean(path), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{
			bucketEntries, bucketRootEntries, bucketRoots, bucketTips,
			bucketStoreTips, bucketStoreChildren, bucketOverallChild,
			bucketStateCache, bucketHeights, bucketPrivateKeys,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("backend: create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	b := &BoltBackend{db: db}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func storeKey(root eidetica.ID, store string) string { return string(root) + "/" + store }

// Get retrieves a single entry by ID.
func (b *BoltBackend) Get(ctx context.Context, id eidetica.ID) (*eidetica.Entry, error) {
	var entry eidetica.Entry
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketEntries).Get([]byte(id))
		if data == nil {
			return eidetica.ErrNotFound
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Put stores an entry, validating it first when status is Unverified, and
// maintains the tip/children/height indexes used by reads.
func (b *BoltBackend) Put(ctx context.Context, status eidetica.PutStatus, entry *eidetica.Entry) error {
	if status == eidetica.Unverified {
		if err := entry.Verify(); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(bucketEntries)
		id := []byte(entry.ID())
		if entries.Get(id) != nil {
			return nil // idempotent
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("backend: marshal entry: %w", err)
		}
		if err := entries.Put(id, data); err != nil {
			return err
		}

		root := entry.RootID
		if entry.IsRoot() {
			root = entry.ID()
			if err := tx.Bucket(bucketRoots).Put([]byte(root), []byte{1}); err != nil {
				return err
			}
		}

		if err := addToRootIndex(tx, root, entry.ID()); err != nil {
			return err
		}
		if err := updateOverallTips(tx, root, entry); err != nil {
			return err
		}
		for name, st := range entry.Subtrees {
			if err := updateStoreIndexes(tx, root, name, entry.ID(), st.Parents); err != nil {
				return err
			}
		}
		return nil
	})
}

func addToRootIndex(tx *bolt.Tx, root, id eidetica.ID) error {
	b := tx.Bucket(bucketRootEntries)
	key := []byte(string(root) + "/" + string(id))
	return b.Put(key, []byte{1})
}

func readIDList(b *bolt.Bucket, key string) []eidetica.ID {
	data := b.Get([]byte(key))
	if data == nil {
		return nil
	}
	var ids []eidetica.ID
	_ = json.Unmarshal(data, &ids)
	return ids
}

func writeIDList(b *bolt.Bucket, key string, ids []eidetica.ID) error {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func removeID(ids []eidetica.ID, target eidetica.ID) []eidetica.ID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func updateOverallTips(tx *bolt.Tx, root eidetica.ID, entry *eidetica.Entry) error {
	tipsB := tx.Bucket(bucketTips)
	key := string(root)
	tips := readIDList(tipsB, key)
	for _, p := range entry.Parents {
		tips = removeID(tips, p)
	}
	tips = append(tips, entry.ID())
	return writeIDList(tipsB, key, dedupe(tips))
}

func updateStoreIndexes(tx *bolt.Tx, root eidetica.ID, store string, id eidetica.ID, parents []eidetica.ID) error {
	childrenB := tx.Bucket(bucketStoreChildren)
	for _, p := range parents {
		ck := string(root) + "/" + store + "/" + string(p)
		kids := readIDList(childrenB, ck)
		kids = append(kids, id)
		if err := writeIDList(childrenB, ck, dedupe(kids)); err != nil {
			return err
		}
	}

	tipsB := tx.Bucket(bucketStoreTips)
	key := storeKey(root, store)
	tips := readIDList(tipsB, key)
	for _, p := range parents {
		tips = removeID(tips, p)
	}
	tips = append(tips, id)
	if err := writeIDList(tipsB, key, dedupe(tips)); err != nil {
		return err
	}

	heightsB := tx.Bucket(bucketHeights)
	height := 0
	for _, p := range parents {
		ph := readHeight(heightsB, root, store, p)
		if ph+1 > height {
			height = ph + 1
		}
	}
	return writeHeight(heightsB, root, store, id, height)
}

func dedupe(ids []eidetica.ID) []eidetica.ID {
	seen := make(map[eidetica.ID]struct{}, len(ids))
	out := make([]eidetica.ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func heightKey(root eidetica.ID, store string, id eidetica.ID) string {
	return string(root) + "/" + store + "/" + string(id)
}

func readHeight(b *bolt.Bucket, root eidetica.ID, store string, id eidetica.ID) int {
	data := b.Get([]byte(heightKey(root, store, id)))
	if data == nil {
		return -1
	}
	var h int
	_ = json.Unmarshal(data, &h)
	return h
}

func writeHeight(b *bolt.Bucket, root eidetica.ID, store string, id eidetica.ID, h int) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return b.Put([]byte(heightKey(root, store, id)), data)
}

// GetTips returns the current overall tip IDs of root.
func (b *BoltBackend) GetTips(ctx context.Context, root eidetica.ID) ([]eidetica.ID, error) {
	var tips []eidetica.ID
	err := b.db.View(func(tx *bolt.Tx) error {
		tips = readIDList(tx.Bucket(bucketTips), string(root))
		return nil
	})
	return tips, err
}

// GetStoreTips returns the current tip IDs of a single subtree.
func (b *BoltBackend) GetStoreTips(ctx context.Context, root eidetica.ID, store string) ([]eidetica.ID, error) {
	var tips []eidetica.ID
	err := b.db.View(func(tx *bolt.Tx) error {
		tips = readIDList(tx.Bucket(bucketStoreTips), storeKey(root, store))
		return nil
	})
	return tips, err
}

// GetStoreTipsUpToEntries returns store's tips as of the historical point
// where upTo was the overall tip set: every store-local node reachable from
// upTo's entries that itself has no child also reachable from upTo.
func (b *BoltBackend) GetStoreTipsUpToEntries(ctx context.Context, root eidetica.ID, store string, upTo []eidetica.ID) ([]eidetica.ID, error) {
	visited := eidetica.NewIDSet()
	var walk func(id eidetica.ID) error
	walk = func(id eidetica.ID) error {
		if visited.Contains(id) {
			return nil
		}
		visited.Add(id)
		entry, err := b.Get(ctx, id)
		if err != nil {
			return err
		}
		for _, p := range entry.Parents {
			if err := walk(p); err != nil {
				return err
			}
		}
		return nil
	}
	for _, id := range upTo {
		if err := walk(id); err != nil {
			return nil, err
		}
	}

	var storeNodes []eidetica.ID
	hasChildInSet := eidetica.NewIDSet()
	for id := range visited {
		entry, err := b.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		st, ok := entry.Subtrees[store]
		if !ok {
			continue
		}
		storeNodes = append(storeNodes, id)
		for _, p := range st.Parents {
			if visited.Contains(p) {
				hasChildInSet.Add(p)
			}
		}
	}
	var tips []eidetica.ID
	for _, id := range storeNodes {
		if !hasChildInSet.Contains(id) {
			tips = append(tips, id)
		}
	}
	sort.Slice(tips, func(i, j int) bool { return tips[i] < tips[j] })
	return tips, nil
}

// GetSortedStoreParents returns the union of ids' direct store-local
// parents, ordered by (height, id).
func (b *BoltBackend) GetSortedStoreParents(ctx context.Context, root eidetica.ID, store string, ids []eidetica.ID) ([]eidetica.ID, error) {
	set := eidetica.NewIDSet()
	for _, id := range ids {
		entry, err := b.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if st, ok := entry.Subtrees[store]; ok {
			for _, p := range st.Parents {
				set.Add(p)
			}
		}
	}
	return b.sortByHeight(root, store, set.Slice()), nil
}

func (b *BoltBackend) height(root eidetica.ID, store string, id eidetica.ID) int {
	var h int
	b.db.View(func(tx *bolt.Tx) error {
		h = readHeight(tx.Bucket(bucketHeights), root, store, id)
		return nil
	})
	return h
}

func (b *BoltBackend) sortByHeight(root eidetica.ID, store string, ids []eidetica.ID) []eidetica.ID {
	out := append([]eidetica.ID(nil), ids...)
	sort.Slice(out, func(i, j int) bool {
		hi, hj := b.height(root, store, out[i]), b.height(root, store, out[j])
		if hi != hj {
			return hi < hj
		}
		return out[i] < out[j]
	})
	return out
}

// GetCachedCRDTState returns a previously cached merged state as of a
// single entry (compute_single's memo), keyed by (root, store, entry).
func (b *BoltBackend) GetCachedCRDTState(ctx context.Context, root eidetica.ID, store string, entry eidetica.ID) (*crdt.Doc, bool, error) {
	key := entryCacheKey(root, store, entry)
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketStateCache).Get([]byte(key))
		if v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		return nil, false, nil
	}
	doc, err := crdt.UnmarshalDoc(string(data))
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// CacheCRDTState stores the merged state as of entry for reuse by any
// future fold that passes through it.
func (b *BoltBackend) CacheCRDTState(ctx context.Context, root eidetica.ID, store string, entry eidetica.ID, state *crdt.Doc) error {
	data, err := state.Marshal()
	if err != nil {
		return err
	}
	key := entryCacheKey(root, store, entry)
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStateCache).Put([]byte(key), []byte(data))
	})
}

func entryCacheKey(root eidetica.ID, store string, entry eidetica.ID) string {
	return string(root) + "/" + store + "/" + string(entry)
}

// AllRoots returns every database root this backend knows about.
func (b *BoltBackend) AllRoots(ctx context.Context) ([]eidetica.ID, error) {
	var roots []eidetica.ID
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoots).ForEach(func(k, v []byte) error {
			roots = append(roots, eidetica.ID(k))
			return nil
		})
	})
	return roots, err
}

// GetTree returns every entry belonging to root.
func (b *BoltBackend) GetTree(ctx context.Context, root eidetica.ID) ([]*eidetica.Entry, error) {
	prefix := string(root) + "/"
	var ids []eidetica.ID
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRootEntries).Cursor()
		for k, _ := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			ids = append(ids, eidetica.ID(strings.TrimPrefix(string(k), prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	entries := make([]*eidetica.Entry, 0, len(ids))
	for _, id := range ids {
		e, err := b.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetPrivateKey retrieves and (if a vault is configured) decrypts a locally
// held signing key.
func (b *BoltBackend) GetPrivateKey(ctx context.Context, pubkey string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPrivateKeys).Get([]byte(pubkey))
		if v == nil {
			return eidetica.ErrKeyNotFound
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if b.vault != nil {
		return b.vault.Open(data)
	}
	return data, nil
}

// StorePrivateKey persists (and, if a vault is configured, encrypts) a
// locally held signing key.
func (b *BoltBackend) StorePrivateKey(ctx context.Context, pubkey string, keyBytes []byte) error {
	data := keyBytes
	if b.vault != nil {
		sealed, err := b.vault.Seal(keyBytes)
		if err != nil {
			return err
		}
		data = sealed
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPrivateKeys).Put([]byte(pubkey), data)
	})
}

// CountEntries satisfies metrics.StateSource.
func (b *BoltBackend) CountEntries() (int, error) {
	n := 0
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error { n++; return nil })
	})
	return n, err
}

// CountDatabases satisfies metrics.StateSource.
func (b *BoltBackend) CountDatabases() (int, error) {
	n := 0
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoots).ForEach(func(k, v []byte) error { n++; return nil })
	})
	return n, err
}

// TipCounts satisfies metrics.StateSource: overall tip count per root.
func (b *BoltBackend) TipCounts() (map[string]int, error) {
	out := make(map[string]int)
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTips).ForEach(func(k, v []byte) error {
			var ids []eidetica.ID
			if err := json.Unmarshal(v, &ids); err != nil {
				return err
			}
			out[string(k)] = len(ids)
			return nil
		})
	})
	return out, err
}

// Close closes the underlying BoltDB file.
func (b *BoltBackend) Close() error {
	log.Logger.Debug().Msg("closing backend")
	return b.db.Close()
}

var _ eidetica.Backend = (*BoltBackend)(nil)
