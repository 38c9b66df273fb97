package backend

import (
	"context"
	"fmt"

	"github.com/arcuru/eidetica"
	"github.com/arcuru/eidetica/crdt"
	"github.com/arcuru/eidetica/metrics"
)

// ComputeState returns store's fully-merged CRDT state as of tips. It
// folds through compute_single's per-entry cache: a single tip recurses
// straight into computeSingle; multiple tips fold the path from their LCA
// onto the LCA's own (itself cached) state, so any history shared between
// tips is only ever computed once.
func (b *BoltBackend) ComputeState(ctx context.Context, root eidetica.ID, store string, tips []eidetica.ID) (*crdt.Doc, error) {
	return b.computeMerged(ctx, root, store, tips)
}

// computeMerged implements compute_state: it also serves as the "base from
// a multi-element LCA/parent set" step of compute_single, since both
// reduce to the same recursion on a set of subtree-local IDs.
func (b *BoltBackend) computeMerged(ctx context.Context, root eidetica.ID, store string, ids []eidetica.ID) (*crdt.Doc, error) {
	if len(ids) == 0 {
		return crdt.NewDoc(), nil
	}
	if len(ids) == 1 {
		return b.computeSingle(ctx, root, store, ids[0])
	}

	lca, err := b.FindLCA(ctx, root, store, ids)
	if err != nil {
		return nil, err
	}
	base, err := b.computeMerged(ctx, root, store, lca)
	if err != nil {
		return nil, err
	}
	return b.foldPath(ctx, root, store, lca, ids, base)
}

// computeSingle returns the fully-merged state as of a single entry,
// memoized per (root, store, entry) so that any descendant sharing this
// entry's history reuses the result instead of replaying it.
func (b *BoltBackend) computeSingle(ctx context.Context, root eidetica.ID, store string, entry eidetica.ID) (*crdt.Doc, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ComputeStateDuration)

	key := entryCacheKey(root, store, entry)
	v, err, _ := b.group.Do(key, func() (interface{}, error) {
		if cached, ok, err := b.GetCachedCRDTState(ctx, root, store, entry); err != nil {
			return nil, err
		} else if ok {
			metrics.StateCacheHits.Inc()
			return cached, nil
		}
		metrics.StateCacheMisses.Inc()

		e, err := b.Get(ctx, entry)
		if err != nil {
			return nil, err
		}
		st, ok := e.Subtrees[store]
		if !ok {
			return nil, fmt.Errorf("backend: entry %s has no %s subtree", entry, store)
		}

		parents, err := b.GetSortedStoreParents(ctx, root, store, []eidetica.ID{entry})
		if err != nil {
			return nil, err
		}
		base, err := b.computeMerged(ctx, root, store, parents)
		if err != nil {
			return nil, err
		}

		delta, err := crdt.UnmarshalDoc(st.Data)
		if err != nil {
			return nil, fmt.Errorf("backend: unmarshal delta for %s: %w", entry, err)
		}
		result := base.Merge(delta)

		if err := b.CacheCRDTState(ctx, root, store, entry, result); err != nil {
			return nil, err
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*crdt.Doc), nil
}

// foldPath replays, in (height, id) order, every subtree-local entry
// strictly between boundary and targets onto base.
func (b *BoltBackend) foldPath(ctx context.Context, root eidetica.ID, store string, boundary, targets []eidetica.ID, base *crdt.Doc) (*crdt.Doc, error) {
	seen := eidetica.NewIDSet()
	var path []*eidetica.Entry
	for _, t := range targets {
		entries, err := b.GetPathFromTo(ctx, root, store, boundary, t)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if seen.Contains(e.ID()) {
				continue
			}
			seen.Add(e.ID())
			path = append(path, e)
		}
	}

	sorted := b.sortEntriesByHeight(root, store, path)
	boundarySet := eidetica.NewIDSet(boundary...)
	result := base
	for _, e := range sorted {
		if boundarySet.Contains(e.ID()) {
			continue
		}
		st, ok := e.Subtrees[store]
		if !ok {
			continue
		}
		delta, err := crdt.UnmarshalDoc(st.Data)
		if err != nil {
			return nil, fmt.Errorf("backend: unmarshal delta for %s: %w", e.ID(), err)
		}
		result = result.Merge(delta)
	}
	return result, nil
}

func (b *BoltBackend) sortEntriesByHeight(root eidetica.ID, store string, entries []*eidetica.Entry) []*eidetica.Entry {
	out := append([]*eidetica.Entry(nil), entries...)
	heights := make(map[eidetica.ID]int, len(out))
	for _, e := range out {
		heights[e.ID()] = b.height(root, store, e.ID())
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			a, c := out[j-1], out[j]
			if heights[a.ID()] > heights[c.ID()] || (heights[a.ID()] == heights[c.ID()] && a.ID() > c.ID()) {
				out[j-1], out[j] = out[j], out[j-1]
				continue
			}
			break
		}
	}
	return out
}
