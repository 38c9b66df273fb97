package backend

import (
	"context"

	"github.com/arcuru/eidetica"
)

// ancestorHeights returns every store-local ancestor of id (id included),
// mapped to its height, computed via the persisted height index.
func (b *BoltBackend) ancestorHeights(ctx context.Context, root eidetica.ID, store string, id eidetica.ID) (map[eidetica.ID]int, error) {
	out := make(map[eidetica.ID]int)
	var walk func(eidetica.ID) error
	walk = func(cur eidetica.ID) error {
		if _, ok := out[cur]; ok {
			return nil
		}
		out[cur] = b.height(root, store, cur)
		entry, err := b.Get(ctx, cur)
		if err != nil {
			return err
		}
		st, ok := entry.Subtrees[store]
		if !ok {
			return nil
		}
		for _, p := range st.Parents {
			if err := walk(p); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(id); err != nil {
		return nil, err
	}
	return out, nil
}

// FindLCA returns the minimal common-ancestor frontier of ids within store:
// the set of common ancestors none of which is itself an ancestor of
// another member of the set. A single id is trivially its own LCA.
func (b *BoltBackend) FindLCA(ctx context.Context, root eidetica.ID, store string, ids []eidetica.ID) ([]eidetica.ID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) == 1 {
		return []eidetica.ID{ids[0]}, nil
	}

	sets := make([]map[eidetica.ID]int, len(ids))
	for i, id := range ids {
		s, err := b.ancestorHeights(ctx, root, store, id)
		if err != nil {
			return nil, err
		}
		sets[i] = s
	}

	common := make(map[eidetica.ID]int)
	for id, h := range sets[0] {
		inAll := true
		for _, s := range sets[1:] {
			if _, ok := s[id]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			common[id] = h
		}
	}
	if len(common) == 0 {
		return nil, nil
	}

	// Keep only the frontier: ancestors of another common ancestor are
	// dominated and dropped.
	frontier := make([]eidetica.ID, 0, len(common))
	for id := range common {
		dominated := false
		for other := range common {
			if other == id {
				continue
			}
			isAncestor, err := b.isStoreAncestor(ctx, root, store, id, other)
			if err != nil {
				return nil, err
			}
			if isAncestor {
				dominated = true
				break
			}
		}
		if !dominated {
			frontier = append(frontier, id)
		}
	}
	return b.sortByHeight(root, store, frontier), nil
}

// isStoreAncestor reports whether ancestor is a store-local ancestor of (or
// equal to) descendant.
func (b *BoltBackend) isStoreAncestor(ctx context.Context, root eidetica.ID, store string, ancestor, descendant eidetica.ID) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	set, err := b.ancestorHeights(ctx, root, store, descendant)
	if err != nil {
		return false, err
	}
	_, ok := set[ancestor]
	return ok, nil
}

// GetPathFromTo returns every entry reachable backward from tip down to (and
// including) any entry in boundary, without walking past a boundary node.
func (b *BoltBackend) GetPathFromTo(ctx context.Context, root eidetica.ID, store string, boundary []eidetica.ID, tip eidetica.ID) ([]*eidetica.Entry, error) {
	boundarySet := eidetica.NewIDSet(boundary...)
	visited := eidetica.NewIDSet()
	var out []*eidetica.Entry

	var walk func(eidetica.ID) error
	walk = func(id eidetica.ID) error {
		if visited.Contains(id) {
			return nil
		}
		visited.Add(id)
		entry, err := b.Get(ctx, id)
		if err != nil {
			return err
		}
		out = append(out, entry)
		if boundarySet.Contains(id) {
			return nil
		}
		st, ok := entry.Subtrees[store]
		if !ok {
			return nil
		}
		for _, p := range st.Parents {
			if err := walk(p); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(tip); err != nil {
		return nil, err
	}
	return out, nil
}
