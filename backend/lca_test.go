package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcuru/eidetica"
)

// buildEntry constructs and stores an entry with a single "data" subtree
// whose store-local parents match the entry's overall parents, mirroring
// the common single-store case.
func buildEntry(t *testing.T, b *BoltBackend, root eidetica.ID, parents []eidetica.ID, payload string) *eidetica.Entry {
	t.Helper()
	bld := eidetica.NewBuilder(root)
	bld.SetParents(parents)
	bld.StageSubtree("data", payload, parents)
	entry, err := bld.Build()
	require.NoError(t, err)
	require.NoError(t, b.Put(context.Background(), eidetica.Verified, entry))
	return entry
}

func newTestBackend(t *testing.T) *BoltBackend {
	t.Helper()
	b, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestFindLCASingleID(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	root := buildEntry(t, b, "", nil, "root")

	lca, err := b.FindLCA(ctx, root.ID(), "data", []eidetica.ID{root.ID()})
	require.NoError(t, err)
	require.Equal(t, []eidetica.ID{root.ID()}, lca)
}

func TestFindLCADiamond(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	root := buildEntry(t, b, "", nil, "root")
	rootID := root.ID()

	left := buildEntry(t, b, rootID, []eidetica.ID{rootID}, "left")
	right := buildEntry(t, b, rootID, []eidetica.ID{rootID}, "right")

	lca, err := b.FindLCA(ctx, rootID, "data", []eidetica.ID{left.ID(), right.ID()})
	require.NoError(t, err)
	require.Equal(t, []eidetica.ID{rootID}, lca, "the root is the nearest common ancestor of two siblings")
}

func TestFindLCAIgnoresDominatedAncestors(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	root := buildEntry(t, b, "", nil, "root")
	rootID := root.ID()

	mid := buildEntry(t, b, rootID, []eidetica.ID{rootID}, "mid")
	left := buildEntry(t, b, rootID, []eidetica.ID{mid.ID()}, "left")
	right := buildEntry(t, b, rootID, []eidetica.ID{mid.ID()}, "right")

	lca, err := b.FindLCA(ctx, rootID, "data", []eidetica.ID{left.ID(), right.ID()})
	require.NoError(t, err)
	require.Equal(t, []eidetica.ID{mid.ID()}, lca, "root is also a common ancestor but is dominated by mid")
}

func TestFindLCAMerge(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	root := buildEntry(t, b, "", nil, "root")
	rootID := root.ID()

	left := buildEntry(t, b, rootID, []eidetica.ID{rootID}, "left")
	right := buildEntry(t, b, rootID, []eidetica.ID{rootID}, "right")
	merge := buildEntry(t, b, rootID, []eidetica.ID{left.ID(), right.ID()}, "merge")

	lca, err := b.FindLCA(ctx, rootID, "data", []eidetica.ID{merge.ID()})
	require.NoError(t, err)
	require.Equal(t, []eidetica.ID{merge.ID()}, lca)
}

func TestGetPathFromToStopsAtBoundary(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	root := buildEntry(t, b, "", nil, "root")
	rootID := root.ID()

	mid := buildEntry(t, b, rootID, []eidetica.ID{rootID}, "mid")
	tip := buildEntry(t, b, rootID, []eidetica.ID{mid.ID()}, "tip")

	path, err := b.GetPathFromTo(ctx, rootID, "data", []eidetica.ID{mid.ID()}, tip.ID())
	require.NoError(t, err)

	ids := make(map[eidetica.ID]bool, len(path))
	for _, e := range path {
		ids[e.ID()] = true
	}
	require.True(t, ids[tip.ID()])
	require.True(t, ids[mid.ID()], "boundary entry itself is included")
	require.False(t, ids[rootID], "walk must not continue past the boundary")
}

func TestGetSortedStoreParentsOrdersByHeightThenID(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	root := buildEntry(t, b, "", nil, "root")
	rootID := root.ID()

	left := buildEntry(t, b, rootID, []eidetica.ID{rootID}, "left")
	right := buildEntry(t, b, rootID, []eidetica.ID{rootID}, "right")
	merge := buildEntry(t, b, rootID, []eidetica.ID{left.ID(), right.ID()}, "merge")

	parents, err := b.GetSortedStoreParents(ctx, rootID, "data", []eidetica.ID{merge.ID()})
	require.NoError(t, err)
	require.Len(t, parents, 2)
	want := []eidetica.ID{left.ID(), right.ID()}
	if want[1] < want[0] {
		want[0], want[1] = want[1], want[0]
	}
	require.Equal(t, want, parents, "left and right share height 1, so they are ordered by ID")
}
