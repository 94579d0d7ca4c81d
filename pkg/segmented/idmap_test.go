package segmented

import (
	"context"
	"testing"

	"github.com/facebook/sapling-sub046/pkg/types"
	"github.com/stretchr/testify/require"
)

// staticGraph is a ParentFetcher over a fixed adjacency map, parents
// given in p1-first order.
type staticGraph map[types.Vertex][]types.Vertex

func (g staticGraph) Parents(ctx context.Context, v types.Vertex) ([]types.Vertex, error) {
	return g[v], nil
}

func vtx(b byte) types.Vertex {
	var v types.Vertex
	v[0] = b
	return v
}

// linearGraph returns A -> B -> C -> D (parent -> child), head D.
func linearGraph() (staticGraph, types.Vertex, types.Vertex, types.Vertex, types.Vertex) {
	a, b, c, d := vtx(0xA), vtx(0xB), vtx(0xC), vtx(0xD)
	g := staticGraph{
		a: nil,
		b: {a},
		c: {b},
		d: {c},
	}
	return g, a, b, c, d
}

func TestBuildUpAssignsTopologicalOrder(t *testing.T) {
	ctx := context.Background()
	g, a, b, c, d := linearGraph()

	idmap, err := OpenIdMap(ctx, t.TempDir())
	require.NoError(t, err)
	defer idmap.Close()

	headID, err := idmap.BuildUp(ctx, g, types.GroupMaster, d)
	require.NoError(t, err)

	idA, ok, err := idmap.FindIDByVertex(a)
	require.NoError(t, err)
	require.True(t, ok)
	idB, _, _ := idmap.FindIDByVertex(b)
	idC, _, _ := idmap.FindIDByVertex(c)
	idD, _, _ := idmap.FindIDByVertex(d)

	require.Equal(t, idD, headID)
	require.Less(t, idA, idB)
	require.Less(t, idB, idC)
	require.Less(t, idC, idD)
}

func TestBuildUpIsIdempotent(t *testing.T) {
	ctx := context.Background()
	g, _, _, _, d := linearGraph()

	idmap, err := OpenIdMap(ctx, t.TempDir())
	require.NoError(t, err)
	defer idmap.Close()

	first, err := idmap.BuildUp(ctx, g, types.GroupMaster, d)
	require.NoError(t, err)
	second, err := idmap.BuildUp(ctx, g, types.GroupMaster, d)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestBuildUpMergeCommitAssignsBothParents(t *testing.T) {
	ctx := context.Background()
	a, b, c, merge := vtx(1), vtx(2), vtx(3), vtx(4)
	// merge has parents [b, c]; b and c both descend from a.
	g := staticGraph{
		a:     nil,
		b:     {a},
		c:     {a},
		merge: {b, c},
	}

	idmap, err := OpenIdMap(ctx, t.TempDir())
	require.NoError(t, err)
	defer idmap.Close()

	_, err = idmap.BuildUp(ctx, g, types.GroupMaster, merge)
	require.NoError(t, err)

	for _, v := range []types.Vertex{a, b, c, merge} {
		_, ok, err := idmap.FindIDByVertex(v)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestGroupOfSeparatesMasterAndNonMaster(t *testing.T) {
	require.Equal(t, types.GroupMaster, GroupOf(1))
	require.Equal(t, types.GroupNonMaster, GroupOf(nonMasterBase))
}
