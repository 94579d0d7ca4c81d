package derived

import (
	"context"
	"testing"

	"github.com/facebook/sapling-sub046/pkg/types"
	"github.com/stretchr/testify/require"
)

type staticFetcher struct {
	gens    map[types.BonsaiChangesetID]uint64
	parents map[types.BonsaiChangesetID][]types.BonsaiChangesetID
}

func (f *staticFetcher) GetGenerationNumber(ctx context.Context, id types.BonsaiChangesetID) (uint64, error) {
	return f.gens[id], nil
}

func (f *staticFetcher) GetParents(ctx context.Context, id types.BonsaiChangesetID) ([]types.BonsaiChangesetID, error) {
	return f.parents[id], nil
}

func cid(b byte) types.BonsaiChangesetID {
	var id types.BonsaiChangesetID
	id[0] = b
	return id
}

func TestBuildDeriveGraphOrdersByGeneration(t *testing.T) {
	a, b, c := cid(1), cid(2), cid(3)
	f := &staticFetcher{
		gens:    map[types.BonsaiChangesetID]uint64{a: 1, b: 2, c: 3},
		parents: map[types.BonsaiChangesetID][]types.BonsaiChangesetID{b: {a}, c: {b}},
	}

	graph, err := BuildDeriveGraph(context.Background(), f, "unodes", []types.BonsaiChangesetID{c, a, b}, 10)
	require.NoError(t, err)
	require.Len(t, graph.Batches, 1)
	require.Equal(t, []types.BonsaiChangesetID{a, b, c}, graph.Batches[0])
}

func TestBuildDeriveGraphSplitsBatches(t *testing.T) {
	ids := make([]types.BonsaiChangesetID, 25)
	gens := make(map[types.BonsaiChangesetID]uint64, 25)
	for i := range ids {
		ids[i] = cid(byte(i + 1))
		gens[ids[i]] = uint64(i)
	}
	f := &staticFetcher{gens: gens}

	graph, err := BuildDeriveGraph(context.Background(), f, "unodes", ids, DefaultBatchSize)
	require.NoError(t, err)
	require.Len(t, graph.Batches, 2)
	require.Len(t, graph.Batches[0], 20)
	require.Len(t, graph.Batches[1], 5)
}
