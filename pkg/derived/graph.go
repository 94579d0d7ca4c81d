package derived

import (
	"context"
	"sort"

	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/types"
)

// DefaultBatchSize is the default number of bcs_ids grouped into one
// derivation batch, per spec.md §4.6 step 3.
const DefaultBatchSize = 20

// DeriveGraph is the toposorted, batched plan for deriving one
// derivation type over a set of changesets: ancestors always appear in
// an earlier or equal batch to their descendants, so deriving batches
// in order guarantees parents are derived before children.
type DeriveGraph struct {
	DerivationType types.DerivedDataType
	Batches        [][]types.BonsaiChangesetID
}

// BuildDeriveGraph toposorts ids by generation number (ascending, so
// roots sort first) and slices the result into batches of batchSize.
// A generation-number sort is sufficient to guarantee the parents-
// before-children property: a changeset's generation number is always
// strictly greater than every one of its parents'.
func BuildDeriveGraph(ctx context.Context, fetcher ChangesetFetcher, derivationType types.DerivedDataType, ids []types.BonsaiChangesetID, batchSize int) (*DeriveGraph, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	type withGen struct {
		id  types.BonsaiChangesetID
		gen uint64
	}
	ordered := make([]withGen, len(ids))
	for i, id := range ids {
		gen, err := fetcher.GetGenerationNumber(ctx, id)
		if err != nil {
			return nil, errkind.Wrap(errkind.Internal, "build_derive_graph", id.String(), err)
		}
		ordered[i] = withGen{id: id, gen: gen}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].gen < ordered[j].gen })

	var batches [][]types.BonsaiChangesetID
	for start := 0; start < len(ordered); start += batchSize {
		end := start + batchSize
		if end > len(ordered) {
			end = len(ordered)
		}
		batch := make([]types.BonsaiChangesetID, end-start)
		for i := start; i < end; i++ {
			batch[i-start] = ordered[i].id
		}
		batches = append(batches, batch)
	}

	return &DeriveGraph{DerivationType: derivationType, Batches: batches}, nil
}
