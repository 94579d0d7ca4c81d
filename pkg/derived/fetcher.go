package derived

import (
	"context"

	"github.com/facebook/sapling-sub046/pkg/types"
)

// ChangesetFetcher supplies the two pieces of changeset metadata the
// derivation scheduler needs and does not itself own: generation number
// (for toposorting) and parents (for dependency edges). Mirrors
// spec.md §6.2's ChangesetFetcher exactly.
type ChangesetFetcher interface {
	GetGenerationNumber(ctx context.Context, id types.BonsaiChangesetID) (uint64, error)
	GetParents(ctx context.Context, id types.BonsaiChangesetID) ([]types.BonsaiChangesetID, error)
}

// Deriver computes the derived artifact of kind derivationType for id,
// given its parents' already-derived bytes (nil parent entries mean a
// root commit with no derived-data predecessor). Callers supply the
// actual per-type algorithm (fsnodes, unodes, blame, ...); this package
// only handles ordering, batching, leasing and writing.
type Deriver func(ctx context.Context, derivationType types.DerivedDataType, id types.BonsaiChangesetID, parents map[types.BonsaiChangesetID]types.BlobBytes) (types.BlobBytes, error)

// BlobKeyFor is the caller-supplied convention mapping a derivation type
// and changeset id to the blobstore key its artifact is stored under.
type BlobKeyFor func(derivationType types.DerivedDataType, id types.BonsaiChangesetID) types.BlobKey
