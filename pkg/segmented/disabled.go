package segmented

import (
	"context"

	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/types"
)

// Disabled is the SegmentedChangelog variant for repos with no
// segmented changelog built: every query fails with a typed "not
// enabled" error, except IsAncestor which returns (nil, nil) —
// callers must treat the nil bool as inconclusive and fall back to a
// slower path (spec.md §4.5.6).
type Disabled struct{}

var errDisabled = errkind.New(errkind.Unavailable, "segmented_changelog", "disabled")

func (Disabled) LocationToHash(ctx context.Context, base types.Vertex, n uint64) (types.Vertex, error) {
	return types.Vertex{}, errDisabled
}

func (Disabled) HashToLocation(ctx context.Context, heads []types.Vertex, v types.Vertex) (types.Location, error) {
	return types.Location{}, errDisabled
}

func (Disabled) CloneData(ctx context.Context, heads []types.Vertex) ([]byte, error) {
	return nil, errDisabled
}

func (Disabled) PullData(ctx context.Context, common, missing []types.Vertex) ([]byte, error) {
	return nil, errDisabled
}

// IsAncestor returns (nil, nil): inconclusive, not an error. Callers
// fall back to a slower ancestry path when nil is returned.
func (Disabled) IsAncestor(ctx context.Context, a, b types.Vertex) (*bool, error) {
	return nil, nil
}
