package segmented

import (
	"context"
	"testing"

	"github.com/facebook/sapling-sub046/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestCloneBundleEncodeDecodeRoundTrip(t *testing.T) {
	ctx := context.Background()
	idmap, dag, ids := buildLinearChangelog(t)

	version := types.SegmentedChangelogVersion{RepoID: 7, IdMapVersion: uint64(ids["D"]), IdDagVersion: 1}
	bundle, err := BuildCloneBundle(idmap, dag, version, types.GroupMaster, []types.Id{ids["D"]})
	require.NoError(t, err)
	require.Len(t, bundle.Vertices, 4)
	require.Len(t, bundle.Segments, 1)

	encoded, err := Encode(bundle)
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	decoded, err := Decode(ctx, encoded)
	require.NoError(t, err)
	require.Equal(t, bundle.Version, decoded.Version)
	require.Equal(t, bundle.Vertices, decoded.Vertices)
	require.Equal(t, bundle.Segments, decoded.Segments)
}

func TestPullDataRestrictsToRange(t *testing.T) {
	idmap, dag, ids := buildLinearChangelog(t)

	bundle, err := PullData(idmap, dag, types.GroupMaster, []types.Id{ids["A"]}, []types.Id{ids["C"]})
	require.NoError(t, err)
	require.Len(t, bundle.Vertices, 3)
	_, hasD := bundle.Vertices[ids["D"]]
	require.False(t, hasD)
}
