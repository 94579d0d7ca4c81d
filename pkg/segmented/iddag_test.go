package segmented

import (
	"context"
	"testing"

	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/types"
	"github.com/stretchr/testify/require"
)

// buildLinearChangelog builds the A -> B -> C -> D scenario from
// spec.md S4 and returns the dag plus each vertex's assigned id.
func buildLinearChangelog(t *testing.T) (*IdMap, *IdDag, map[string]types.Id) {
	t.Helper()
	ctx := context.Background()
	g, a, b, c, d := linearGraph()

	idmap, err := OpenIdMap(ctx, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { idmap.Close() })

	headID, err := idmap.BuildUp(ctx, g, types.GroupMaster, d)
	require.NoError(t, err)

	ids := allAssignedIDs(idmap, types.GroupMaster, headID)
	levels, err := buildAllLevels(ctx, idmap, g, types.GroupMaster, ids)
	require.NoError(t, err)

	dag, err := OpenIdDag(ctx, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { dag.Close() })
	require.NoError(t, dag.StoreSegments(ctx, levels))

	idA, _, _ := idmap.FindIDByVertex(a)
	idB, _, _ := idmap.FindIDByVertex(b)
	idC, _, _ := idmap.FindIDByVertex(c)
	idD, _, _ := idmap.FindIDByVertex(d)

	return idmap, dag, map[string]types.Id{"A": idA, "B": idB, "C": idC, "D": idD}
}

func TestLinearChangelogIsOneSegment(t *testing.T) {
	_, dag, ids := buildLinearChangelog(t)
	levels := dag.byLevel[types.GroupMaster]
	require.Len(t, levels[0], 1)
	seg := levels[0][0]
	require.Equal(t, ids["A"], seg.Low)
	require.Equal(t, ids["D"], seg.High)
	require.True(t, seg.HasRoot)
	require.Empty(t, seg.Parents)
}

// TestLocationHashScenarioS4 mirrors spec.md's location<->hash scenario.
func TestLocationHashScenarioS4(t *testing.T) {
	idmap, dag, ids := buildLinearChangelog(t)

	got, err := dag.LocationToHash(idmap, ids["D"], 2)
	require.NoError(t, err)
	require.Equal(t, ids["B"], got)

	h, dist, err := dag.HashToLocation([]types.Id{ids["D"]}, ids["B"])
	require.NoError(t, err)
	require.Equal(t, ids["D"], h)
	require.Equal(t, uint64(2), dist)

	h, dist, err = dag.HashToLocation([]types.Id{ids["D"]}, ids["A"])
	require.NoError(t, err)
	require.Equal(t, ids["D"], h)
	require.Equal(t, uint64(3), dist)

	_, err = dag.LocationToHash(idmap, ids["D"], 99)
	require.Error(t, err)
	require.True(t, errkind.Is(err, errkind.NotFound))
}

func TestIsAncestorAndGCA(t *testing.T) {
	_, dag, ids := buildLinearChangelog(t)

	isAnc, err := dag.IsAncestor(types.GroupMaster, ids["A"], ids["D"])
	require.NoError(t, err)
	require.True(t, isAnc)

	isAnc, err = dag.IsAncestor(types.GroupMaster, ids["D"], ids["A"])
	require.NoError(t, err)
	require.False(t, isAnc)

	gca, err := dag.GCA(types.GroupMaster, ids["C"], ids["D"])
	require.NoError(t, err)
	require.Equal(t, []types.Id{ids["C"]}, gca)
}

func TestRangeQuery(t *testing.T) {
	_, dag, ids := buildLinearChangelog(t)

	rng, err := dag.Range(types.GroupMaster, []types.Id{ids["A"]}, []types.Id{ids["C"]})
	require.NoError(t, err)
	require.True(t, rng[ids["A"]])
	require.True(t, rng[ids["B"]])
	require.True(t, rng[ids["C"]])
	require.False(t, rng[ids["D"]])
}
