package segmented

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/types"
	"github.com/stretchr/testify/require"
)

func openTestVersionStore(t *testing.T) *VersionStore {
	t.Helper()
	s, err := OpenVersionStore("file:" + filepath.Join(t.TempDir(), "version.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestVersionStoreSetIsPerRepo(t *testing.T) {
	ctx := context.Background()
	s := openTestVersionStore(t)

	_, found, err := s.Get(ctx, types.RepoID(1))
	require.NoError(t, err)
	require.False(t, found)

	v1 := types.SegmentedChangelogVersion{RepoID: 1, IdMapVersion: 1, IdDagVersion: 100}
	v2 := types.SegmentedChangelogVersion{RepoID: 2, IdMapVersion: 3, IdDagVersion: 200}

	require.NoError(t, s.Set(ctx, v1))
	got, found, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, v1, got)

	_, found, err = s.Get(ctx, 2)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.Set(ctx, v2))
	got, _, _ = s.Get(ctx, 1)
	require.Equal(t, v1, got)
	got, _, _ = s.Get(ctx, 2)
	require.Equal(t, v2, got)
}

func TestVersionStoreUpdateRequiresMatchingIdMapVersion(t *testing.T) {
	ctx := context.Background()
	s := openTestVersionStore(t)

	vm1 := types.SegmentedChangelogVersion{RepoID: 0, IdMapVersion: 1, IdDagVersion: 10}
	vm1x := types.SegmentedChangelogVersion{RepoID: 0, IdMapVersion: 1, IdDagVersion: 11}
	vm2y := types.SegmentedChangelogVersion{RepoID: 0, IdMapVersion: 2, IdDagVersion: 22}

	require.NoError(t, s.Set(ctx, vm1))
	got, _, _ := s.Get(ctx, 0)
	require.Equal(t, vm1, got)

	// Update with an idmap_version that doesn't match the stored row fails.
	err := s.Update(ctx, vm2y)
	require.Error(t, err)
	require.True(t, errkind.Is(err, errkind.Conflict))

	require.NoError(t, s.Update(ctx, vm1x))
	got, _, _ = s.Get(ctx, 0)
	require.Equal(t, vm1x, got)

	vm2 := types.SegmentedChangelogVersion{RepoID: 0, IdMapVersion: 2, IdDagVersion: 20}
	require.NoError(t, s.Set(ctx, vm2))
	err = s.Update(ctx, vm1x)
	require.Error(t, err)
	require.True(t, errkind.Is(err, errkind.Conflict))

	require.NoError(t, s.Update(ctx, vm2y))
	got, _, _ = s.Get(ctx, 0)
	require.Equal(t, vm2y, got)
}
