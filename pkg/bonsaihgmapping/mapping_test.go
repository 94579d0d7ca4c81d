package bonsaihgmapping

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/types"
	"github.com/stretchr/testify/require"
)

func openTestMapping(t *testing.T) *SQLMapping {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "mapping.db")
	m, err := OpenSQLMapping(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func id32(b byte) types.BonsaiChangesetID {
	var id types.BonsaiChangesetID
	id[0] = b
	return id
}

func id20(b byte) types.HgChangesetID {
	var id types.HgChangesetID
	id[0] = b
	return id
}

func TestMappingScenarioS5(t *testing.T) {
	ctx := context.Background()
	m := openTestMapping(t)
	repoID := types.RepoID(1)

	bcsAA, hgEleven := id32(0xAA), id20(0x11)
	require.NoError(t, m.Add(ctx, Entry{RepoID: repoID, BcsID: bcsAA, HgCsID: hgEleven}))

	// Re-insert same pair: idempotent success.
	require.NoError(t, m.Add(ctx, Entry{RepoID: repoID, BcsID: bcsAA, HgCsID: hgEleven}))

	// Same bonsai, different hg: conflict.
	err := m.Add(ctx, Entry{RepoID: repoID, BcsID: bcsAA, HgCsID: id20(0x22)})
	require.True(t, errkind.Is(err, errkind.Conflict))

	// Different bonsai, same hg: conflict.
	err = m.Add(ctx, Entry{RepoID: repoID, BcsID: id32(0xBB), HgCsID: hgEleven})
	require.True(t, errkind.Is(err, errkind.Conflict))
}

func TestMappingGetByBonsaiPartial(t *testing.T) {
	ctx := context.Background()
	m := openTestMapping(t)
	repoID := types.RepoID(1)

	bcs1, hg1 := id32(0x01), id20(0x01)
	require.NoError(t, m.Add(ctx, Entry{RepoID: repoID, BcsID: bcs1, HgCsID: hg1}))

	res, err := m.GetByBonsai(ctx, repoID, []types.BonsaiChangesetID{bcs1, id32(0x99)})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, hg1, res[bcs1])
}

func TestMappingPerRepoIsolation(t *testing.T) {
	ctx := context.Background()
	m := openTestMapping(t)

	bcs, hg := id32(0x01), id20(0x01)
	require.NoError(t, m.Add(ctx, Entry{RepoID: types.RepoID(1), BcsID: bcs, HgCsID: hg}))
	// Same pair under a different repo is unrelated, not a conflict.
	require.NoError(t, m.Add(ctx, Entry{RepoID: types.RepoID(2), BcsID: bcs, HgCsID: hg}))
}

func TestCachedMappingPopulatesL1(t *testing.T) {
	ctx := context.Background()
	sqlm := openTestMapping(t)
	repoID := types.RepoID(1)

	bcs, hg := id32(0x05), id20(0x05)
	require.NoError(t, sqlm.Add(ctx, Entry{RepoID: repoID, BcsID: bcs, HgCsID: hg}))

	cm, err := NewCachedMapping(repoID, sqlm, 100, nil)
	require.NoError(t, err)

	res, err := cm.GetByBonsai(ctx, repoID, []types.BonsaiChangesetID{bcs})
	require.NoError(t, err)
	require.Equal(t, hg, res[bcs])

	// With the SQL store closed, the same lookup can only be served by L1.
	require.NoError(t, sqlm.Close())
	res, err = cm.GetByBonsai(ctx, repoID, []types.BonsaiChangesetID{bcs})
	require.NoError(t, err)
	require.Equal(t, hg, res[bcs])
}
