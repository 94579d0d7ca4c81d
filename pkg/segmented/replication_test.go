package segmented

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/facebook/sapling-sub046/pkg/types"
	"github.com/stretchr/testify/require"
)

// freePort hands back a TCP port that was free at the moment of the
// call, for binding the raft transport in tests.
func freePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestReplicatorSingleNodeBootstrapApplyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenVersionStore("file:" + filepath.Join(dir, "version.db"))
	require.NoError(t, err)
	defer store.Close()

	addr := fmt.Sprintf("127.0.0.1:%d", freePort(t))
	replicator, err := NewStandaloneReplicator("node-1", addr, dir, store)
	require.NoError(t, err)
	defer replicator.Shutdown()

	require.Eventually(t, replicator.IsLeader, 5*time.Second, 10*time.Millisecond)

	version := types.SegmentedChangelogVersion{RepoID: 7, IdMapVersion: 3, IdDagVersion: 9}
	require.NoError(t, replicator.Apply(version, VersionOpSet, time.Second))
	require.Equal(t, version, replicator.Current())

	stored, found, err := store.Get(context.Background(), version.RepoID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, version, stored)

	updated := types.SegmentedChangelogVersion{RepoID: 7, IdMapVersion: 3, IdDagVersion: 11}
	require.NoError(t, replicator.Apply(updated, VersionOpUpdate, time.Second))
	require.Equal(t, updated, replicator.Current())
}
