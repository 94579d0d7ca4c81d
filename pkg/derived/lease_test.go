package derived

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestLeaseStore(t *testing.T) *LeaseStore {
	t.Helper()
	s, err := OpenLeaseStore("file:" + filepath.Join(t.TempDir(), "lease.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLeaseAcquireReleaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestLeaseStore(t)
	id := cid(1)

	ok, err := s.Acquire(ctx, "unodes", id, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Acquire(ctx, "unodes", id, "owner-b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Release(ctx, "unodes", id, "owner-a"))

	ok, err = s.Acquire(ctx, "unodes", id, "owner-b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLeaseReacquireBySameOwnerIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestLeaseStore(t)
	id := cid(1)

	ok, err := s.Acquire(ctx, "unodes", id, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Acquire(ctx, "unodes", id, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLeaseExpiresAndBecomesReclaimable(t *testing.T) {
	ctx := context.Background()
	s := openTestLeaseStore(t)
	id := cid(1)

	ok, err := s.Acquire(ctx, "unodes", id, "owner-a", -time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Acquire(ctx, "unodes", id, "owner-b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLeaseReleaseByNonOwnerIsNoop(t *testing.T) {
	ctx := context.Background()
	s := openTestLeaseStore(t)
	id := cid(1)

	ok, err := s.Acquire(ctx, "unodes", id, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Release(ctx, "unodes", id, "owner-b"))

	ok, err = s.Acquire(ctx, "unodes", id, "owner-c", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
}
