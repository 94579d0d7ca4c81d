package blobstore

import (
	"context"
	"testing"

	"github.com/facebook/sapling-sub046/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestBoltBlobstorePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := OpenBoltBlobstore(t.TempDir())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Put(ctx, "k1", types.NewBlobBytes([]byte("hello"))))

	v, ok, err := b.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), v.Bytes())

	present, err := b.IsPresent(ctx, "k1")
	require.NoError(t, err)
	require.True(t, present)

	_, ok, err = b.Get(ctx, "k2")
	require.NoError(t, err)
	require.False(t, ok)

	present, err = b.IsPresent(ctx, "k2")
	require.NoError(t, err)
	require.False(t, present)
}

func TestBoltBlobstoreEqualKeyEqualValue(t *testing.T) {
	ctx := context.Background()
	b, err := OpenBoltBlobstore(t.TempDir())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Put(ctx, "k1", types.NewBlobBytes([]byte("first"))))
	require.NoError(t, b.Put(ctx, "k1", types.NewBlobBytes([]byte("second"))))

	v, _, err := b.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, []byte("first"), v.Bytes())
}

func TestBoltBlobstoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := OpenBoltBlobstore(dir)
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, "k1", types.NewBlobBytes([]byte("durable"))))
	require.NoError(t, b.Close())

	reopened, err := OpenBoltBlobstore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("durable"), v.Bytes())
}
