package repo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/facebook/sapling-sub046/pkg/blobstore"
	"github.com/facebook/sapling-sub046/pkg/derived"
	"github.com/facebook/sapling-sub046/pkg/types"
	"github.com/stretchr/testify/require"
)

// linearFetcher is a ParentFetcher over a fixed A->B->C chain (parent ->
// child), keyed by the low byte of each 32-byte vertex.
type linearFetcher map[types.Vertex][]types.Vertex

func (f linearFetcher) Parents(ctx context.Context, v types.Vertex) ([]types.Vertex, error) {
	return f[v], nil
}

func vertex(b byte) types.Vertex {
	var v types.Vertex
	v[0] = b
	return v
}

func keyFor(derivationType types.DerivedDataType, id types.BonsaiChangesetID) types.BlobKey {
	return types.BlobKey(fmt.Sprintf("%s.%s", derivationType, id.String()))
}

func concatDeriver(ctx context.Context, derivationType types.DerivedDataType, id types.BonsaiChangesetID, parents map[types.BonsaiChangesetID]types.BlobBytes) (types.BlobBytes, error) {
	var buf []byte
	for _, p := range parents {
		buf = append(buf, p.Bytes()...)
	}
	buf = append(buf, id[0])
	return types.NewBlobBytes(buf), nil
}

func TestRepoAdvanceAssignsIDsAndDerives(t *testing.T) {
	ctx := context.Background()
	a, b, c := vertex(1), vertex(2), vertex(3)
	fetcher := linearFetcher{a: nil, b: {a}, c: {b}}

	store := blobstore.NewMemBlobstore()
	r, err := Open(ctx, Config{
		RepoID:        42,
		DataDir:       t.TempDir(),
		Blobstore:     store,
		ParentFetcher: fetcher,
		Deriver:       concatDeriver,
		DerivedKeyFor: keyFor,
	})
	require.NoError(t, err)
	defer r.Close()

	headID, err := r.Advance(ctx, types.GroupMaster, c, "unodes", derived.Simple)
	require.NoError(t, err)
	require.NotZero(t, headID)

	val, ok, err := store.Get(ctx, keyFor("unodes", types.BonsaiChangesetID(c)))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{a[0], b[0], c[0]}, val.Bytes())

	version, found, err := r.Changelog.Version.Get(ctx, 42)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(headID), version.IdMapVersion)
}

func TestRepoAdvanceIsIncremental(t *testing.T) {
	ctx := context.Background()
	a, b := vertex(1), vertex(2)
	fetcher := linearFetcher{a: nil, b: {a}}

	store := blobstore.NewMemBlobstore()
	r, err := Open(ctx, Config{
		RepoID:        1,
		DataDir:       t.TempDir(),
		Blobstore:     store,
		ParentFetcher: fetcher,
		Deriver:       concatDeriver,
		DerivedKeyFor: keyFor,
	})
	require.NoError(t, err)
	defer r.Close()

	firstHead, err := r.Advance(ctx, types.GroupMaster, a, "unodes", derived.Simple)
	require.NoError(t, err)

	fetcher[b] = []types.Vertex{a}
	secondHead, err := r.Advance(ctx, types.GroupMaster, b, "unodes", derived.Simple)
	require.NoError(t, err)
	require.Greater(t, secondHead, firstHead)

	val, ok, err := store.Get(ctx, keyFor("unodes", types.BonsaiChangesetID(b)))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{a[0], b[0]}, val.Bytes())
}

func TestRepoOpenRegistersHealthyComponents(t *testing.T) {
	ctx := context.Background()
	a := vertex(1)
	fetcher := linearFetcher{a: nil}

	r, err := Open(ctx, Config{
		RepoID:        7,
		DataDir:       t.TempDir(),
		Blobstore:     blobstore.NewMemBlobstore(),
		ParentFetcher: fetcher,
		Deriver:       concatDeriver,
		DerivedKeyFor: keyFor,
	})
	require.NoError(t, err)
	defer r.Close()

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()
	r.ReadyHandler()(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/live", nil)
	w = httptest.NewRecorder()
	r.LivenessHandler()(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
