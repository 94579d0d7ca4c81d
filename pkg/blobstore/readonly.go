package blobstore

import (
	"context"

	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/types"
)

// ReadOnlyBlobstore wraps another Blobstore and rejects every Put with
// errkind.PermissionDenied, for repos opened read-only.
type ReadOnlyBlobstore struct {
	inner Blobstore
}

// NewReadOnlyBlobstore wraps inner as a read-only view.
func NewReadOnlyBlobstore(inner Blobstore) *ReadOnlyBlobstore {
	return &ReadOnlyBlobstore{inner: inner}
}

func (r *ReadOnlyBlobstore) Get(ctx context.Context, key types.BlobKey) (types.BlobBytes, bool, error) {
	return r.inner.Get(ctx, key)
}

func (r *ReadOnlyBlobstore) Put(ctx context.Context, key types.BlobKey, value types.BlobBytes) error {
	return errkind.New(errkind.PermissionDenied, "put", string(key))
}

func (r *ReadOnlyBlobstore) IsPresent(ctx context.Context, key types.BlobKey) (bool, error) {
	return r.inner.IsPresent(ctx, key)
}
