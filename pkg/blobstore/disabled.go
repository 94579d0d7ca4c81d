package blobstore

import (
	"context"

	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/types"
)

// DisabledBlobstore is a Blobstore every operation on which fails with a
// declared errkind.Unavailable, used where a repo has no blob backend
// configured but callers still need a valid Blobstore value.
type DisabledBlobstore struct{}

func (DisabledBlobstore) Get(ctx context.Context, key types.BlobKey) (types.BlobBytes, bool, error) {
	return types.BlobBytes{}, false, errkind.New(errkind.Unavailable, "get", string(key))
}

func (DisabledBlobstore) Put(ctx context.Context, key types.BlobKey, value types.BlobBytes) error {
	return errkind.New(errkind.Unavailable, "put", string(key))
}

func (DisabledBlobstore) IsPresent(ctx context.Context, key types.BlobKey) (bool, error) {
	return false, errkind.New(errkind.Unavailable, "is_present", string(key))
}
