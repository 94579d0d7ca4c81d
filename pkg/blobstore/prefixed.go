package blobstore

import (
	"context"
	"fmt"

	"github.com/facebook/sapling-sub046/pkg/types"
)

// PrefixedBlobstore namespaces every key by repo id before delegating to
// inner, letting multiple repos share one physical backend without key
// collisions.
type PrefixedBlobstore struct {
	inner  Blobstore
	repoID types.RepoID
}

// NewPrefixedBlobstore namespaces inner's keys by repoID.
func NewPrefixedBlobstore(inner Blobstore, repoID types.RepoID) *PrefixedBlobstore {
	return &PrefixedBlobstore{inner: inner, repoID: repoID}
}

func (p *PrefixedBlobstore) prefixed(key types.BlobKey) types.BlobKey {
	return types.BlobKey(fmt.Sprintf("repo%d.%s", p.repoID, key))
}

func (p *PrefixedBlobstore) Get(ctx context.Context, key types.BlobKey) (types.BlobBytes, bool, error) {
	return p.inner.Get(ctx, p.prefixed(key))
}

func (p *PrefixedBlobstore) Put(ctx context.Context, key types.BlobKey, value types.BlobBytes) error {
	return p.inner.Put(ctx, p.prefixed(key), value)
}

func (p *PrefixedBlobstore) IsPresent(ctx context.Context, key types.BlobKey) (bool, error) {
	return p.inner.IsPresent(ctx, p.prefixed(key))
}
