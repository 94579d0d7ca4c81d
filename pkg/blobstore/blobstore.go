// Package blobstore implements the content-addressed key→bytes store:
// the atomic, durable, read-your-write Blobstore interface and its
// standard compositions (multiplexed, readonly, mem-writes overlay,
// prefixed, disabled), plus concrete backends (in-memory, bbolt, S3).
package blobstore

import (
	"context"

	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/types"
)

// Blobstore is the content-addressed store contract. Implementations
// must satisfy: atomicity (a concurrent get observes either nothing or a
// value from a completed put, never a torn value), durability on ack,
// global read-your-write once put returns, and equal-keys-imply-equal-
// values (a conflicting write may be rejected or silently ignored, but
// must never produce a third distinct value).
type Blobstore interface {
	// Get returns the value for key, or (zero, false, nil) if absent.
	Get(ctx context.Context, key types.BlobKey) (types.BlobBytes, bool, error)

	// Put stores value under key. Put is idempotent for identical
	// values; a conflicting value under an existing key is backend
	// policy (ignore or overwrite), never torn.
	Put(ctx context.Context, key types.BlobKey, value types.BlobBytes) error

	// IsPresent reports whether key exists, optimized to avoid
	// transferring the value when the backend can answer more cheaply.
	IsPresent(ctx context.Context, key types.BlobKey) (bool, error)
}

// AssertPresent fails with errkind.NotFound when key is absent, per
// spec: assert_present(key) is IsPresent()+NotFound on a miss.
func AssertPresent(ctx context.Context, b Blobstore, key types.BlobKey) error {
	present, err := b.IsPresent(ctx, key)
	if err != nil {
		return err
	}
	if !present {
		return errkind.New(errkind.NotFound, "assert_present", string(key))
	}
	return nil
}

// defaultIsPresent implements IsPresent in terms of Get for backends
// with no cheaper existence check.
func defaultIsPresent(ctx context.Context, b Blobstore, key types.BlobKey) (bool, error) {
	_, ok, err := b.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return ok, nil
}
