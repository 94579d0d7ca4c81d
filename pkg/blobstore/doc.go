/*
Package blobstore is the content-addressed key→bytes store. Backends
(MemBlobstore, BoltBlobstore, S3Blobstore) and compositions
(MultiplexedBlobstore, ReadOnlyBlobstore, MemWritesBlobstore,
PrefixedBlobstore, DisabledBlobstore) all satisfy the same Blobstore
interface, so callers assemble a stack once at repo-open time:

	backing := blobstore.NewPrefixedBlobstore(bolt, repoID)
	overlay := blobstore.NewMemWritesBlobstore(backing)
	// ... speculative puts ...
	overlay.Persist(ctx)

Put is idempotent for identical values. A conflicting value under an
existing key is silently ignored by MemBlobstore, BoltBlobstore and
MemWritesBlobstore, and overwrites the old value in S3Blobstore; no
backend produces a torn write.
*/
package blobstore
