package blobstore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/metrics"
	"github.com/facebook/sapling-sub046/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var blobBucket = []byte("blobs")

// BoltBlobstore is a durable local Blobstore backed by a single bbolt
// database file, one bucket holding every key for the repo this store
// was opened for (callers wrap it in a PrefixedBlobstore to share one
// file across repos).
type BoltBlobstore struct {
	db *bolt.DB
}

// OpenBoltBlobstore opens (creating if absent) a bbolt-backed blobstore
// at <dataDir>/blobs.db.
func OpenBoltBlobstore(dataDir string) (*BoltBlobstore, error) {
	path := filepath.Join(dataDir, "blobs.db")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening blobstore database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(blobBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating blob bucket: %w", err)
	}

	return &BoltBlobstore{db: db}, nil
}

// Close closes the underlying database file.
func (s *BoltBlobstore) Close() error {
	return s.db.Close()
}

func (s *BoltBlobstore) Get(ctx context.Context, key types.BlobKey) (types.BlobBytes, bool, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.BlobstoreRequestDuration, "bolt", "get")

	var value types.BlobBytes
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(blobBucket)
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		cp := make([]byte, len(v))
		copy(cp, v)
		value = types.NewBlobBytes(cp)
		return nil
	})
	if err != nil {
		metrics.BlobstoreRequestsTotal.WithLabelValues("bolt", "get", "error").Inc()
		return types.BlobBytes{}, false, errkind.Wrap(errkind.Internal, "bolt_get", string(key), err)
	}
	result := "miss"
	if found {
		result = "hit"
		metrics.BlobstoreBytesTotal.WithLabelValues("bolt", "get").Add(float64(value.Len()))
	}
	metrics.BlobstoreRequestsTotal.WithLabelValues("bolt", "get", result).Inc()
	return value, found, nil
}

func (s *BoltBlobstore) Put(ctx context.Context, key types.BlobKey, value types.BlobBytes) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.BlobstoreRequestDuration, "bolt", "put")

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(blobBucket)
		if existing := b.Get([]byte(key)); existing != nil {
			// Equal keys imply equal values: a write under an existing
			// key is a no-op, never a torn overwrite.
			return nil
		}
		return b.Put([]byte(key), value.Bytes())
	})
	if err != nil {
		metrics.BlobstoreRequestsTotal.WithLabelValues("bolt", "put", "error").Inc()
		return errkind.Wrap(errkind.Internal, "bolt_put", string(key), err)
	}
	metrics.BlobstoreRequestsTotal.WithLabelValues("bolt", "put", "ok").Inc()
	metrics.BlobstoreBytesTotal.WithLabelValues("bolt", "put").Add(float64(value.Len()))
	return nil
}

func (s *BoltBlobstore) IsPresent(ctx context.Context, key types.BlobKey) (bool, error) {
	present := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(blobBucket)
		present = b.Get([]byte(key)) != nil
		return nil
	})
	if err != nil {
		return false, errkind.Wrap(errkind.Internal, "bolt_is_present", string(key), err)
	}
	return present, nil
}
