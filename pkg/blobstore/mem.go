package blobstore

import (
	"context"
	"sync"

	"github.com/facebook/sapling-sub046/pkg/types"
)

// MemBlobstore is an in-process map-backed Blobstore: the hermetic
// default for tests and the backing store a MemWritesBlobstore overlays.
type MemBlobstore struct {
	mu   sync.RWMutex
	data map[types.BlobKey]types.BlobBytes
}

// NewMemBlobstore returns an empty in-memory blobstore.
func NewMemBlobstore() *MemBlobstore {
	return &MemBlobstore{data: make(map[types.BlobKey]types.BlobBytes)}
}

func (m *MemBlobstore) Get(ctx context.Context, key types.BlobKey) (types.BlobBytes, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemBlobstore) Put(ctx context.Context, key types.BlobKey, value types.BlobBytes) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[key]; exists {
		// Equal keys imply equal values; first writer wins, matching
		// the overwrite-is-a-noop policy used by BoltBlobstore.
		return nil
	}
	m.data[key] = value
	return nil
}

func (m *MemBlobstore) IsPresent(ctx context.Context, key types.BlobKey) (bool, error) {
	return defaultIsPresent(ctx, m, key)
}

// Len returns the number of keys currently stored, for tests.
func (m *MemBlobstore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
