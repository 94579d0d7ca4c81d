package blobstore

import (
	"context"
	"sync"

	"github.com/facebook/sapling-sub046/pkg/types"
)

// MemWritesBlobstore overlays an in-memory write buffer atop another
// Blobstore for speculative computation: Put lands only in the overlay
// until Persist is explicitly called. This is the durability boundary
// resolving the overlay-vs-durability open question — callers must not
// rely on a write surviving a crash, or being visible to any other
// process, until Persist(ctx) returns.
type MemWritesBlobstore struct {
	backing Blobstore

	mu      sync.RWMutex
	overlay map[types.BlobKey]types.BlobBytes
}

// NewMemWritesBlobstore wraps backing with an in-memory overlay.
func NewMemWritesBlobstore(backing Blobstore) *MemWritesBlobstore {
	return &MemWritesBlobstore{backing: backing, overlay: make(map[types.BlobKey]types.BlobBytes)}
}

func (m *MemWritesBlobstore) Get(ctx context.Context, key types.BlobKey) (types.BlobBytes, bool, error) {
	m.mu.RLock()
	v, ok := m.overlay[key]
	m.mu.RUnlock()
	if ok {
		return v, true, nil
	}
	return m.backing.Get(ctx, key)
}

func (m *MemWritesBlobstore) Put(ctx context.Context, key types.BlobKey, value types.BlobBytes) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.overlay[key]; !exists {
		m.overlay[key] = value
	}
	return nil
}

func (m *MemWritesBlobstore) IsPresent(ctx context.Context, key types.BlobKey) (bool, error) {
	m.mu.RLock()
	_, ok := m.overlay[key]
	m.mu.RUnlock()
	if ok {
		return true, nil
	}
	return m.backing.IsPresent(ctx, key)
}

// Persist flushes every overlay entry through to the backing store and
// clears the overlay. Only after Persist returns is a write made
// through this store guaranteed to be durable and globally
// read-your-write, per the Blobstore contract.
func (m *MemWritesBlobstore) Persist(ctx context.Context) error {
	m.mu.Lock()
	pending := m.overlay
	m.overlay = make(map[types.BlobKey]types.BlobBytes)
	m.mu.Unlock()

	for key, value := range pending {
		if err := m.backing.Put(ctx, key, value); err != nil {
			// Put every entry of this attempt back, already flushed
			// ones included, so a retry flushes the whole set again.
			m.mu.Lock()
			for k, v := range pending {
				if _, ok := m.overlay[k]; !ok {
					m.overlay[k] = v
				}
			}
			m.mu.Unlock()
			return err
		}
	}
	return nil
}

// PendingCount reports how many keys are buffered in the overlay and
// not yet persisted, for tests and backfill batch-size accounting.
func (m *MemWritesBlobstore) PendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.overlay)
}
