package blobstore

import (
	"context"

	"github.com/facebook/sapling-sub046/pkg/corectx"
	"github.com/facebook/sapling-sub046/pkg/errkind"
	"github.com/facebook/sapling-sub046/pkg/types"
	"golang.org/x/sync/errgroup"
)

// MultiplexedBlobstore fans a Put out to every backend and requires a
// quorum of successful acks before returning; Get tries backends in
// order and returns the first hit, without waiting on the rest.
type MultiplexedBlobstore struct {
	backends []Blobstore
	quorum   int
}

// NewMultiplexedBlobstore builds a multiplexed store over backends,
// requiring quorum successful writes per Put. quorum is clamped to
// [1, len(backends)].
func NewMultiplexedBlobstore(backends []Blobstore, quorum int) *MultiplexedBlobstore {
	if quorum < 1 {
		quorum = 1
	}
	if quorum > len(backends) {
		quorum = len(backends)
	}
	return &MultiplexedBlobstore{backends: backends, quorum: quorum}
}

func (m *MultiplexedBlobstore) Get(ctx context.Context, key types.BlobKey) (types.BlobBytes, bool, error) {
	var lastErr error
	for _, b := range m.backends {
		v, ok, err := b.Get(ctx, key)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return v, true, nil
		}
	}
	if lastErr != nil {
		corectx.Logger(ctx).Warn().Err(lastErr).Str("key", string(key)).Msg("multiplexed get: all backends missed or errored")
	}
	return types.BlobBytes{}, false, nil
}

func (m *MultiplexedBlobstore) Put(ctx context.Context, key types.BlobKey, value types.BlobBytes) error {
	var g errgroup.Group
	acked := make([]bool, len(m.backends))
	for i, b := range m.backends {
		i, b := i, b
		g.Go(func() error {
			err := b.Put(ctx, key, value)
			if err == nil {
				acked[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	count := 0
	for _, ok := range acked {
		if ok {
			count++
		}
	}
	if count < m.quorum {
		return errkind.New(errkind.Unavailable, "multiplexed_put", string(key))
	}
	return nil
}

func (m *MultiplexedBlobstore) IsPresent(ctx context.Context, key types.BlobKey) (bool, error) {
	for _, b := range m.backends {
		present, err := b.IsPresent(ctx, key)
		if err == nil && present {
			return true, nil
		}
	}
	return false, nil
}
