package bonsaihgmapping

import (
	"context"
	"fmt"
	"time"

	"github.com/facebook/sapling-sub046/pkg/cache"
	"github.com/facebook/sapling-sub046/pkg/metrics"
	"github.com/facebook/sapling-sub046/pkg/types"
)

// CachedMapping wraps a Mapping with cache.Tiered, one direction-tagged
// cache per lookup direction so "bonsai:<repo>:<bcs>" and
// "hg:<repo>:<hgcs>" keys never collide (spec §4.3 "Keying").
type CachedMapping struct {
	inner      Mapping
	byBonsai   *cache.Tiered[types.BonsaiChangesetID, types.HgChangesetID]
	byHg       *cache.Tiered[types.HgChangesetID, types.BonsaiChangesetID]
	repoID     types.RepoID
}

// NewCachedMapping builds a CachedMapping for a single repo over inner,
// using l2 (may be nil) as the shared memcache tier.
func NewCachedMapping(repoID types.RepoID, inner Mapping, l1Size int, l2 cache.MemcacheClient) (*CachedMapping, error) {
	byBonsai, err := cache.NewTiered[types.BonsaiChangesetID, types.HgChangesetID](
		"bonsai_hg_mapping", l1Size, l2, cache.GobCodec[types.HgChangesetID]{CodeVersion: 1},
		func(k types.BonsaiChangesetID) string { return fmt.Sprintf("bonsai:%d:%s", repoID, k.String()) },
		func(types.BonsaiChangesetID) time.Duration { return cache.PublicTTL },
		func(ctx context.Context, keys []types.BonsaiChangesetID) (map[types.BonsaiChangesetID]types.HgChangesetID, error) {
			return inner.GetByBonsai(ctx, repoID, keys)
		})
	if err != nil {
		return nil, err
	}

	byHg, err := cache.NewTiered[types.HgChangesetID, types.BonsaiChangesetID](
		"bonsai_hg_mapping", l1Size, l2, cache.GobCodec[types.BonsaiChangesetID]{CodeVersion: 1},
		func(k types.HgChangesetID) string { return fmt.Sprintf("hg:%d:%s", repoID, k.String()) },
		func(types.HgChangesetID) time.Duration { return cache.PublicTTL },
		func(ctx context.Context, keys []types.HgChangesetID) (map[types.HgChangesetID]types.BonsaiChangesetID, error) {
			return inner.GetByHg(ctx, repoID, keys)
		})
	if err != nil {
		return nil, err
	}

	return &CachedMapping{inner: inner, byBonsai: byBonsai, byHg: byHg, repoID: repoID}, nil
}

func (c *CachedMapping) Add(ctx context.Context, entry Entry) error {
	timer := metrics.NewTimer()
	err := c.inner.Add(ctx, entry)
	status := "ok"
	if err != nil {
		status = "conflict"
	}
	metrics.MappingInsertsTotal.WithLabelValues(status).Inc()
	timer.ObserveDurationVec(metrics.MappingLookupDuration, "add")
	return err
}

func (c *CachedMapping) GetByBonsai(ctx context.Context, repoID types.RepoID, bcsIDs []types.BonsaiChangesetID) (map[types.BonsaiChangesetID]types.HgChangesetID, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.MappingLookupDuration, "bonsai_to_hg")
	return c.byBonsai.GetOrFillMulti(ctx, bcsIDs)
}

func (c *CachedMapping) GetByHg(ctx context.Context, repoID types.RepoID, hgIDs []types.HgChangesetID) (map[types.HgChangesetID]types.BonsaiChangesetID, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.MappingLookupDuration, "hg_to_bonsai")
	return c.byHg.GetOrFillMulti(ctx, hgIDs)
}
