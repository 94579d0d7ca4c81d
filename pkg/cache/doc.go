/*
Package cache implements the L1 (in-process LRU) -> L2 (memcache) ->
origin composition used for mappings and derived-data lookups.
GetOrFillMulti partitions keys across tiers, falls through to the
origin for whatever neither tier had, and populates L2 (best-effort)
and L1 (authoritative) with what it found:

	tc, _ := cache.NewTiered("bonsai_hg", 10000, memc, cache.GobCodec[Entry]{CodeVersion: 1}, keyFn, ttlFn, fetchFromSQL)
	found, err := tc.GetOrFillMulti(ctx, keys)

L1/L2 failures never fail the call; the origin is always the source of
truth. A decode failure on an L2 entry counts as a miss, not an error,
and bumps CacheDeserializeErrorsTotal.
*/
package cache
