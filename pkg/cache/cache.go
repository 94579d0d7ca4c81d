// Package cache implements the three-tier cache composition: an
// in-process LRU (L1), a remote memcache tier (L2), and a caller-
// supplied backing store (origin). GetOrFillMulti implements the five
// step protocol: partition by L1, fetch L2 one key at a time, fall through to the
// origin for the rest, then populate L2 and L1 with what was found.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/facebook/sapling-sub046/pkg/corectx"
	"github.com/facebook/sapling-sub046/pkg/metrics"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

// TTL policy knobs (spec Open Question, resolved): draft-phase entries
// expire quickly because they can still become public and change
// identity; public/immutable entries are cached until evicted.
const (
	DraftTTL  = 6 * time.Hour
	PublicTTL = 0 * time.Second // 0 means "no expiry" to the memcache client
)

// OriginFetcher fetches the authoritative value for a set of misses from
// the backing store (SQL, blobstore, …). The returned map may be
// partial; keys absent from it are treated as not found anywhere.
type OriginFetcher[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// Codec encodes/decodes V to/from the bytes stored in L2. Decode
// failures are treated as a miss rather than an error, per spec.
type Codec[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(b []byte) (V, error)
}

// MemcacheClient is the subset of *memcache.Client this package needs,
// so tests can substitute an in-memory fake.
type MemcacheClient interface {
	Get(key string) (item *Item, err error)
	Set(item *Item) error
}

// Item mirrors bradfitz/gomemcache's memcache.Item shape closely enough
// that a thin adapter over the real client satisfies MemcacheClient.
type Item struct {
	Key        string
	Value      []byte
	Expiration int32
}

// ErrCacheMiss is returned by a MemcacheClient.Get when the key is
// absent, mirroring memcache.ErrCacheMiss.
var ErrCacheMiss = errCacheMiss{}

type errCacheMiss struct{}

func (errCacheMiss) Error() string { return "cache: miss" }

// Tiered is the generic L1(LRU)->L2(memcache)->origin composition.
// KeyFunc renders a domain key K into the string used for L2, which
// should already include the repo prefix, namespace and codever/sitever
// per spec so incompatible encodings never collide.
type Tiered[K comparable, V any] struct {
	tier     string
	l1       *lru.Cache
	l2       MemcacheClient
	codec    Codec[V]
	keyFunc  func(K) string
	ttlFunc  func(K) time.Duration
	origin   OriginFetcher[K, V]

	sfMu sync.Mutex
	sf   *singleflight.Group
}

// NewTiered builds a Tiered cache. l1Size is the LRU capacity; l2 may be
// nil to run L1-only (useful for tests or a single-process deployment).
func NewTiered[K comparable, V any](
	tier string,
	l1Size int,
	l2 MemcacheClient,
	codec Codec[V],
	keyFunc func(K) string,
	ttlFunc func(K) time.Duration,
	origin OriginFetcher[K, V],
) (*Tiered[K, V], error) {
	l1, err := lru.New(l1Size)
	if err != nil {
		return nil, err
	}
	return &Tiered[K, V]{
		tier:    tier,
		l1:      l1,
		l2:      l2,
		codec:   codec,
		keyFunc: keyFunc,
		ttlFunc: ttlFunc,
		origin:  origin,
	}, nil
}

// GetOrFillMulti implements the spec's five-step protocol.
func (t *Tiered[K, V]) GetOrFillMulti(ctx context.Context, keys []K) (map[K]V, error) {
	result := make(map[K]V, len(keys))
	var l1Misses []K

	// Step 1: partition into L1 hits and misses.
	for _, k := range keys {
		if v, ok := t.l1.Get(t.keyFunc(k)); ok {
			result[k] = v.(V)
			metrics.CacheRequestsTotal.WithLabelValues(t.tier, "l1_hit").Inc()
		} else {
			l1Misses = append(l1Misses, k)
		}
	}

	// Step 2: L2 lookup for the L1 misses, one Get call per key; there is
	// no multi-key L2 request.
	var l2Misses []K
	if t.l2 != nil {
		for _, k := range l1Misses {
			item, err := t.l2.Get(t.keyFunc(k))
			if err != nil {
				metrics.CacheRequestsTotal.WithLabelValues(t.tier, "l2_miss").Inc()
				l2Misses = append(l2Misses, k)
				continue
			}
			v, decodeErr := t.codec.Decode(item.Value)
			if decodeErr != nil {
				metrics.CacheDeserializeErrorsTotal.WithLabelValues(t.tier).Inc()
				l2Misses = append(l2Misses, k)
				continue
			}
			metrics.CacheRequestsTotal.WithLabelValues(t.tier, "l2_hit").Inc()
			result[k] = v
			t.l1.Add(t.keyFunc(k), v)
		}
	} else {
		l2Misses = l1Misses
	}

	if len(l2Misses) == 0 {
		return result, nil
	}

	// Step 3: fall through to the origin for what's still missing.
	timer := metrics.NewTimer()
	fromOrigin, err := t.origin(ctx, l2Misses)
	timer.ObserveDurationVec(metrics.CacheFillDuration, t.tier)
	if err != nil {
		corectx.Logger(ctx).Warn().Err(err).Str("tier", t.tier).Msg("origin fetch failed")
		return result, err
	}

	// Step 4: populate L2 (best-effort) and L1 (authoritative).
	for k, v := range fromOrigin {
		result[k] = v
		t.l1.Add(t.keyFunc(k), v)
		if t.l2 != nil {
			if encoded, encErr := t.codec.Encode(v); encErr == nil {
				ttl := t.ttl(k)
				_ = t.l2.Set(&Item{Key: t.keyFunc(k), Value: encoded, Expiration: int32(ttl.Seconds())})
			}
		}
	}

	// Step 5: return the union of all found results (already built above).
	return result, nil
}

func (t *Tiered[K, V]) ttl(k K) time.Duration {
	if t.ttlFunc == nil {
		return PublicTTL
	}
	return t.ttlFunc(k)
}
