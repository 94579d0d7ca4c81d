package cache

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Get fetches a single key via GetOrFillMulti, collapsing concurrent
// callers asking for the same key into one origin fetch. The spec does
// not require this for correctness (fills race safely since values are
// immutable once keyed) but allows it as an optimization.
func (t *Tiered[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var zero V
	res, err, _ := t.flightGroup().Do(t.keyFunc(key), func() (interface{}, error) {
		m, err := t.GetOrFillMulti(ctx, []K{key})
		if err != nil {
			return nil, err
		}
		v, ok := m[key]
		return singleResult[V]{v: v, ok: ok}, nil
	})
	if err != nil {
		return zero, false, err
	}
	sr := res.(singleResult[V])
	return sr.v, sr.ok, nil
}

type singleResult[V any] struct {
	v  V
	ok bool
}

// flightGroup lazily creates the Tiered's singleflight.Group on first use.
func (t *Tiered[K, V]) flightGroup() *singleflight.Group {
	t.sfMu.Lock()
	defer t.sfMu.Unlock()
	if t.sf == nil {
		t.sf = &singleflight.Group{}
	}
	return t.sf
}
