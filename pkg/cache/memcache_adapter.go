package cache

import (
	"github.com/bradfitz/gomemcache/memcache"
)

// RealMemcache adapts a *memcache.Client to the MemcacheClient interface
// this package depends on, so production callers wire the real
// bradfitz/gomemcache client while tests use an in-memory fake.
type RealMemcache struct {
	Client *memcache.Client
}

// NewRealMemcache dials the given memcache server addresses.
func NewRealMemcache(servers ...string) *RealMemcache {
	return &RealMemcache{Client: memcache.New(servers...)}
}

func (r *RealMemcache) Get(key string) (*Item, error) {
	item, err := r.Client.Get(key)
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return &Item{Key: item.Key, Value: item.Value, Expiration: item.Expiration}, nil
}

func (r *RealMemcache) Set(item *Item) error {
	return r.Client.Set(&memcache.Item{
		Key:        item.Key,
		Value:      item.Value,
		Expiration: item.Expiration,
	})
}
