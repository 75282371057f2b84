// Package memo provides a bounded, concurrency-safe memoization cache. Concurrent misses
// for the same key share a single load.
package memo

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// LoadFunc computes the value for a missing key.
type LoadFunc[V any] func() (V, error)

// Cache memoizes values by string key. Errors are never cached.
type Cache[V any] struct {
	lru   *expirable.LRU[string, V]
	group singleflight.Group
}

// New returns a cache holding at most size entries, each for at most ttl. A size of 0
// means unbounded and a ttl of 0 means entries never expire.
func New[V any](size int, ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		lru: expirable.NewLRU[string, V](size, nil, ttl),
	}
}

// Get returns the cached value for key, calling load once on a miss.
func (c *Cache[V]) Get(key string, load LoadFunc[V]) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.lru.Get(key); ok {
			return v, nil
		}
		v, err := load()
		if err != nil {
			return v, err
		}
		c.lru.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Peek returns the cached value for key without loading it.
func (c *Cache[V]) Peek(key string) (V, bool) {
	return c.lru.Peek(key)
}

// Add stores value under key.
func (c *Cache[V]) Add(key string, value V) {
	c.lru.Add(key, value)
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}
