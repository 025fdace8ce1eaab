package cache

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a bounded key/value cache.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Put(key K, value V)
	Len() int
}

// LRU is a size-bounded cache with per-entry TTL expiration.
type LRU[K comparable, V any] struct {
	lru    *expirable.LRU[K, V]
	hits   atomic.Int64
	misses atomic.Int64
}

var _ Cache[string, struct{}] = (*LRU[string, struct{}])(nil)

// NewLRU creates a cache holding at most capacity entries. ttl <= 0 disables
// expiration.
func NewLRU[K comparable, V any](capacity int, ttl time.Duration) *LRU[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRU[K, V]{lru: expirable.NewLRU[K, V](capacity, nil, ttl)}
}

func (c *LRU[K, V]) Get(key K) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

func (c *LRU[K, V]) Put(key K, value V) {
	c.lru.Add(key, value)
}

func (c *LRU[K, V]) Len() int {
	return c.lru.Len()
}

// Stats returns cumulative hit and miss counts.
func (c *LRU[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
