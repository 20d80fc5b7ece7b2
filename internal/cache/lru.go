// Package cache provides the bounded, process-lifetime memoization caches
// shared by the resolver and the upstream memoizer.
package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/amaumene/malsync/internal/metrics"
)

// Cache is a bounded key/value cache safe for concurrent use.
// Entries are only removed by capacity eviction or Purge.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Add(key K, value V)
	Len() int
	Purge()
}

// LRU is a Cache that evicts the least recently used entry once capacity is reached
type LRU[K comparable, V any] struct {
	name     string
	capacity int
	inner    *lru.Cache[K, V]
}

// NewLRU creates an LRU cache holding at most capacity entries.
// name labels the cache in metrics.
func NewLRU[K comparable, V any](name string, capacity int) (*LRU[K, V], error) {
	inner, err := lru.New[K, V](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s cache: %w", name, err)
	}

	return &LRU[K, V]{
		name:     name,
		capacity: capacity,
		inner:    inner,
	}, nil
}

// Get returns the cached value and marks it as recently used
func (c *LRU[K, V]) Get(key K) (V, bool) {
	value, ok := c.inner.Get(key)
	if ok {
		metrics.CacheRequestsTotal.WithLabelValues(c.name, "hit").Inc()
	} else {
		metrics.CacheRequestsTotal.WithLabelValues(c.name, "miss").Inc()
	}
	return value, ok
}

// Add stores value under key, evicting the oldest entry when full
func (c *LRU[K, V]) Add(key K, value V) {
	if evicted := c.inner.Add(key, value); evicted {
		metrics.CacheEvictionsTotal.WithLabelValues(c.name).Inc()
	}
}

// Len returns the number of cached entries
func (c *LRU[K, V]) Len() int {
	return c.inner.Len()
}

// Purge removes every entry
func (c *LRU[K, V]) Purge() {
	c.inner.Purge()
}

// Name returns the metrics label of the cache
func (c *LRU[K, V]) Name() string {
	return c.name
}

// Capacity returns the maximum number of entries
func (c *LRU[K, V]) Capacity() int {
	return c.capacity
}

// ReportSize publishes the current entry count of each cache
func ReportSize(caches ...Named) {
	for _, c := range caches {
		metrics.CacheEntries.WithLabelValues(c.Name()).Set(float64(c.Len()))
	}
}

// Named is a cache that can report its size and capacity
type Named interface {
	Name() string
	Len() int
	Capacity() int
}
