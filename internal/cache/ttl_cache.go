// Package cache holds the in-process TTL cache used for hot tenant
// lookups. Entries are invalidated explicitly on writes, so the TTL only
// bounds staleness across processes.
package cache

import (
	"sync"
	"time"
)

type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
}

type entry[V any] struct {
	value  V
	expiry time.Time
}

// TTLCache is a lock-guarded map with per-entry expiry. Expired entries
// are evicted lazily on read; there is no background sweeper.
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
}

func NewTTLCache[K comparable, V any]() *TTLCache[K, V] {
	return &TTLCache[K, V]{entries: make(map[K]entry[V])}
}

func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if !e.expiry.IsZero() && time.Now().After(e.expiry) {
		c.Delete(key)
		return zero, false
	}
	return e.value, true
}

// Set stores a value. A zero ttl means the entry never expires.
func (c *TTLCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if c == nil {
		return
	}
	e := entry[V]{value: value}
	if ttl > 0 {
		e.expiry = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

func (c *TTLCache[K, V]) Delete(key K) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
