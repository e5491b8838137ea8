// Package cache provides a short-TTL read cache with request
// deduplication for the coordinator's three expensive aggregated
// queries (uptime, latency, target-status).
// golang.org/x/sync/singleflight collapses concurrent cache misses for
// the same key into one computation, the first real call site this
// lineage's go.mod dependency has had.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TTL is how long a cached entry remains valid before the next reader
// triggers a recompute.
const TTL = 10 * time.Second

type entry struct {
	value    any
	computed time.Time
}

// Cache is a generic TTL cache keyed by string, safe for concurrent
// use. One Cache instance backs all three aggregated query endpoints.
type Cache struct {
	now func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
}

func New() *Cache {
	return &Cache{
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Get returns the cached value for key if it's still within TTL.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.computed) > TTL {
		return nil, false
	}
	return e.value, true
}

// GetOrCompute returns the cached value for key, or computes it via fn
// if missing/expired. Concurrent callers for the same key share one
// computation via singleflight.
func (c *Cache) GetOrCompute(key string, fn func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = entry{value: v, computed: c.now()}
		c.mu.Unlock()
		return v, nil
	})
	return v, err
}

// Invalidate drops every cached entry. Called on every result
// submission and every reset, since any submitted result can change
// the downtime/uptime/response-time aggregates.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}
