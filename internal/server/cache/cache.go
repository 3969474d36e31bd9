// Package cache provides an in-memory caching layer for the HTTP server.
// Read-heavy endpoints (run history, run entries) are cached until the next
// run completes, at which point the server clears everything.
package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache wraps go-cache with key helpers for the API's cached views.
type Cache struct {
	store *gocache.Cache
	hits  atomic.Uint64
	miss  atomic.Uint64
}

// New creates a new cache with the given TTL and cleanup interval.
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	return &Cache{
		store: gocache.New(defaultTTL, cleanupInterval),
	}
}

// RunsKey is the cache key for one page of run history.
func RunsKey(rawQuery string) string {
	return "runs?" + rawQuery
}

// EntryKey is the cache key for one run's report entry.
func EntryKey(runID string) string {
	return fmt.Sprintf("run:%s", runID)
}

// Get retrieves a value from the cache.
func (c *Cache) Get(key string) (any, bool) {
	v, ok := c.store.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.miss.Add(1)
	}
	return v, ok
}

// Set stores a value in the cache with default TTL.
func (c *Cache) Set(key string, value any) {
	c.store.Set(key, value, gocache.DefaultExpiration)
}

// SetWithTTL stores a value in the cache with custom TTL.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.store.Set(key, value, ttl)
}

// Delete removes a value from the cache.
func (c *Cache) Delete(key string) {
	c.store.Delete(key)
}

// Clear removes all items from the cache.
func (c *Cache) Clear() {
	c.store.Flush()
}

// ItemCount returns the number of items in the cache.
func (c *Cache) ItemCount() int {
	return c.store.ItemCount()
}

// Stats returns cache statistics.
type Stats struct {
	ItemCount int    `json:"item_count"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
}

// GetStats returns current cache statistics.
func (c *Cache) GetStats() Stats {
	return Stats{
		ItemCount: c.store.ItemCount(),
		Hits:      c.hits.Load(),
		Misses:    c.miss.Load(),
	}
}
