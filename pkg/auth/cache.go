package auth

import (
	"sync"
	"time"
)

type cacheEntry struct {
	bundle     *Bundle
	insertedAt time.Time
}

// RegionCache holds at most one live bundle per region. Reads self-filter on
// TTL instead of relying on background eviction; Put replaces
// unconditionally (last writer wins when two resolves escalate the same
// region concurrently).
type RegionCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewRegionCache creates a cache with the given TTL. A TTL of 0 uses
// DefaultMaxAge.
func NewRegionCache(ttl time.Duration) *RegionCache {
	if ttl <= 0 {
		ttl = DefaultMaxAge
	}
	return &RegionCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the live bundle for a region, or nil if absent or expired.
// Expired entries are removed on read.
func (c *RegionCache) Get(region string) *Bundle {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[region]
	if !ok {
		return nil
	}
	if c.now().Sub(e.insertedAt) >= c.ttl {
		delete(c.entries, region)
		return nil
	}
	return e.bundle
}

// Put stores a bundle for a region, replacing any existing entry.
func (c *RegionCache) Put(region string, b *Bundle) {
	if b == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[region] = cacheEntry{bundle: b, insertedAt: c.now()}
}

// Invalidate removes any entry for a region.
func (c *RegionCache) Invalidate(region string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, region)
}

// AllCached returns the non-expired bundles keyed by region.
func (c *RegionCache) AllCached() map[string]*Bundle {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]*Bundle, len(c.entries))
	for region, e := range c.entries {
		if c.now().Sub(e.insertedAt) >= c.ttl {
			delete(c.entries, region)
			continue
		}
		out[region] = e.bundle
	}
	return out
}
