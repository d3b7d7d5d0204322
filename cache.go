package overlayfs

import (
	"strings"
	"sync"
	"time"
)

// cache provides optional caching of path resolutions. Disabled by
// default; every mutation invalidates the affected paths, but external
// writers to the underlying disks are invisible to it, so enable it only
// when the overlay is the sole writer.
type cache struct {
	resolveCache  map[string]*resolveCacheEntry
	negativeCache map[string]*negativeCacheEntry
	mu            sync.RWMutex
	resolveTTL    time.Duration
	negativeTTL   time.Duration
	maxEntries    int
	enabled       bool
}

// resolveCacheEntry stores a cached resolution
type resolveCacheEntry struct {
	res     resolution
	expires time.Time
}

// negativeCacheEntry stores information about absent paths
type negativeCacheEntry struct {
	expires time.Time
}

// newCache creates a new cache with the specified configuration
func newCache(enabled bool, resolveTTL, negativeTTL time.Duration, maxEntries int) *cache {
	if !enabled {
		return &cache{enabled: false}
	}

	return &cache{
		resolveCache:  make(map[string]*resolveCacheEntry),
		negativeCache: make(map[string]*negativeCacheEntry),
		resolveTTL:    resolveTTL,
		negativeTTL:   negativeTTL,
		maxEntries:    maxEntries,
		enabled:       true,
	}
}

// get retrieves a cached resolution if available and not expired
func (c *cache) get(path string) (resolution, bool) {
	if !c.enabled {
		return resolution{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if entry, ok := c.negativeCache[path]; ok && time.Now().Before(entry.expires) {
		return resolution{state: absentTombstoned}, true
	}

	entry, ok := c.resolveCache[path]
	if !ok {
		return resolution{}, false
	}
	if time.Now().After(entry.expires) {
		return resolution{}, false
	}
	return entry.res, true
}

// put stores a resolution; absent results go to the negative cache with
// its shorter TTL
func (c *cache) put(path string, res resolution) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if res.state == absentTombstoned {
		if len(c.negativeCache) >= c.maxEntries {
			c.evictOldestNegative()
		}
		c.negativeCache[path] = &negativeCacheEntry{expires: time.Now().Add(c.negativeTTL)}
		return
	}

	if len(c.resolveCache) >= c.maxEntries {
		c.evictOldestResolve()
	}
	c.resolveCache[path] = &resolveCacheEntry{res: res, expires: time.Now().Add(c.resolveTTL)}
}

// invalidate removes a path from all caches
func (c *cache) invalidate(path string) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.resolveCache, path)
	delete(c.negativeCache, path)
}

// invalidateTree removes all cache entries at or under a path prefix
func (c *cache) invalidateTree(prefix string) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for path := range c.resolveCache {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || prefix == "" {
			delete(c.resolveCache, path)
		}
	}
	for path := range c.negativeCache {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || prefix == "" {
			delete(c.negativeCache, path)
		}
	}
}

// clear removes all cache entries
func (c *cache) clear() {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.resolveCache = make(map[string]*resolveCacheEntry)
	c.negativeCache = make(map[string]*negativeCacheEntry)
}

// evictOldestResolve removes the resolve entry expiring soonest
func (c *cache) evictOldestResolve() {
	var oldestPath string
	var oldestTime time.Time

	for path, entry := range c.resolveCache {
		if oldestPath == "" || entry.expires.Before(oldestTime) {
			oldestPath = path
			oldestTime = entry.expires
		}
	}

	if oldestPath != "" {
		delete(c.resolveCache, oldestPath)
	}
}

// evictOldestNegative removes the negative entry expiring soonest
func (c *cache) evictOldestNegative() {
	var oldestPath string
	var oldestTime time.Time

	for path, entry := range c.negativeCache {
		if oldestPath == "" || entry.expires.Before(oldestTime) {
			oldestPath = path
			oldestTime = entry.expires
		}
	}

	if oldestPath != "" {
		delete(c.negativeCache, oldestPath)
	}
}

// Stats returns cache statistics
func (c *cache) Stats() CacheStats {
	if !c.enabled {
		return CacheStats{Enabled: false}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return CacheStats{
		Enabled:           true,
		ResolveCacheSize:  len(c.resolveCache),
		NegativeCacheSize: len(c.negativeCache),
		MaxEntries:        c.maxEntries,
		ResolveTTL:        c.resolveTTL,
		NegativeTTL:       c.negativeTTL,
	}
}

// CacheStats contains cache statistics
type CacheStats struct {
	Enabled           bool
	ResolveCacheSize  int
	NegativeCacheSize int
	MaxEntries        int
	ResolveTTL        time.Duration
	NegativeTTL       time.Duration
}
