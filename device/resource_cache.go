package device

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gcl/driver"
)

// Resource cache defaults.
const (
	// DefaultCacheBudget is the default total size of cached resources
	// (32 MB).
	DefaultCacheBudget = 32 << 20

	// DefaultCacheEntries is the default maximum number of cached
	// resources.
	DefaultCacheEntries = 64
)

// CacheStats reports resource cache activity.
type CacheStats struct {
	// Entries is the number of resources currently cached.
	Entries int

	// Bytes is the total size of cached resources.
	Bytes uint64

	// Hits counts requests served from the cache.
	Hits uint64

	// Misses counts requests that fell through to the driver.
	Misses uint64

	// Evictions counts cached resources truly freed to make room.
	Evictions uint64
}

// String returns a human-readable form of the stats.
func (s CacheStats) String() string {
	return fmt.Sprintf("rescache[%d entries, %d KB, %d hits, %d misses, %d evictions]",
		s.Entries, s.Bytes/1024, s.Hits, s.Misses, s.Evictions)
}

// ResourceCache keeps released device resources for reuse, so
// equivalently shaped future requests skip the native allocation call.
//
// Eviction policy: bounded FIFO. Entries are ordered by insertion;
// when the byte budget or entry cap is exceeded, the oldest entries
// are truly freed first.
//
// ResourceCache is safe for concurrent use.
type ResourceCache struct {
	adapter driver.Adapter

	mu         sync.Mutex
	entries    []*Resource // oldest first
	totalBytes uint64
	maxBytes   uint64
	maxEntries int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// newResourceCache creates a cache with the given byte budget and
// entry cap. Zero values select the defaults.
func newResourceCache(adapter driver.Adapter, maxBytes uint64, maxEntries int) *ResourceCache {
	if maxBytes == 0 {
		maxBytes = DefaultCacheBudget
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	return &ResourceCache{
		adapter:    adapter,
		maxBytes:   maxBytes,
		maxEntries: maxEntries,
	}
}

// TryReuse returns a cached resource of the exact type with size at
// least size (first fit), or nil if none qualifies. The returned
// resource leaves the cache in the in-use state, indistinguishable
// from a fresh allocation to its new owner.
func (c *ResourceCache) TryReuse(typ driver.MemoryType, size uint64) *Resource {
	c.mu.Lock()
	for i, res := range c.entries {
		if res.typ != typ || res.size < size {
			continue
		}
		c.entries = append(c.entries[:i], c.entries[i+1:]...)
		c.totalBytes -= res.size
		res.state = ResourceInUse
		c.mu.Unlock()
		c.hits.Add(1)
		return res
	}
	c.mu.Unlock()
	c.misses.Add(1)
	return nil
}

// Release inserts a resource into the cache instead of freeing it to
// the driver. Beyond the cache budget, the oldest entries are evicted
// and truly freed.
func (c *ResourceCache) Release(res *Resource) {
	if res == nil {
		return
	}

	var evicted []*Resource

	c.mu.Lock()
	res.state = ResourceCached
	c.entries = append(c.entries, res)
	c.totalBytes += res.size
	for (c.totalBytes > c.maxBytes || len(c.entries) > c.maxEntries) && len(c.entries) > 0 {
		old := c.entries[0]
		c.entries = c.entries[1:]
		c.totalBytes -= old.size
		evicted = append(evicted, old)
	}
	c.mu.Unlock()

	for _, old := range evicted {
		old.state = ResourceFree
		c.adapter.FreeBuffer(old.buf)
		c.evictions.Add(1)
	}
	if len(evicted) > 0 {
		slogger().Debug("gcl: resource cache evicted", "count", len(evicted))
	}
}

// Purge frees every cached resource. Called at device teardown.
func (c *ResourceCache) Purge() {
	c.mu.Lock()
	entries := c.entries
	c.entries = nil
	c.totalBytes = 0
	c.mu.Unlock()

	for _, res := range entries {
		res.state = ResourceFree
		c.adapter.FreeBuffer(res.buf)
	}
}

// Stats returns current cache statistics.
func (c *ResourceCache) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	bytes := c.totalBytes
	c.mu.Unlock()

	return CacheStats{
		Entries:   entries,
		Bytes:     bytes,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
