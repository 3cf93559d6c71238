package device

// DefaultMapCacheSize is the default capacity of the map target cache.
const DefaultMapCacheSize = 8

// mapCache is a small cache of pre-sized host-visible buffers used as
// non-blocking map targets, so a map request does not pay for a fresh
// allocation. Bounded in count; insertion beyond capacity evicts the
// oldest entry (FIFO).
//
// Not thread-safe: the Device guards it with a dedicated lock.
type mapCache struct {
	entries  []*Resource // oldest first
	capacity int
}

func newMapCache(capacity int) *mapCache {
	if capacity <= 0 {
		capacity = DefaultMapCacheSize
	}
	return &mapCache{capacity: capacity}
}

// findTarget removes and returns the first cached buffer whose
// capacity satisfies size, or nil when none does.
func (c *mapCache) findTarget(size uint64) *Resource {
	for i, res := range c.entries {
		if res.size >= size {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			res.state = ResourceInUse
			return res
		}
	}
	return nil
}

// addTarget inserts a buffer, returning the evicted entry when the
// cache was at capacity (the caller truly frees it).
func (c *mapCache) addTarget(res *Resource) *Resource {
	var evicted *Resource
	if len(c.entries) >= c.capacity {
		evicted = c.entries[0]
		c.entries = c.entries[1:]
	}
	res.state = ResourceCached
	c.entries = append(c.entries, res)
	return evicted
}

// drain empties the cache, returning all entries for the caller to
// free. Used at device teardown.
func (c *mapCache) drain() []*Resource {
	entries := c.entries
	c.entries = nil
	return entries
}

// len returns the number of cached map targets.
func (c *mapCache) len() int { return len(c.entries) }
