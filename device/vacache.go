package device

import (
	"fmt"
	"sort"
)

// vaEntry maps a half-open virtual address range [start, end) to the
// memory object backing it. Invariant: no two live entries overlap.
type vaEntry struct {
	start uint64
	end   uint64
	mem   *Resource
}

// vaCache indexes memory objects by virtual address range for fast
// reverse lookup. Entries are kept sorted by start address so lookup
// is a binary search; the contract is plain range containment.
//
// Not thread-safe: the Device guards it with a dedicated lock.
type vaCache struct {
	entries []vaEntry
}

// add inserts the address range of mem. Overlap with an existing
// entry indicates a bug in the calling layer and is rejected.
func (c *vaCache) add(mem *Resource) error {
	start := mem.Address()
	end := start + mem.Size()

	i := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].start >= start
	})

	if i < len(c.entries) && c.entries[i].start < end {
		return fmt.Errorf("%w: [%#x,%#x) overlaps [%#x,%#x)",
			ErrOverlappingRange, start, end, c.entries[i].start, c.entries[i].end)
	}
	if i > 0 && c.entries[i-1].end > start {
		return fmt.Errorf("%w: [%#x,%#x) overlaps [%#x,%#x)",
			ErrOverlappingRange, start, end, c.entries[i-1].start, c.entries[i-1].end)
	}

	c.entries = append(c.entries, vaEntry{})
	copy(c.entries[i+1:], c.entries[i:])
	c.entries[i] = vaEntry{start: start, end: end, mem: mem}
	return nil
}

// remove deletes the entry for mem, reporting whether one existed.
func (c *vaCache) remove(mem *Resource) bool {
	for i := range c.entries {
		if c.entries[i].mem == mem {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return true
		}
	}
	return false
}

// find returns the memory object whose range contains ptr and the
// offset of ptr within it. A miss is a normal result, not an error.
func (c *vaCache) find(ptr uint64) (*Resource, uint64, bool) {
	// First entry starting after ptr; the candidate is the one before.
	i := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].start > ptr
	})
	if i == 0 {
		return nil, 0, false
	}
	e := c.entries[i-1]
	if ptr >= e.end {
		return nil, 0, false
	}
	return e.mem, ptr - e.start, true
}

// len returns the number of live entries.
func (c *vaCache) len() int { return len(c.entries) }
