package device

import (
	"testing"

	"github.com/gogpu/gcl/driver"
	"github.com/gogpu/gcl/driver/null"
)

// TestCacheReuseSameInstance tests that releasing a resource and
// requesting the same shape returns the identical instance with no
// native allocation in between.
func TestCacheReuseSameInstance(t *testing.T) {
	a := null.New()
	defer a.Close()
	c := newResourceCache(a, 0, 0)

	buf, err := a.AllocBuffer(driver.MemoryLocal, 4096)
	if err != nil {
		t.Fatalf("AllocBuffer() error = %v", err)
	}
	res := &Resource{typ: driver.MemoryLocal, size: 4096, buf: buf, state: ResourceInUse}

	allocsBefore := a.Stats().Allocs
	c.Release(res)

	got := c.TryReuse(driver.MemoryLocal, 4096)
	if got != res {
		t.Fatalf("TryReuse() = %p, want the released instance %p", got, res)
	}
	if got.State() != ResourceInUse {
		t.Errorf("State() = %v, want InUse", got.State())
	}
	if a.Stats().Allocs != allocsBefore {
		t.Errorf("native allocations happened during cached reuse")
	}
}

// TestCacheMatching tests type and size matching rules.
func TestCacheMatching(t *testing.T) {
	tests := []struct {
		name    string
		cached  driver.MemoryType
		size    uint64
		reqType driver.MemoryType
		reqSize uint64
		wantHit bool
	}{
		{name: "exact match", cached: driver.MemoryLocal, size: 4096, reqType: driver.MemoryLocal, reqSize: 4096, wantHit: true},
		{name: "larger cached", cached: driver.MemoryLocal, size: 8192, reqType: driver.MemoryLocal, reqSize: 4096, wantHit: true},
		{name: "smaller cached", cached: driver.MemoryLocal, size: 2048, reqType: driver.MemoryLocal, reqSize: 4096, wantHit: false},
		{name: "type mismatch", cached: driver.MemoryRemote, size: 4096, reqType: driver.MemoryLocal, reqSize: 4096, wantHit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := null.New()
			defer a.Close()
			c := newResourceCache(a, 0, 0)

			buf, _ := a.AllocBuffer(tt.cached, tt.size)
			c.Release(&Resource{typ: tt.cached, size: tt.size, buf: buf, state: ResourceInUse})

			got := c.TryReuse(tt.reqType, tt.reqSize)
			if (got != nil) != tt.wantHit {
				t.Errorf("TryReuse() hit = %v, want %v", got != nil, tt.wantHit)
			}
		})
	}
}

// TestCacheEvictsOldestOverBudget tests FIFO eviction past the byte
// budget, with evicted resources truly freed.
func TestCacheEvictsOldestOverBudget(t *testing.T) {
	a := null.New()
	defer a.Close()
	c := newResourceCache(a, 10000, 100)

	var resources []*Resource
	for i := 0; i < 3; i++ {
		buf, _ := a.AllocBuffer(driver.MemoryLocal, 4096)
		res := &Resource{typ: driver.MemoryLocal, size: 4096, buf: buf, state: ResourceInUse}
		resources = append(resources, res)
		c.Release(res)
	}

	// Budget 10000 holds two 4096 entries; the oldest must be gone.
	s := c.Stats()
	if s.Entries != 2 || s.Evictions != 1 {
		t.Fatalf("Stats() = %+v, want 2 entries, 1 eviction", s)
	}
	if a.Stats().Frees != 1 {
		t.Errorf("native frees = %d, want 1", a.Stats().Frees)
	}
	if resources[0].State() != ResourceFree {
		t.Errorf("oldest entry state = %v, want Free", resources[0].State())
	}
	if resources[1].State() != ResourceCached || resources[2].State() != ResourceCached {
		t.Error("newer entries left the cache")
	}
}

// TestCacheEntryCap tests the entry-count bound.
func TestCacheEntryCap(t *testing.T) {
	a := null.New()
	defer a.Close()
	c := newResourceCache(a, 1<<30, 2)

	for i := 0; i < 5; i++ {
		buf, _ := a.AllocBuffer(driver.MemoryLocal, 256)
		c.Release(&Resource{typ: driver.MemoryLocal, size: 256, buf: buf, state: ResourceInUse})
	}

	if s := c.Stats(); s.Entries != 2 || s.Evictions != 3 {
		t.Errorf("Stats() = %+v, want 2 entries, 3 evictions", s)
	}
}

// TestCachePurge tests that teardown frees everything.
func TestCachePurge(t *testing.T) {
	a := null.New()
	defer a.Close()
	c := newResourceCache(a, 0, 0)

	for i := 0; i < 4; i++ {
		buf, _ := a.AllocBuffer(driver.MemoryLocal, 512)
		c.Release(&Resource{typ: driver.MemoryLocal, size: 512, buf: buf, state: ResourceInUse})
	}
	c.Purge()

	if s := c.Stats(); s.Entries != 0 || s.Bytes != 0 {
		t.Errorf("Stats() after Purge = %+v, want empty", s)
	}
	if live := a.Stats().Live; live != 0 {
		t.Errorf("live native buffers = %d after Purge, want 0", live)
	}
}
