package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

// TestGetSet tests basic store and retrieve.
func TestGetSet(t *testing.T) {
	c := NewSharded[string, int](4, StringHasher)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) ok = true")
	}

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10) // overwrite

	if v, ok := c.Get("a"); !ok || v != 10 {
		t.Errorf("Get(a) = %d, %v; want 10, true", v, ok)
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Errorf("Get(b) = %d, %v; want 2, true", v, ok)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

// TestGetOrCreate tests single computation per key.
func TestGetOrCreate(t *testing.T) {
	c := NewSharded[string, int](4, StringHasher)

	calls := 0
	create := func() (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrCreate("k", create)
		if err != nil || v != 42 {
			t.Fatalf("GetOrCreate() = %d, %v; want 42, nil", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}

	wantErr := errors.New("boom")
	if _, err := c.GetOrCreate("bad", func() (int, error) { return 0, wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("GetOrCreate(bad) error = %v, want %v", err, wantErr)
	}
	if _, ok := c.Get("bad"); ok {
		t.Error("failed creation was cached")
	}
}

// TestEviction tests per-shard LRU eviction.
func TestEviction(t *testing.T) {
	// Uint64Hasher maps key k to shard k&shardMask; multiples of
	// ShardCount all land in shard 0.
	c := NewSharded[uint64, int](2, Uint64Hasher)

	c.Set(0, 0)
	c.Set(8, 1)
	c.Get(0) // make key 0 most recently used
	c.Set(16, 2)

	if _, ok := c.Get(8); ok {
		t.Error("least recently used entry survived eviction")
	}
	if _, ok := c.Get(0); !ok {
		t.Error("recently used entry was evicted")
	}
	if s := c.Stats(); s.Evictions != 1 {
		t.Errorf("Stats().Evictions = %d, want 1", s.Evictions)
	}
}

// TestDeleteClear tests removal paths.
func TestDeleteClear(t *testing.T) {
	c := NewSharded[string, int](0, StringHasher)
	c.Set("x", 1)

	if !c.Delete("x") {
		t.Error("Delete(x) = false")
	}
	if c.Delete("x") {
		t.Error("second Delete(x) = true")
	}

	c.Set("y", 2)
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
}

// TestRange tests iteration over all entries.
func TestRange(t *testing.T) {
	c := NewSharded[string, int](8, StringHasher)
	want := map[string]int{"a": 1, "b": 2, "c": 3}
	for k, v := range want {
		c.Set(k, v)
	}

	got := make(map[string]int)
	c.Range(func(k string, v int) { got[k] = v })

	if len(got) != len(want) {
		t.Fatalf("Range visited %d entries, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Range got[%q] = %d, want %d", k, got[k], v)
		}
	}
}

// TestConcurrent exercises the cache from many goroutines under race.
func TestConcurrent(t *testing.T) {
	c := NewSharded[string, int](16, StringHasher)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("key-%d", i%32)
				if i%3 == 0 {
					c.Set(key, g)
				} else {
					c.Get(key)
				}
			}
		}(g)
	}
	wg.Wait()
}
