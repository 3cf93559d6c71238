package device

import (
	"errors"
	"math"
	"testing"

	"github.com/gogpu/gcl/driver"
	"github.com/gogpu/gcl/driver/null"
)

// TestHeapAllocBlock tests block carving and alignment.
func TestHeapAllocBlock(t *testing.T) {
	a := null.New()
	defer a.Close()

	h, err := newHeap(a, 1<<20, false)
	if err != nil {
		t.Fatalf("newHeap() error = %v", err)
	}
	defer h.destroy()

	tests := []struct {
		name     string
		size     uint64
		wantSize uint64
		wantErr  error
	}{
		{name: "aligned", size: 512, wantSize: 512},
		{name: "rounded up", size: 100, wantSize: 256},
		{name: "exact align", size: 256, wantSize: 256},
		{name: "zero", size: 0, wantErr: driver.ErrInvalidSize},
		{name: "too large", size: 2 << 20, wantErr: driver.ErrOutOfMemory},
	}

	var prevEnd uint64
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blk, err := h.AllocBlock(tt.size)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("AllocBlock() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("AllocBlock() error = %v", err)
			}
			if blk.Size() != tt.wantSize {
				t.Errorf("Size() = %d, want %d", blk.Size(), tt.wantSize)
			}
			if blk.Offset() < prevEnd {
				t.Errorf("Offset() = %d overlaps previous block end %d", blk.Offset(), prevEnd)
			}
			prevEnd = blk.Offset() + blk.Size()
		})
	}
}

// TestHeapAllocBlockHugeRequest tests that a request whose aligned
// size would wrap past zero fails as out of memory, not as a
// zero-size block.
func TestHeapAllocBlockHugeRequest(t *testing.T) {
	a := null.New()
	defer a.Close()

	h, err := newHeap(a, 1<<20, false)
	if err != nil {
		t.Fatalf("newHeap() error = %v", err)
	}
	defer h.destroy()

	if _, err := h.AllocBlock(math.MaxUint64 - 100); !errors.Is(err, driver.ErrOutOfMemory) {
		t.Fatalf("AllocBlock(huge) error = %v, want ErrOutOfMemory", err)
	}
	if got := h.FreeBytes(); got != h.Size() {
		t.Errorf("FreeBytes() = %d after failed alloc, want %d", got, h.Size())
	}
}

// TestHeapFreeCoalesce tests that freed neighbors merge back into one
// span.
func TestHeapFreeCoalesce(t *testing.T) {
	a := null.New()
	defer a.Close()

	h, err := newHeap(a, 1<<16, false)
	if err != nil {
		t.Fatalf("newHeap() error = %v", err)
	}
	defer h.destroy()

	var blocks []*HeapBlock
	for i := 0; i < 4; i++ {
		blk, err := h.AllocBlock(4096)
		if err != nil {
			t.Fatalf("AllocBlock() error = %v", err)
		}
		blocks = append(blocks, blk)
	}

	// Free out of order; the heap must coalesce back to a single span.
	for _, i := range []int{2, 0, 3, 1} {
		h.FreeBlock(blocks[i])
	}

	if got := h.FreeBytes(); got != h.Size() {
		t.Fatalf("FreeBytes() = %d after freeing everything, want %d", got, h.Size())
	}

	// The full heap must be allocatable as one block again.
	blk, err := h.AllocBlock(h.Size())
	if err != nil {
		t.Fatalf("AllocBlock(full heap) error = %v", err)
	}
	h.FreeBlock(blk)
}

// TestHeapFirstFitReuse tests that a freed hole is reused.
func TestHeapFirstFitReuse(t *testing.T) {
	a := null.New()
	defer a.Close()

	h, err := newHeap(a, 1<<16, false)
	if err != nil {
		t.Fatalf("newHeap() error = %v", err)
	}
	defer h.destroy()

	b1, _ := h.AllocBlock(4096)
	b2, _ := h.AllocBlock(4096)
	if b2 == nil {
		t.Fatal("AllocBlock() returned nil block")
	}

	firstOffset := b1.Offset()
	h.FreeBlock(b1)

	b3, err := h.AllocBlock(2048)
	if err != nil {
		t.Fatalf("AllocBlock() error = %v", err)
	}
	if b3.Offset() != firstOffset {
		t.Errorf("Offset() = %d, want reuse of freed hole at %d", b3.Offset(), firstOffset)
	}
}

// TestHeapReallocate tests backing replacement and failure isolation.
func TestHeapReallocate(t *testing.T) {
	a := null.NewWithLimit(4 << 20)
	defer a.Close()

	h, err := newHeap(a, 1<<20, false)
	if err != nil {
		t.Fatalf("newHeap() error = %v", err)
	}
	defer h.destroy()

	oldAddr := h.Resource().Address()

	if err := h.Reallocate(2<<20, false); err != nil {
		t.Fatalf("Reallocate() error = %v", err)
	}
	if h.Size() != 2<<20 {
		t.Errorf("Size() = %d, want %d", h.Size(), 2<<20)
	}
	if h.Resource().Address() == oldAddr {
		t.Error("Reallocate() kept the old backing resource")
	}
	if h.FreeBytes() != h.Size() {
		t.Errorf("FreeBytes() = %d after reallocation, want %d", h.FreeBytes(), h.Size())
	}

	// A failed reallocation must leave the current backing intact.
	if err := h.Reallocate(64<<20, false); !errors.Is(err, driver.ErrOutOfMemory) {
		t.Fatalf("Reallocate(too big) error = %v, want ErrOutOfMemory", err)
	}
	if h.Size() != 2<<20 {
		t.Errorf("Size() = %d after failed reallocation, want %d", h.Size(), 2<<20)
	}
	if _, err := h.AllocBlock(4096); err != nil {
		t.Errorf("AllocBlock() after failed reallocation error = %v", err)
	}
}
