package device

import (
	"fmt"
	"sort"

	"github.com/gogpu/gcl/driver"
)

// HeapBlockAlign is the allocation granularity of heap blocks.
const HeapBlockAlign = 256

// HeapBlock is a carve-out of the global heap's backing resource.
// The heap owns the block; holders reference it but must return it
// through FreeBlock.
type HeapBlock struct {
	offset uint64
	size   uint64
}

// Offset returns the block's byte offset inside the heap resource.
func (b *HeapBlock) Offset() uint64 { return b.offset }

// Size returns the block size in bytes.
func (b *HeapBlock) Size() uint64 { return b.size }

// span is a free region inside the heap, [offset, offset+size).
type span struct {
	offset uint64
	size   uint64
}

// Heap owns the coarse global device memory pool and carves blocks out
// of it. Free regions are kept sorted by offset and coalesced on free,
// first-fit on allocation.
//
// Heap is not thread-safe: the owning Device serializes access through
// its async-ops lock.
type Heap struct {
	adapter  driver.Adapter
	resource *Resource
	free     []span
	size     uint64
}

// newHeap allocates a heap with the given backing size. remote places
// the backing store in host-visible memory.
func newHeap(adapter driver.Adapter, size uint64, remote bool) (*Heap, error) {
	h := &Heap{adapter: adapter}
	if err := h.allocBacking(size, remote); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Heap) allocBacking(size uint64, remote bool) error {
	typ := driver.MemoryLocal
	if remote {
		typ = driver.MemoryRemote
	}
	buf, err := h.adapter.AllocBuffer(typ, size)
	if err != nil {
		return fmt.Errorf("heap backing allocation: %w", err)
	}
	h.resource = &Resource{typ: typ, size: size, buf: buf, state: ResourceInUse}
	h.size = size
	h.free = []span{{offset: 0, size: size}}
	return nil
}

// Resource returns the heap's backing resource.
func (h *Heap) Resource() *Resource { return h.resource }

// Size returns the total heap size in bytes.
func (h *Heap) Size() uint64 { return h.size }

// FreeBytes returns the number of unallocated bytes.
func (h *Heap) FreeBytes() uint64 {
	var n uint64
	for _, s := range h.free {
		n += s.size
	}
	return n
}

// AllocBlock carves a block of at least size bytes out of the heap.
// Failure means the heap is out of space; it propagates as an
// allocation failure, never a crash.
func (h *Heap) AllocBlock(size uint64) (*HeapBlock, error) {
	if size == 0 {
		return nil, driver.ErrInvalidSize
	}
	// Rounding up must not wrap; requests near the top of the address
	// space can never fit anyway.
	if size > h.size {
		return nil, fmt.Errorf("%w: heap block of %d bytes (%d total)",
			driver.ErrOutOfMemory, size, h.size)
	}
	size = (size + HeapBlockAlign - 1) &^ (HeapBlockAlign - 1)

	for i := range h.free {
		if h.free[i].size < size {
			continue
		}
		blk := &HeapBlock{offset: h.free[i].offset, size: size}
		if h.free[i].size == size {
			h.free = append(h.free[:i], h.free[i+1:]...)
		} else {
			h.free[i].offset += size
			h.free[i].size -= size
		}
		return blk, nil
	}

	return nil, fmt.Errorf("%w: heap block of %d bytes (%d free)",
		driver.ErrOutOfMemory, size, h.FreeBytes())
}

// FreeBlock returns a block to the heap, coalescing with adjacent free
// regions.
func (h *Heap) FreeBlock(blk *HeapBlock) {
	if blk == nil || blk.size == 0 {
		return
	}

	i := sort.Search(len(h.free), func(i int) bool {
		return h.free[i].offset > blk.offset
	})
	h.free = append(h.free, span{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = span{offset: blk.offset, size: blk.size}

	// Coalesce with the next span, then the previous one.
	if i+1 < len(h.free) && h.free[i].offset+h.free[i].size == h.free[i+1].offset {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].offset+h.free[i-1].size == h.free[i].offset {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
	}

	blk.size = 0 // mark returned
}

// Reallocate replaces the backing resource with a new one of newSize
// bytes. All previously issued blocks become invalid; callers must
// have quiesced every holder first. On failure the old backing store
// stays intact and usable.
func (h *Heap) Reallocate(newSize uint64, remote bool) error {
	old := h.resource
	if err := h.allocBacking(newSize, remote); err != nil {
		return err
	}
	if old != nil {
		old.state = ResourceFree
		h.adapter.FreeBuffer(old.buf)
	}
	return nil
}

// destroy releases the backing resource.
func (h *Heap) destroy() {
	if h.resource != nil {
		h.resource.state = ResourceFree
		h.adapter.FreeBuffer(h.resource.buf)
		h.resource = nil
	}
	h.free = nil
	h.size = 0
}
