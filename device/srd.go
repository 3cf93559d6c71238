package device

import (
	"fmt"
	"sync"

	"github.com/gogpu/gcl/driver"
	"github.com/gogpu/gcl/internal/bitset"
)

// SRD manager defaults.
const (
	// DefaultSrdSize is the size of a single shader resource
	// descriptor in bytes.
	DefaultSrdSize = 64

	// DefaultSrdBufSize is the size of one descriptor chunk buffer
	// (64 KB, 1024 descriptors at the default SRD size).
	DefaultSrdBufSize = 64 << 10
)

// SrdSlot identifies an allocated descriptor slot. It encodes the
// chunk index in the high 32 bits and the slot index within the chunk
// in the low 32 bits.
type SrdSlot uint64

func makeSrdSlot(chunk, index int) SrdSlot {
	return SrdSlot(uint64(chunk)<<32 | uint64(uint32(index)))
}

func (s SrdSlot) chunk() int { return int(s >> 32) }
func (s SrdSlot) index() int { return int(uint32(s)) }

// srdChunk is one fixed-capacity slab of descriptor slots with bitmap
// occupancy. Invariant: bit i set iff slot i is currently allocated.
type srdChunk struct {
	mem      *Resource
	occupied *bitset.Set
}

// SrdManager is a fixed-slot allocator for the shader resource
// descriptors consumed by executing kernels. Slots live in
// host-visible chunk buffers; the pool grows by whole chunks and
// never shrinks during the device lifetime.
//
// All operations are serialized by a single pool-wide lock,
// independent of every other device lock. A slot's backing bytes stay
// valid (stable address) from AllocSlot until the matching FreeSlot.
type SrdManager struct {
	dev      *Device
	srdSize  uint64
	bufSize  uint64
	perChunk int

	mu     sync.Mutex
	chunks []*srdChunk
}

// newSrdManager creates the manager. Zero sizes select the defaults;
// bufSize is rounded down to a whole number of descriptors.
func newSrdManager(dev *Device, srdSize, bufSize uint64) *SrdManager {
	if srdSize == 0 {
		srdSize = DefaultSrdSize
	}
	if bufSize < srdSize {
		bufSize = DefaultSrdBufSize
	}
	return &SrdManager{
		dev:      dev,
		srdSize:  srdSize,
		bufSize:  bufSize,
		perChunk: int(bufSize / srdSize),
	}
}

// SlotsPerChunk returns the number of descriptor slots one chunk holds.
func (m *SrdManager) SlotsPerChunk() int { return m.perChunk }

// Chunks returns the current number of chunks in the pool.
func (m *SrdManager) Chunks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks)
}

// AllocSlot allocates a descriptor slot and returns its id together
// with the slot's host-visible bytes (srdSize long). Chunks are
// scanned in order for the first free bit; when every chunk is full a
// new one is appended.
func (m *SrdManager) AllocSlot() (SrdSlot, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ci, chunk := range m.chunks {
		i := chunk.occupied.FirstClear()
		if i < 0 {
			continue
		}
		chunk.occupied.Set(i)
		return makeSrdSlot(ci, i), m.slotBytes(chunk, i), nil
	}

	// Every chunk is full: grow the pool by one chunk. This is the
	// only internal retry before declaring exhaustion.
	mem, err := m.dev.allocResource(driver.MemoryRemote, m.bufSize)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrSrdPoolExhausted, err)
	}
	chunk := &srdChunk{mem: mem, occupied: bitset.New(m.perChunk)}
	m.chunks = append(m.chunks, chunk)

	chunk.occupied.Set(0)
	return makeSrdSlot(len(m.chunks)-1, 0), m.slotBytes(chunk, 0), nil
}

// FreeSlot releases a descriptor slot. Freeing a slot that is not
// allocated is a bug in the calling layer; it is logged and ignored.
func (m *SrdManager) FreeSlot(slot SrdSlot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ci, i := slot.chunk(), slot.index()
	if ci >= len(m.chunks) || i >= m.perChunk {
		slogger().Error("gcl: free of invalid SRD slot", "chunk", ci, "index", i)
		return
	}
	chunk := m.chunks[ci]
	if !chunk.occupied.Test(i) {
		slogger().Error("gcl: double free of SRD slot", "chunk", ci, "index", i)
		return
	}
	chunk.occupied.Clear(i)
}

// Allocated returns the total number of allocated slots.
func (m *SrdManager) Allocated() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, chunk := range m.chunks {
		n += chunk.occupied.Count()
	}
	return n
}

func (m *SrdManager) slotBytes(chunk *srdChunk, i int) []byte {
	off := uint64(i) * m.srdSize
	return chunk.mem.Host()[off : off+m.srdSize]
}

// destroy releases every chunk buffer.
func (m *SrdManager) destroy() {
	m.mu.Lock()
	chunks := m.chunks
	m.chunks = nil
	m.mu.Unlock()

	for _, chunk := range chunks {
		m.dev.freeResource(chunk.mem)
	}
}
