// Package device implements the resource allocation and caching layer
// of a gcl compute device: the global memory heap, the resource reuse
// cache, the transfer buffer pools, the shader resource descriptor
// pool, the virtual address index, the map target cache, and the
// shared scratch allocator.
//
// The package is a passive service: command-issuing queues call into
// it concurrently from their own goroutines. Locking is per domain
// (async ops, queue list, scratch, map cache, VA cache, SRD pool),
// never one big lock; no operation acquires two of these except the
// scratch allocator and queue close, which take the scratch lock
// before the queue-list lock.
package device

import (
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/gcl/driver"
)

// DefaultHeapSize is the default size of the global heap (64 MB).
const DefaultHeapSize = 64 << 20

// mapTargetAlign is the allocation granularity of map targets.
const mapTargetAlign = 4096

// Config holds device construction parameters. The zero value selects
// defaults for every field.
type Config struct {
	// HeapSize is the global heap size in bytes.
	HeapSize uint64

	// RemoteHeap places the global heap in host-visible memory.
	RemoteHeap bool

	// XferBufSize is the size of one transfer staging buffer.
	XferBufSize uint64

	// SrdSize is the size of one shader resource descriptor.
	SrdSize uint64

	// SrdBufSize is the size of one descriptor chunk buffer.
	SrdBufSize uint64

	// CacheBudget bounds the total bytes held by the resource cache.
	CacheBudget uint64

	// CacheEntries bounds the number of resources held by the cache.
	CacheEntries int

	// MapCacheSize bounds the number of cached map targets.
	MapCacheSize int
}

// Stats aggregates the device's component statistics.
type Stats struct {
	HeapSize     uint64
	HeapFree     uint64
	Cache        CacheStats
	VAEntries    int
	MapTargets   int
	SrdChunks    int
	SrdAllocated int
	Queues       int
	ScratchSize  uint64
	XferReadOut  int
	XferWriteOut int
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("device[heap %d/%d KB free, %s, %d va, %d map, %d srd chunks, %d queues, scratch %d KB]",
		s.HeapFree/1024, s.HeapSize/1024, s.Cache, s.VAEntries, s.MapTargets,
		s.SrdChunks, s.Queues, s.ScratchSize/1024)
}

// Device owns the allocation and caching subsystem and exposes it to
// the command-issuing queue layer. It exclusively owns each component;
// all of them are created with the device and destroyed together at
// Close (the device is the arena).
type Device struct {
	adapter driver.Adapter
	cfg     Config

	mu     sync.Mutex // guards closed and lazy heap init state
	closed bool

	// lockAsyncOps serializes heap growth and any operation that
	// mutates a backing store referenced by in-flight memory objects.
	lockAsyncOps sync.Mutex
	heap         *Heap

	resCache *ResourceCache

	xferRead  *XferBuffers
	xferWrite *XferBuffers

	srds *SrdManager

	vaMu sync.Mutex
	va   vaCache

	mapCacheMu sync.Mutex
	mapCache   *mapCache

	queuesMu   sync.Mutex
	queueSlots []*Queue

	scratchMu     sync.Mutex
	globalScratch *Resource
	scratchPer    uint64 // current per-queue scratch size
}

// New creates a device on top of the given driver adapter. The global
// heap is allocated lazily on first use; everything else is ready
// immediately.
func New(adapter driver.Adapter, cfg Config) (*Device, error) {
	if adapter == nil {
		return nil, fmt.Errorf("gcl: nil driver adapter")
	}
	if cfg.HeapSize == 0 {
		cfg.HeapSize = DefaultHeapSize
	}

	d := &Device{adapter: adapter, cfg: cfg}
	d.resCache = newResourceCache(adapter, cfg.CacheBudget, cfg.CacheEntries)
	d.xferRead = newXferBuffers(d, driver.MemoryStagingRead, cfg.XferBufSize)
	d.xferWrite = newXferBuffers(d, driver.MemoryStagingWrite, cfg.XferBufSize)
	d.srds = newSrdManager(d, cfg.SrdSize, cfg.SrdBufSize)
	d.mapCache = newMapCache(cfg.MapCacheSize)

	slogger().Info("gcl: device created", "adapter", adapter.Name())
	return d, nil
}

// Adapter returns the underlying driver adapter.
func (d *Device) Adapter() driver.Adapter { return d.adapter }

// allocResource allocates a device resource, consulting the resource
// cache before the native driver.
func (d *Device) allocResource(typ driver.MemoryType, size uint64) (*Resource, error) {
	if res := d.resCache.TryReuse(typ, size); res != nil {
		return res, nil
	}
	buf, err := d.adapter.AllocBuffer(typ, size)
	if err != nil {
		return nil, err
	}
	return &Resource{typ: typ, size: size, buf: buf, state: ResourceInUse}, nil
}

// freeResource releases a resource into the resource cache; the cache
// decides whether it is kept or truly freed.
func (d *Device) freeResource(res *Resource) {
	if res == nil {
		return
	}
	d.resCache.Release(res)
}

// AllocMemory allocates an addressable memory object and registers its
// address range in the VA cache.
func (d *Device) AllocMemory(typ driver.MemoryType, size uint64) (*Resource, error) {
	res, err := d.allocResource(typ, size)
	if err != nil {
		return nil, err
	}

	d.vaMu.Lock()
	err = d.va.add(res)
	d.vaMu.Unlock()
	if err != nil {
		// Overlap means the calling layer handed out aliased memory;
		// log it and keep the allocation usable (best effort).
		slogger().Warn("gcl: VA registration failed", "err", err)
	}
	return res, nil
}

// FreeMemory removes the memory object from the VA cache and releases
// it.
func (d *Device) FreeMemory(res *Resource) {
	if res == nil {
		return
	}
	d.vaMu.Lock()
	d.va.remove(res)
	d.vaMu.Unlock()
	d.freeResource(res)
}

// AddVACache registers the address range of a memory object that was
// not allocated through AllocMemory (an imported or view resource).
// Overlap with a live range is a logic error in the calling layer and
// is rejected.
func (d *Device) AddVACache(res *Resource) error {
	d.vaMu.Lock()
	defer d.vaMu.Unlock()
	return d.va.add(res)
}

// RemoveVACache deletes the VA cache entry for res, if any.
func (d *Device) RemoveVACache(res *Resource) {
	d.vaMu.Lock()
	defer d.vaMu.Unlock()
	d.va.remove(res)
}

// LookupMemoryAtAddress finds the memory object whose address range
// contains ptr, returning it with the offset of ptr inside it. A miss
// is a normal result: ok is false and no error is involved.
func (d *Device) LookupMemoryAtAddress(ptr uint64) (res *Resource, offset uint64, ok bool) {
	d.vaMu.Lock()
	defer d.vaMu.Unlock()
	return d.va.find(ptr)
}

// AcquireTransferBuffer returns a staging buffer for the given
// transfer direction, blocking if the pool is exhausted.
func (d *Device) AcquireTransferBuffer(dir TransferDirection) (*Resource, error) {
	return d.xfer(dir).Acquire()
}

// ReleaseTransferBuffer returns a staging buffer to its pool and wakes
// one blocked acquirer.
func (d *Device) ReleaseTransferBuffer(dir TransferDirection, buf *Resource) {
	d.xfer(dir).Release(buf)
}

func (d *Device) xfer(dir TransferDirection) *XferBuffers {
	if dir == TransferRead {
		return d.xferRead
	}
	return d.xferWrite
}

// AllocSrdSlot allocates a shader resource descriptor slot, returning
// its id and host-visible bytes.
func (d *Device) AllocSrdSlot() (SrdSlot, []byte, error) {
	return d.srds.AllocSlot()
}

// FreeSrdSlot releases a descriptor slot.
func (d *Device) FreeSrdSlot(slot SrdSlot) {
	d.srds.FreeSlot(slot)
}

// FindOrCreateMapTarget returns a host-visible buffer of at least size
// bytes for use as a non-blocking map target, reusing a cached one
// when possible.
func (d *Device) FindOrCreateMapTarget(size uint64) (*Resource, error) {
	d.mapCacheMu.Lock()
	res := d.mapCache.findTarget(size)
	d.mapCacheMu.Unlock()
	if res != nil {
		return res, nil
	}

	// Rounding up must not wrap around zero.
	if size > math.MaxUint64-(mapTargetAlign-1) {
		return nil, fmt.Errorf("%w: map target of %d bytes", driver.ErrOutOfMemory, size)
	}
	size = (size + mapTargetAlign - 1) &^ (mapTargetAlign - 1)
	return d.allocResource(driver.MemoryRemote, size)
}

// ReleaseMapTarget returns a map target to the cache. If the cache is
// full, the oldest cached target is truly released.
func (d *Device) ReleaseMapTarget(res *Resource) {
	if res == nil {
		return
	}

	d.mapCacheMu.Lock()
	evicted := d.mapCache.addTarget(res)
	d.mapCacheMu.Unlock()

	if evicted != nil {
		d.freeResource(evicted)
	}
}

// GetOrAllocateGlobalHeapBlock carves a block out of the global heap,
// initializing the heap on first use. Failure is an allocation
// failure result, not a crash.
func (d *Device) GetOrAllocateGlobalHeapBlock(size uint64) (*HeapBlock, error) {
	d.lockAsyncOps.Lock()
	defer d.lockAsyncOps.Unlock()

	if err := d.initHeapLocked(); err != nil {
		return nil, err
	}
	return d.heap.AllocBlock(size)
}

// FreeGlobalHeapBlock returns a heap block.
func (d *Device) FreeGlobalHeapBlock(blk *HeapBlock) {
	d.lockAsyncOps.Lock()
	defer d.lockAsyncOps.Unlock()
	if d.heap != nil {
		d.heap.FreeBlock(blk)
	}
}

// ReallocateHeap replaces the global heap's backing store. All
// previously issued blocks become invalid; the calling layer must
// have stalled every queue that references them. The driver is
// stalled here as well before the old store is dropped.
func (d *Device) ReallocateHeap(newSize uint64, remote bool) error {
	d.lockAsyncOps.Lock()
	defer d.lockAsyncOps.Unlock()

	if d.heap == nil {
		var err error
		d.heap, err = newHeap(d.adapter, newSize, remote)
		return err
	}

	d.adapter.StallAll()
	return d.heap.Reallocate(newSize, remote)
}

// Heap returns the global heap, or nil before first use.
func (d *Device) Heap() *Heap {
	d.lockAsyncOps.Lock()
	defer d.lockAsyncOps.Unlock()
	return d.heap
}

// initHeapLocked initializes heap resources if uninitialized. Caller
// holds lockAsyncOps.
func (d *Device) initHeapLocked() error {
	if d.heap != nil {
		return nil
	}
	h, err := newHeap(d.adapter, d.cfg.HeapSize, d.cfg.RemoteHeap)
	if err != nil {
		return err
	}
	d.heap = h
	slogger().Info("gcl: global heap initialized", "bytes", d.cfg.HeapSize)
	return nil
}

// CreateProgram builds a kernel program through the driver.
func (d *Device) CreateProgram(name, source string) (driver.Program, error) {
	return d.adapter.CompileProgram(name, source)
}

// GlobalFreeMemory reports free device memory, when the driver can
// tell.
func (d *Device) GlobalFreeMemory() (uint64, bool) {
	return d.adapter.GlobalFreeMemory()
}

// ResourceCacheStats returns the resource cache counters.
func (d *Device) ResourceCacheStats() CacheStats {
	return d.resCache.Stats()
}

// Stats returns a snapshot of the device's component statistics.
func (d *Device) Stats() Stats {
	var s Stats

	d.lockAsyncOps.Lock()
	if d.heap != nil {
		s.HeapSize = d.heap.Size()
		s.HeapFree = d.heap.FreeBytes()
	}
	d.lockAsyncOps.Unlock()

	s.Cache = d.resCache.Stats()

	d.vaMu.Lock()
	s.VAEntries = d.va.len()
	d.vaMu.Unlock()

	d.mapCacheMu.Lock()
	s.MapTargets = d.mapCache.len()
	d.mapCacheMu.Unlock()

	s.SrdChunks = d.srds.Chunks()
	s.SrdAllocated = d.srds.Allocated()
	s.Queues = d.NumQueues()
	s.ScratchSize = d.GlobalScratchSize()
	s.XferReadOut = d.xferRead.Outstanding()
	s.XferWriteOut = d.xferWrite.Outstanding()
	return s
}

// Close tears the device down: scratch buffers, transfer pools, the
// SRD pool, cached map targets, the heap, and finally the resource
// cache, in reverse order of typical use. The adapter itself is not
// closed; the caller owns it.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.DestroyScratchBuffers()
	d.xferRead.destroy()
	d.xferWrite.destroy()
	d.srds.destroy()

	d.mapCacheMu.Lock()
	targets := d.mapCache.drain()
	d.mapCacheMu.Unlock()
	for _, res := range targets {
		d.freeResource(res)
	}

	d.lockAsyncOps.Lock()
	if d.heap != nil {
		d.heap.destroy()
		d.heap = nil
	}
	d.lockAsyncOps.Unlock()

	// Last: everything released above may have landed in the cache.
	d.resCache.Purge()

	slogger().Info("gcl: device closed")
}
