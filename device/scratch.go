package device

import (
	"fmt"

	"github.com/gogpu/gcl/driver"
)

// Scratch sizing constants.
const (
	// scratchWaveSize is the number of work items per wave.
	scratchWaveSize = 64

	// scratchWavesPerQueue is the number of waves a queue may have in
	// flight, each needing its own spill area.
	scratchWavesPerQueue = 32

	// scratchRegSize is the byte size of one scratch register.
	scratchRegSize = 4

	// scratchAlign is the alignment of per-queue scratch regions.
	scratchAlign = 64 << 10
)

// ScratchBuffer describes one queue's view into the global scratch
// allocation: the register demand it has declared, the backing memory
// objects, and its (offset, size) window.
//
// Mutated only by the scratch allocator under the device's scratch
// lock; destroyed when the owning queue closes or the device tears
// down.
type ScratchBuffer struct {
	regNum uint32
	mems   []*Resource
	offset uint64
	size   uint64
}

// RegNum returns the highest register demand declared on this queue.
func (s ScratchBuffer) RegNum() uint32 { return s.regNum }

// Offset returns the queue's byte offset into the global scratch
// buffer.
func (s ScratchBuffer) Offset() uint64 { return s.offset }

// Size returns the size of the queue's scratch window.
func (s ScratchBuffer) Size() uint64 { return s.size }

// scratchSizeFor returns the per-queue scratch size for a register
// demand, aligned to scratchAlign.
func scratchSizeFor(regNum uint32) uint64 {
	if regNum == 0 {
		return 0
	}
	size := uint64(regNum) * scratchRegSize * scratchWaveSize * scratchWavesPerQueue
	return (size + scratchAlign - 1) &^ (scratchAlign - 1)
}

// EnsureScratchCapacity records the queue's register demand and grows
// the global scratch buffer when the maximum demand across all active
// queues no longer fits. Growth performs a full reallocation and
// recomputes every active queue's (offset, size) view; the driver is
// stalled first so no in-flight command references the old
// allocation. The buffer never shrinks on reduced demand, only at
// device teardown.
//
// Failure to grow is fatal for the dispatch and is returned as
// ErrScratchAllocFailed.
func (d *Device) EnsureScratchCapacity(q *Queue, regNum uint32) error {
	if regNum == 0 {
		return nil
	}

	// Lock order: scratch lock, then the queue-list lock.
	d.scratchMu.Lock()
	defer d.scratchMu.Unlock()

	d.queuesMu.Lock()
	if q.closed {
		d.queuesMu.Unlock()
		return ErrQueueClosed
	}
	if regNum > q.scratch.regNum {
		q.scratch.regNum = regNum
	}
	var maxRegs uint32
	slots := 0
	for i, qq := range d.queueSlots {
		if qq == nil {
			continue
		}
		if qq.scratch.regNum > maxRegs {
			maxRegs = qq.scratch.regNum
		}
		slots = i + 1
	}
	queues := make([]*Queue, slots)
	copy(queues, d.queueSlots[:slots])
	d.queuesMu.Unlock()

	per := scratchSizeFor(maxRegs)
	if per < d.scratchPer {
		per = d.scratchPer // monotonic between reallocations
	}
	needed := per * uint64(slots)

	// Reallocate only when total demand outgrows the current buffer.
	// A larger per-queue window over fewer queues still fits and must
	// not trigger a shrinking reallocation.
	var cur uint64
	if d.globalScratch != nil {
		cur = d.globalScratch.Size()
	}
	if needed > cur {
		if err := d.reallocScratch(needed); err != nil {
			return err
		}
	}
	d.scratchPer = per

	for i, qq := range queues {
		if qq == nil {
			continue
		}
		qq.scratch.offset = uint64(i) * per
		qq.scratch.size = per
		qq.scratch.mems = []*Resource{d.globalScratch}
	}
	return nil
}

// reallocScratch replaces the global scratch buffer with one of size
// bytes. Caller holds the scratch lock.
func (d *Device) reallocScratch(size uint64) error {
	// In-flight kernels may still reference the old buffer.
	d.adapter.StallAll()

	buf, err := d.adapter.AllocBuffer(driver.MemoryLocal, size)
	if err != nil {
		return fmt.Errorf("%w: %d bytes: %w", ErrScratchAllocFailed, size, err)
	}

	if d.globalScratch != nil {
		d.globalScratch.state = ResourceFree
		d.adapter.FreeBuffer(d.globalScratch.buf)
	}
	d.globalScratch = &Resource{
		typ:   driver.MemoryLocal,
		size:  size,
		buf:   buf,
		state: ResourceInUse,
	}

	slogger().Debug("gcl: global scratch reallocated", "bytes", size)
	return nil
}

// GlobalScratchSize returns the current size of the global scratch
// buffer, zero when none has been allocated.
func (d *Device) GlobalScratchSize() uint64 {
	d.scratchMu.Lock()
	defer d.scratchMu.Unlock()
	if d.globalScratch == nil {
		return 0
	}
	return d.globalScratch.Size()
}

// DestroyScratchBuffers frees the global scratch buffer and clears
// every queue's view. Only called at teardown; this is the one place
// scratch capacity shrinks.
func (d *Device) DestroyScratchBuffers() {
	d.scratchMu.Lock()
	defer d.scratchMu.Unlock()

	d.queuesMu.Lock()
	for _, qq := range d.queueSlots {
		if qq != nil {
			qq.scratch = ScratchBuffer{}
		}
	}
	d.queuesMu.Unlock()

	if d.globalScratch != nil {
		d.globalScratch.state = ResourceFree
		d.adapter.FreeBuffer(d.globalScratch.buf)
		d.globalScratch = nil
	}
	d.scratchPer = 0
}
