package device

import (
	"fmt"
	"sync"

	"github.com/gogpu/gcl/driver"
)

// MaxXferBufListSize is the maximum number of transfer buffers that
// may be concurrently outstanding per pool.
const MaxXferBufListSize = 8

// DefaultXferBufSize is the default size of a single transfer buffer
// (1 MB).
const DefaultXferBufSize = 1 << 20

// TransferDirection selects one of the device's two transfer pools.
type TransferDirection int

const (
	// TransferRead moves data device-to-host.
	TransferRead TransferDirection = iota

	// TransferWrite moves data host-to-device.
	TransferWrite
)

// String returns the string representation of a TransferDirection.
func (d TransferDirection) String() string {
	switch d {
	case TransferRead:
		return "Read"
	case TransferWrite:
		return "Write"
	default:
		return fmt.Sprintf("Unknown(%d)", int(d))
	}
}

// XferBuffers is a bounded pool of fixed-size host staging buffers
// used to move data across the host/device boundary.
//
// Buffers are created lazily up to MaxXferBufListSize. Acquire blocks
// once the pool is exhausted until a concurrent Release returns a
// buffer; this is the only intentionally blocking operation in the
// device layer, and it has no fairness guarantee beyond some waiter
// eventually making progress.
type XferBuffers struct {
	dev     *Device
	typ     driver.MemoryType
	bufSize uint64

	mu       sync.Mutex
	cond     *sync.Cond
	free     []*Resource
	acquired int // buffers currently granted to callers
	created  int // buffers ever created
}

// newXferBuffers creates an empty pool. typ must be a staging type.
func newXferBuffers(dev *Device, typ driver.MemoryType, bufSize uint64) *XferBuffers {
	if bufSize == 0 {
		bufSize = DefaultXferBufSize
	}
	x := &XferBuffers{dev: dev, typ: typ, bufSize: bufSize}
	x.cond = sync.NewCond(&x.mu)
	return x
}

// BufSize returns the fixed size of the pool's buffers.
func (x *XferBuffers) BufSize() uint64 { return x.bufSize }

// Acquire returns a transfer buffer. It reuses a free buffer when one
// is available, creates a new one while the pool is below
// MaxXferBufListSize, and otherwise blocks until a Release.
//
// An error is returned only if the pool must grow and the native
// allocation fails while no buffer is outstanding; with buffers
// outstanding, Acquire waits for one instead.
func (x *XferBuffers) Acquire() (*Resource, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for {
		if n := len(x.free); n > 0 {
			buf := x.free[n-1]
			x.free = x.free[:n-1]
			buf.state = ResourceInUse
			x.acquired++
			return buf, nil
		}

		if x.created < MaxXferBufListSize {
			buf, err := x.dev.allocResource(x.typ, x.bufSize)
			if err == nil {
				x.created++
				x.acquired++
				return buf, nil
			}
			if x.acquired == 0 {
				return nil, fmt.Errorf("transfer buffer (%s): %w", x.typ, err)
			}
			// Growth failed but buffers are in flight; fall through
			// and wait for one to come back.
			slogger().Warn("gcl: transfer buffer growth failed, waiting",
				"type", x.typ.String(), "err", err)
		}

		x.cond.Wait()
	}
}

// Release returns a buffer to the free list and wakes one waiter.
func (x *XferBuffers) Release(buf *Resource) {
	if buf == nil {
		return
	}

	x.mu.Lock()
	buf.state = ResourceFree
	x.free = append(x.free, buf)
	x.acquired--
	x.mu.Unlock()

	x.cond.Signal()
}

// Outstanding returns the number of buffers currently granted.
func (x *XferBuffers) Outstanding() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.acquired
}

// destroy releases all pooled buffers. Outstanding buffers are the
// caller's bug; they are logged and leaked rather than yanked from
// under a live holder.
func (x *XferBuffers) destroy() {
	x.mu.Lock()
	free := x.free
	x.free = nil
	outstanding := x.acquired
	x.mu.Unlock()

	if outstanding > 0 {
		slogger().Warn("gcl: transfer pool destroyed with outstanding buffers",
			"type", x.typ.String(), "outstanding", outstanding)
	}
	for _, buf := range free {
		x.dev.freeResource(buf)
	}
}
