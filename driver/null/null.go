// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package null provides an offline driver adapter with host-backed
// buffers. It implements the full driver.Adapter contract without
// touching any GPU, which makes it the adapter of choice for tests,
// CI, and offline tooling.
package null

import (
	"fmt"
	"sync"

	"github.com/gogpu/gcl/driver"
)

// DefaultMemoryLimit is the simulated device memory size (1 GB).
const DefaultMemoryLimit = 1 << 30

// addressAlign is the allocation granularity of simulated device
// virtual addresses.
const addressAlign = 4096

// Stats reports allocation activity of the adapter.
type Stats struct {
	// Allocs is the total number of AllocBuffer calls that succeeded.
	Allocs uint64

	// Frees is the total number of FreeBuffer calls.
	Frees uint64

	// Live is the number of currently live buffers.
	Live int

	// UsedBytes is the sum of live buffer sizes.
	UsedBytes uint64
}

// String returns a human-readable form of the stats.
func (s Stats) String() string {
	return fmt.Sprintf("null[%d allocs, %d frees, %d live, %d KB used]",
		s.Allocs, s.Frees, s.Live, s.UsedBytes/1024)
}

// Adapter is an offline driver.Adapter. Allocations are plain host
// memory tagged with fake, non-overlapping device addresses, so every
// address-range invariant of the device layer holds exactly as it
// would on hardware.
//
// Adapter is safe for concurrent use.
type Adapter struct {
	mu       sync.Mutex
	limit    uint64
	used     uint64
	nextAddr uint64
	live     map[*buffer]struct{}
	allocs   uint64
	frees    uint64
	closed   bool
}

// New creates an offline adapter with DefaultMemoryLimit of simulated
// device memory.
func New() *Adapter {
	return NewWithLimit(DefaultMemoryLimit)
}

// NewWithLimit creates an offline adapter with the given simulated
// memory limit in bytes. Allocations beyond the limit fail with
// driver.ErrOutOfMemory, which makes out-of-memory paths testable.
func NewWithLimit(limit uint64) *Adapter {
	if limit == 0 {
		limit = DefaultMemoryLimit
	}
	return &Adapter{
		limit:    limit,
		nextAddr: addressAlign, // keep address 0 invalid
		live:     make(map[*buffer]struct{}),
	}
}

// Name returns the adapter identifier.
func (a *Adapter) Name() string { return "null" }

// AllocBuffer allocates a host-backed buffer with a unique simulated
// device address.
func (a *Adapter) AllocBuffer(typ driver.MemoryType, size uint64) (driver.Buffer, error) {
	if size == 0 {
		return nil, driver.ErrInvalidSize
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, driver.ErrAdapterClosed
	}
	// Subtraction form so huge sizes cannot wrap the comparison.
	if size > a.limit-a.used {
		return nil, fmt.Errorf("%w: need %d bytes, %d of %d in use",
			driver.ErrOutOfMemory, size, a.used, a.limit)
	}

	buf := &buffer{
		typ:  typ,
		size: size,
		addr: a.nextAddr,
	}
	if typ.HostVisible() {
		buf.host = make([]byte, size)
	}

	// Advance the fake address space so ranges never overlap.
	span := (size + addressAlign - 1) &^ (addressAlign - 1)
	a.nextAddr += span

	a.used += size
	a.allocs++
	a.live[buf] = struct{}{}

	return buf, nil
}

// FreeBuffer releases a buffer. Unknown buffers are ignored.
func (a *Adapter) FreeBuffer(buf driver.Buffer) {
	b, ok := buf.(*buffer)
	if !ok || b == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, live := a.live[b]; !live {
		return
	}
	delete(a.live, b)
	a.used -= b.size
	a.frees++
	b.host = nil
}

// CompileProgram returns a stub program handle. The source is validated
// for presence only; no compilation happens offline.
func (a *Adapter) CompileProgram(name, source string) (driver.Program, error) {
	if source == "" {
		return nil, driver.ErrEmptyProgram
	}

	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return nil, driver.ErrAdapterClosed
	}

	return &program{name: name}, nil
}

// StallAll is a no-op: the null adapter never has work in flight.
func (a *Adapter) StallAll() {}

// GlobalFreeMemory reports the remaining simulated memory.
func (a *Adapter) GlobalFreeMemory() (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.limit - a.used, true
}

// Stats returns current allocation statistics.
func (a *Adapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Allocs:    a.allocs,
		Frees:     a.frees,
		Live:      len(a.live),
		UsedBytes: a.used,
	}
}

// Close marks the adapter closed. Further allocations fail.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}

// buffer is a host-backed simulated device allocation.
type buffer struct {
	typ  driver.MemoryType
	size uint64
	addr uint64
	host []byte
}

func (b *buffer) Size() uint64    { return b.size }
func (b *buffer) Address() uint64 { return b.addr }
func (b *buffer) Host() []byte    { return b.host }

// program is a stub program handle.
type program struct {
	name string
}

func (p *program) Name() string { return p.name }
func (p *program) Destroy()     {}

// Ensure interfaces are satisfied.
var (
	_ driver.Adapter = (*Adapter)(nil)
	_ driver.Buffer  = (*buffer)(nil)
	_ driver.Program = (*program)(nil)
)
