// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native provides a driver adapter backed by gogpu/wgpu/hal.
// It bridges the driver abstraction to a real GPU device owned by the
// host application.
package native

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gcl/driver"
)

// addressAlign is the allocation granularity of driver addresses. The
// HAL does not expose GPU virtual addresses, so the adapter assigns
// process-local ones with the same non-overlap guarantee.
const addressAlign = 4096

// Adapter implements driver.Adapter on top of gogpu/wgpu/hal.
//
// The adapter RECEIVES its device and queue from the host application;
// it does not create them and does not release them on Close. This
// keeps GPU ownership with the host, matching the gpucontext
// integration model.
//
// Adapter is safe for concurrent use.
type Adapter struct {
	mu     sync.Mutex
	device hal.Device
	queue  hal.Queue
	limits gputypes.Limits

	used   uint64
	closed bool

	nextAddr atomic.Uint64

	shaders *shaderCache
}

// New creates an adapter wrapping the given device and queue. If
// limits is nil, default limits are used.
func New(device hal.Device, queue hal.Queue, limits *gputypes.Limits) (*Adapter, error) {
	if device == nil {
		return nil, fmt.Errorf("gcl: nil hal device")
	}
	if queue == nil {
		return nil, fmt.Errorf("gcl: nil hal queue")
	}

	var lim gputypes.Limits
	if limits != nil {
		lim = *limits
	} else {
		lim = gputypes.DefaultLimits()
	}

	a := &Adapter{
		device:  device,
		queue:   queue,
		limits:  lim,
		shaders: newShaderCache(),
	}
	a.nextAddr.Store(addressAlign) // keep address 0 invalid
	return a, nil
}

// NewFromHandle creates an adapter from a host-provided device handle.
// The handle's Device and Queue must be gogpu/wgpu/hal values; handles
// from other backends are rejected.
func NewFromHandle(h driver.DeviceHandle, limits *gputypes.Limits) (*Adapter, error) {
	if h == nil {
		return nil, fmt.Errorf("gcl: nil device handle")
	}
	device, ok := h.Device().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("gcl: device handle does not carry a hal device")
	}
	queue, ok := h.Queue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("gcl: device handle does not carry a hal queue")
	}
	return New(device, queue, limits)
}

// Name returns the adapter identifier.
func (a *Adapter) Name() string { return "native" }

// usageFor maps a driver memory type to HAL buffer usage flags.
func usageFor(typ driver.MemoryType) gputypes.BufferUsage {
	switch typ {
	case driver.MemoryLocal:
		return gputypes.BufferUsageStorage |
			gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	case driver.MemoryRemote:
		return gputypes.BufferUsageStorage | gputypes.BufferUsageMapWrite |
			gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	case driver.MemoryStagingRead:
		return gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	case driver.MemoryStagingWrite:
		return gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc
	default:
		return gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	}
}

// AllocBuffer creates a HAL buffer. Host-visible types carry a host
// shadow slice; Flush pushes it to the GPU.
func (a *Adapter) AllocBuffer(typ driver.MemoryType, size uint64) (driver.Buffer, error) {
	if size == 0 {
		return nil, driver.ErrInvalidSize
	}
	if size > a.limits.MaxBufferSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds device limit %d",
			driver.ErrOutOfMemory, size, a.limits.MaxBufferSize)
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, driver.ErrAdapterClosed
	}
	a.mu.Unlock()

	// Copy operations require 4-byte sizes.
	const copyAlign = 4
	aligned := (size + copyAlign - 1) &^ (copyAlign - 1)

	halBuf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: typ.String(),
		Size:  aligned,
		Usage: usageFor(typ),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", driver.ErrOutOfMemory, err)
	}

	buf := &buffer{
		adapter: a,
		hal:     halBuf,
		typ:     typ,
		size:    aligned,
	}
	if typ.HostVisible() {
		buf.host = make([]byte, aligned)
	}

	span := (aligned + addressAlign - 1) &^ (addressAlign - 1)
	buf.addr = a.nextAddr.Add(span) - span

	a.mu.Lock()
	a.used += aligned
	a.mu.Unlock()

	return buf, nil
}

// FreeBuffer destroys a HAL buffer. Buffers not created by this
// adapter are ignored.
func (a *Adapter) FreeBuffer(buf driver.Buffer) {
	b, ok := buf.(*buffer)
	if !ok || b == nil || b.adapter != a {
		return
	}

	a.mu.Lock()
	if b.freed {
		a.mu.Unlock()
		return
	}
	b.freed = true
	a.used -= b.size
	a.mu.Unlock()

	a.device.DestroyBuffer(b.hal)
	b.host = nil
}

// Flush pushes a host-visible buffer's shadow bytes to the GPU.
// Buffers without host shadows are ignored.
func (a *Adapter) Flush(buf driver.Buffer) {
	b, ok := buf.(*buffer)
	if !ok || b == nil || b.adapter != a || b.host == nil || b.freed {
		return
	}
	_ = a.queue.WriteBuffer(b.hal, 0, b.host)
}

// StallAll blocks until all submitted GPU work has completed. The HAL
// tracks submission fences internally, so device idle is the strongest
// serialization point available.
func (a *Adapter) StallAll() {
	_ = a.device.WaitIdle()
}

// GlobalFreeMemory reports remaining capacity against the device's
// buffer size limit.
func (a *Adapter) GlobalFreeMemory() (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.used >= a.limits.MaxBufferSize {
		return 0, true
	}
	return a.limits.MaxBufferSize - a.used, true
}

// Limits returns the device capability limits.
func (a *Adapter) Limits() gputypes.Limits { return a.limits }

// Close marks the adapter closed. The device and queue belong to the
// host and are not released here.
func (a *Adapter) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.shaders.clear()
}

// buffer is a HAL-backed driver buffer.
type buffer struct {
	adapter *Adapter
	hal     hal.Buffer
	typ     driver.MemoryType
	size    uint64
	addr    uint64
	host    []byte
	freed   bool
}

func (b *buffer) Size() uint64    { return b.size }
func (b *buffer) Address() uint64 { return b.addr }
func (b *buffer) Host() []byte    { return b.host }

var (
	_ driver.Adapter = (*Adapter)(nil)
	_ driver.Buffer  = (*buffer)(nil)
)
