// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package driver defines the capability interface between the gcl
// device layer and a native GPU driver.
//
// The device layer never talks to hardware directly. Everything it
// needs from a driver is expressed by [Adapter]: allocate and free raw
// memory buffers, compile kernel programs, stall execution, and report
// free memory. Two implementations ship with gcl:
//   - driver/null: an offline adapter with host-backed buffers, usable
//     without any GPU (and in tests)
//   - driver/native: a real adapter on top of gogpu/wgpu HAL
//
// The variant is selected at construction of the device, not by build
// tags or inheritance.
package driver

// Buffer is an opaque handle to a single native memory allocation.
//
// Address returns the base device virtual address of the allocation.
// Addresses of live buffers never overlap; the device layer indexes
// them by range.
//
// Host returns the host-visible backing bytes for remote and staging
// buffers, and nil for device-local ones. The slice stays valid until
// the buffer is freed.
type Buffer interface {
	Size() uint64
	Address() uint64
	Host() []byte
}

// Program is an opaque handle to a loaded kernel program.
type Program interface {
	// Name returns the debug name the program was created with.
	Name() string

	// Destroy releases the program's native resources.
	Destroy()
}

// Adapter is the set of driver capabilities the device layer consumes.
//
// Implementations must be safe for concurrent use: the device layer
// calls AllocBuffer and FreeBuffer from multiple queue goroutines
// without external locking.
type Adapter interface {
	// Name returns a human-readable adapter identifier.
	Name() string

	// AllocBuffer allocates a native buffer of the given type and size.
	// Failure means the device is out of memory; it is returned, never
	// fatal.
	AllocBuffer(typ MemoryType, size uint64) (Buffer, error)

	// FreeBuffer releases a buffer previously returned by AllocBuffer.
	FreeBuffer(buf Buffer)

	// CompileProgram builds a kernel program from WGSL source.
	CompileProgram(name, source string) (Program, error)

	// StallAll blocks until all previously submitted work has
	// completed. The device layer calls it before reallocating memory
	// that in-flight commands may reference.
	StallAll()

	// GlobalFreeMemory reports the amount of free device memory in
	// bytes. The second result is false if the adapter cannot tell.
	GlobalFreeMemory() (uint64, bool)

	// Close releases the adapter. Buffers and programs must be freed
	// before Close.
	Close()
}
