// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package driver

import (
	"errors"
	"fmt"
)

// Driver errors shared by all adapter implementations.
var (
	// ErrOutOfMemory is returned when a native allocation fails.
	ErrOutOfMemory = errors.New("gcl: device out of memory")

	// ErrAdapterClosed is returned when operating on a closed adapter.
	ErrAdapterClosed = errors.New("gcl: adapter closed")

	// ErrInvalidSize is returned for zero-sized allocation requests.
	ErrInvalidSize = errors.New("gcl: invalid buffer size")

	// ErrEmptyProgram is returned when compiling an empty source.
	ErrEmptyProgram = errors.New("gcl: empty program source")
)

// MemoryType classifies a native allocation by placement and direction.
type MemoryType int

const (
	// MemoryLocal is device-local memory, not visible to the host.
	MemoryLocal MemoryType = iota

	// MemoryRemote is host-visible device memory.
	MemoryRemote

	// MemoryStagingRead is a host staging buffer for device-to-host
	// transfers.
	MemoryStagingRead

	// MemoryStagingWrite is a host staging buffer for host-to-device
	// transfers.
	MemoryStagingWrite
)

// String returns the string representation of a MemoryType.
func (t MemoryType) String() string {
	switch t {
	case MemoryLocal:
		return "Local"
	case MemoryRemote:
		return "Remote"
	case MemoryStagingRead:
		return "StagingRead"
	case MemoryStagingWrite:
		return "StagingWrite"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// HostVisible reports whether buffers of this type carry host-visible
// backing bytes.
func (t MemoryType) HostVisible() bool {
	return t != MemoryLocal
}
