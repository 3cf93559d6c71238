package device

import "errors"

// Device layer errors.
var (
	// ErrDeviceClosed is returned when operating on a closed device.
	ErrDeviceClosed = errors.New("gcl: device closed")

	// ErrOverlappingRange is returned when a memory object's address
	// range overlaps an existing VA cache entry. This indicates a bug
	// in the calling layer, not a recoverable condition.
	ErrOverlappingRange = errors.New("gcl: overlapping virtual address range")

	// ErrScratchAllocFailed is returned when the global scratch buffer
	// cannot grow to the demanded size. In-flight kernels cannot run
	// correctly without it, so callers must treat this as fatal for
	// the dispatch.
	ErrScratchAllocFailed = errors.New("gcl: scratch buffer allocation failed")

	// ErrSrdPoolExhausted is returned when the SRD pool cannot grow a
	// new chunk after all existing slots filled up.
	ErrSrdPoolExhausted = errors.New("gcl: SRD pool exhausted")

	// ErrQueueClosed is returned when using a queue after Close.
	ErrQueueClosed = errors.New("gcl: queue closed")
)
