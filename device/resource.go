package device

import (
	"fmt"

	"github.com/gogpu/gcl/driver"
)

// ResourceState is the lifecycle state of a device memory resource.
type ResourceState int

const (
	// ResourceFree means the resource has been released to the driver.
	ResourceFree ResourceState = iota

	// ResourceInUse means a caller or pool currently owns the resource.
	ResourceInUse

	// ResourceCached means the resource sits in the resource cache,
	// waiting for a compatible request.
	ResourceCached
)

// String returns the string representation of a ResourceState.
func (s ResourceState) String() string {
	switch s {
	case ResourceFree:
		return "Free"
	case ResourceInUse:
		return "InUse"
	case ResourceCached:
		return "Cached"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Resource is a single device memory allocation with a type and size.
//
// A resource is owned by exactly one holder at a time: the heap, a
// transfer pool free list, the resource cache, or a live caller. The
// owner serializes state transitions; Resource itself carries no lock.
type Resource struct {
	typ   driver.MemoryType
	size  uint64
	buf   driver.Buffer
	state ResourceState
}

// Type returns the resource memory type.
func (r *Resource) Type() driver.MemoryType { return r.typ }

// Size returns the allocation size in bytes.
func (r *Resource) Size() uint64 { return r.size }

// Address returns the base device virtual address.
func (r *Resource) Address() uint64 { return r.buf.Address() }

// Host returns the host-visible backing bytes, or nil for device-local
// resources.
func (r *Resource) Host() []byte { return r.buf.Host() }

// State returns the current lifecycle state.
func (r *Resource) State() ResourceState { return r.state }
