// Package gcl provides device-side resource management for GPU compute.
//
// # Overview
//
// gcl manages the memory and descriptor machinery a compute runtime
// needs on each GPU device: a suballocating global heap, a resource
// reuse cache, pools of staging buffers for host transfers, a shader
// resource descriptor (SRD) pool, reverse address lookup, and a shared
// scratch buffer for register spills. The heavy lifting lives in the
// device package; drivers live under driver.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/gcl/device"
//	    "github.com/gogpu/gcl/driver"
//	    "github.com/gogpu/gcl/driver/null"
//	)
//
//	a := null.New()
//	dev, err := device.New(a, device.Config{})
//	if err != nil {
//	    // handle error
//	}
//	defer dev.Close()
//
//	mem, err := dev.AllocMemory(driver.MemoryRemote, 64<<10)
//
// # Drivers
//
// Two adapters are included: driver/null runs entirely on the host and
// backs tests and offline tooling; driver/native bridges to a real GPU
// through gogpu/wgpu, receiving its device from the host application.
//
// # Concurrency
//
// A Device serves multiple queues concurrently. Each subsystem guards
// its own state, so traffic on one (say, transfer buffers) does not
// serialize against another (say, the SRD pool).
package gcl

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
