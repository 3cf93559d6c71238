// Command gclprobe exercises the device resource subsystems against
// the offline null driver and prints the resulting statistics.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gcl"
	"github.com/gogpu/gcl/device"
	"github.com/gogpu/gcl/driver"
	"github.com/gogpu/gcl/driver/null"
)

func main() {
	var (
		heapSize = flag.Uint64("heap", device.DefaultHeapSize, "global heap size in bytes")
		memLimit = flag.Uint64("limit", null.DefaultMemoryLimit, "simulated device memory in bytes")
		allocs   = flag.Int("allocs", 64, "number of memory allocations to cycle")
		queues   = flag.Int("queues", 2, "number of queues to create")
		verbose  = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		gcl.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	adapter := null.NewWithLimit(*memLimit)
	dev, err := device.New(adapter, device.Config{HeapSize: *heapSize})
	if err != nil {
		log.Fatalf("device creation failed: %v", err)
	}
	defer func() {
		dev.Close()
		adapter.Close()
	}()

	if err := exercise(dev, *allocs, *queues); err != nil {
		log.Fatalf("probe failed: %v", err)
	}

	fmt.Println(dev.Stats())
	fmt.Println(adapter.Stats())
}

// exercise drives every device subsystem once: memory allocation with
// address lookup, transfer buffers, SRD slots, map targets, heap
// blocks, scratch sizing, and program creation.
func exercise(dev *device.Device, allocs, queues int) error {
	// Allocation churn exercises the resource cache.
	for i := 0; i < allocs; i++ {
		mem, err := dev.AllocMemory(driver.MemoryRemote, 64<<10)
		if err != nil {
			return fmt.Errorf("alloc %d: %w", i, err)
		}
		if _, _, ok := dev.LookupMemoryAtAddress(mem.Address()); !ok {
			return fmt.Errorf("alloc %d: address %#x not registered", i, mem.Address())
		}
		dev.FreeMemory(mem)
	}

	for _, dir := range []device.TransferDirection{device.TransferRead, device.TransferWrite} {
		buf, err := dev.AcquireTransferBuffer(dir)
		if err != nil {
			return fmt.Errorf("%v transfer buffer: %w", dir, err)
		}
		dev.ReleaseTransferBuffer(dir, buf)
	}

	slot, srd, err := dev.AllocSrdSlot()
	if err != nil {
		return fmt.Errorf("srd slot: %w", err)
	}
	for i := range srd {
		srd[i] = byte(i)
	}
	dev.FreeSrdSlot(slot)

	target, err := dev.FindOrCreateMapTarget(16 << 10)
	if err != nil {
		return fmt.Errorf("map target: %w", err)
	}
	dev.ReleaseMapTarget(target)

	blk, err := dev.GetOrAllocateGlobalHeapBlock(256 << 10)
	if err != nil {
		return fmt.Errorf("heap block: %w", err)
	}
	dev.FreeGlobalHeapBlock(blk)

	for i := 0; i < queues; i++ {
		q, err := dev.CreateQueue()
		if err != nil {
			return fmt.Errorf("queue %d: %w", i, err)
		}
		if err := dev.EnsureScratchCapacity(q, uint32(8*(i+1))); err != nil {
			return fmt.Errorf("queue %d scratch: %w", i, err)
		}
	}

	prog, err := dev.CreateProgram("probe", "kernel probe() {}")
	if err != nil {
		return fmt.Errorf("program: %w", err)
	}
	prog.Destroy()

	return nil
}
