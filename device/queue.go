package device

// Queue is an independent command-issuing execution context (a
// "virtual device"). Multiple queues run as separate goroutines and
// consume the device's services concurrently; the device itself is a
// passive service invoked from queue goroutines.
type Queue struct {
	dev     *Device
	idx     int // slot in the device's queue table
	scratch ScratchBuffer
	closed  bool // guarded by dev.queuesMu
}

// CreateQueue registers a new queue on the device. The queue occupies
// the lowest free slot, which determines its window into the global
// scratch buffer.
func (d *Device) CreateQueue() (*Queue, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrDeviceClosed
	}
	d.mu.Unlock()

	q := &Queue{dev: d}

	d.queuesMu.Lock()
	defer d.queuesMu.Unlock()

	q.idx = -1
	for i, slot := range d.queueSlots {
		if slot == nil {
			q.idx = i
			d.queueSlots[i] = q
			break
		}
	}
	if q.idx == -1 {
		q.idx = len(d.queueSlots)
		d.queueSlots = append(d.queueSlots, q)
	}

	slogger().Debug("gcl: queue created", "slot", q.idx)
	return q, nil
}

// Close unregisters the queue and drops its scratch view. Safe to call
// more than once.
func (q *Queue) Close() {
	d := q.dev

	// Same lock order as the scratch allocator: scratch lock first,
	// then the queue-list lock.
	d.scratchMu.Lock()
	defer d.scratchMu.Unlock()
	d.queuesMu.Lock()
	defer d.queuesMu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	d.queueSlots[q.idx] = nil
	q.scratch = ScratchBuffer{}
}

// Scratch returns the queue's current scratch view. The view is only
// meaningful after EnsureScratchCapacity has been called for this
// queue.
func (q *Queue) Scratch() ScratchBuffer {
	d := q.dev
	d.scratchMu.Lock()
	defer d.scratchMu.Unlock()
	return q.scratch
}

// NumQueues returns the number of active queues on the device.
func (d *Device) NumQueues() int {
	d.queuesMu.Lock()
	defer d.queuesMu.Unlock()

	n := 0
	for _, q := range d.queueSlots {
		if q != nil {
			n++
		}
	}
	return n
}
