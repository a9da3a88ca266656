package uart

import "sync/atomic"

// Counters tracks the serial link fault totals. The Receiver is the
// only writer; any component may read (e.g. the STATUS command or the
// diagnostics server). All counters are monotonically increasing for
// the lifetime of the process.
type Counters struct {
	fifoOverflow atomic.Uint64
	bufferFull   atomic.Uint64
	frameError   atomic.Uint64
	parityError  atomic.Uint64
}

// CounterSnapshot is a point-in-time copy of the fault totals.
type CounterSnapshot struct {
	FifoOverflow uint64 `json:"fifo_overflow"`
	BufferFull   uint64 `json:"buffer_full"`
	FrameError   uint64 `json:"frame_error"`
	ParityError  uint64 `json:"parity_error"`
}

// NewCounters creates a zeroed counter set.
func NewCounters() *Counters {
	return &Counters{}
}

// IncFifoOverflow increments the FIFO overflow total.
func (c *Counters) IncFifoOverflow() { c.fifoOverflow.Add(1) }

// IncBufferFull increments the buffer-full total.
func (c *Counters) IncBufferFull() { c.bufferFull.Add(1) }

// IncFrameError increments the frame error total.
func (c *Counters) IncFrameError() { c.frameError.Add(1) }

// IncParityError increments the parity error total.
func (c *Counters) IncParityError() { c.parityError.Add(1) }

// FifoOverflow returns the FIFO overflow total.
func (c *Counters) FifoOverflow() uint64 { return c.fifoOverflow.Load() }

// BufferFull returns the buffer-full total.
func (c *Counters) BufferFull() uint64 { return c.bufferFull.Load() }

// FrameError returns the frame error total.
func (c *Counters) FrameError() uint64 { return c.frameError.Load() }

// ParityError returns the parity error total.
func (c *Counters) ParityError() uint64 { return c.parityError.Load() }

// Snapshot returns a consistent-enough copy of all four totals.
// Each field is read atomically; the set is not read under one lock,
// which is acceptable for a diagnostics surface.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		FifoOverflow: c.fifoOverflow.Load(),
		BufferFull:   c.bufferFull.Load(),
		FrameError:   c.frameError.Load(),
		ParityError:  c.parityError.Load(),
	}
}
