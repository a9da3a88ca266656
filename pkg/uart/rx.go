package uart

import (
	"context"
	"sync/atomic"
	"time"

	"uartlink/pkg/log"
)

// Driver is the inbound contract the Receiver expects from the serial
// hardware layer: an interrupt-fed event channel plus bounded read,
// input flush, and event reset primitives.
type Driver interface {
	// Events returns the channel of classified hardware events.
	// The producer side must send best-effort and never block.
	Events() <-chan Event

	// ReadBytes reads available input into buf, waiting at most
	// timeout. It returns the number of bytes read; zero means no
	// data arrived within the timeout.
	ReadBytes(buf []byte, timeout time.Duration) (int, error)

	// FlushInput discards all unread driver-side input.
	FlushInput() error

	// ResetEvents drops any pending events so stale notifications are
	// not processed after an overflow recovery.
	ResetEvents()
}

// Receiver bridges interrupt-rate hardware activity to the byte FIFO
// with minimal processing and performs first-line recovery on faults.
// It never writes to the message queue and never blocks waiting for
// the FIFO to drain: excess bytes are dropped with a logged count.
type Receiver struct {
	drv      Driver
	fifo     *ByteFIFO
	counters *Counters
	readWait time.Duration
	logger   *log.Logger

	buf []byte

	rxBytes      atomic.Uint64
	droppedBytes atomic.Uint64
}

// readChunkSize bounds a single driver read.
const readChunkSize = 1024

// NewReceiver creates the reception stage.
func NewReceiver(drv Driver, fifo *ByteFIFO, counters *Counters, readWait time.Duration, logger *log.Logger) *Receiver {
	if logger == nil {
		logger = log.GetLogger("rx")
	}
	return &Receiver{
		drv:      drv,
		fifo:     fifo,
		counters: counters,
		readWait: readWait,
		logger:   logger,
		buf:      make([]byte, readChunkSize),
	}
}

// Run loops forever, blocking on the hardware event channel. It
// returns when ctx is cancelled or the event channel closes.
func (r *Receiver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-r.drv.Events():
			if !ok {
				return
			}
			r.handleEvent(evt)
		}
	}
}

func (r *Receiver) handleEvent(evt Event) {
	switch evt.Type {
	case EventData:
		r.drainData(evt.Size)

	case EventFifoOverflow:
		r.counters.IncFifoOverflow()
		r.logger.Warn("fifo overflow (count=%d), recovering", r.counters.FifoOverflow())
		r.recoverFromOverflow()

	case EventBufferFull:
		r.counters.IncBufferFull()
		r.logger.Warn("driver buffer full (count=%d), recovering", r.counters.BufferFull())
		r.recoverFromOverflow()

	case EventFrameError:
		r.counters.IncFrameError()
		r.logger.Warn("frame error (count=%d)", r.counters.FrameError())
		// Resync by discarding; the next delimiter re-establishes
		// alignment. Pending events are kept: frame errors are not
		// burst conditions.
		if err := r.drv.FlushInput(); err != nil {
			r.logger.Error("flush after frame error: %v", err)
		}

	case EventParityError:
		r.counters.IncParityError()
		r.logger.Warn("parity error (count=%d)", r.counters.ParityError())
		if err := r.drv.FlushInput(); err != nil {
			r.logger.Error("flush after parity error: %v", err)
		}
	}
}

// drainData reads up to size bytes for one data event and pushes them
// into the FIFO in arrival order. A full FIFO is an expected, handled
// condition: the overflow is dropped and counted, never panicked on.
func (r *Receiver) drainData(size int) {
	toRead := size
	for toRead > 0 {
		chunk := toRead
		if chunk > len(r.buf) {
			chunk = len(r.buf)
		}
		n, err := r.drv.ReadBytes(r.buf[:chunk], r.readWait)
		if err != nil {
			r.logger.Error("read: %v", err)
			return
		}
		if n == 0 {
			// Nothing arrived within the bounded wait.
			return
		}
		r.rxBytes.Add(uint64(n))

		accepted := r.fifo.Write(r.buf[:n])
		if accepted < n {
			dropped := n - accepted
			r.droppedBytes.Add(uint64(dropped))
			r.logger.Warn("rx fifo full, dropped %d bytes", dropped)
		}
		toRead -= n
	}
}

// recoverFromOverflow flushes driver input and drops pending events.
// Deliberately lossy: for an ASCII line protocol the next delimiter
// re-establishes alignment.
func (r *Receiver) recoverFromOverflow() {
	if err := r.drv.FlushInput(); err != nil {
		r.logger.Error("flush input: %v", err)
	}
	r.drv.ResetEvents()
}

// BytesReceived returns the total bytes drained from the driver.
func (r *Receiver) BytesReceived() uint64 {
	return r.rxBytes.Load()
}

// BytesDropped returns the total bytes dropped on a full FIFO.
func (r *Receiver) BytesDropped() uint64 {
	return r.droppedBytes.Load()
}
