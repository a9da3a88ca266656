// Package uart implements the event-driven serial communication
// pipeline: a Receiver that drains classified driver events into a
// bounded byte FIFO, a Parser that reassembles newline-delimited
// command lines and dispatches them, and a Transmitter that is the
// sole owner of the outbound write path.
package uart

import "fmt"

// EventType classifies a hardware notification from the serial driver.
type EventType int

const (
	// EventData indicates received bytes are available for reading.
	EventData EventType = iota

	// EventFifoOverflow indicates the hardware FIFO overflowed and
	// bytes were lost before the driver could drain them.
	EventFifoOverflow

	// EventBufferFull indicates the driver-side receive buffer filled.
	EventBufferFull

	// EventFrameError indicates a framing fault on the line.
	EventFrameError

	// EventParityError indicates a parity fault on the line.
	EventParityError
)

func (t EventType) String() string {
	switch t {
	case EventData:
		return "data"
	case EventFifoOverflow:
		return "fifo_overflow"
	case EventBufferFull:
		return "buffer_full"
	case EventFrameError:
		return "frame_error"
	case EventParityError:
		return "parity_error"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is a classified notification emitted by the serial driver and
// consumed exclusively by the Receiver. Events are transient; they are
// not retained after handling.
type Event struct {
	Type EventType

	// Size is the number of bytes available to read. Valid only for
	// EventData.
	Size int
}
