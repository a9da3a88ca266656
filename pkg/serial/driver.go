package serial

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"uartlink/pkg/log"
	"uartlink/pkg/uart"
)

// DefaultEventQueueLen is the reference capacity of the event channel.
const DefaultEventQueueLen = 20

// defaultHighWater is the pending-byte threshold at which the driver
// reports a buffer-full condition instead of a data event.
const defaultHighWater = 3072

// pollTick bounds one poll so the loop can observe shutdown.
const pollTick = 100 * time.Millisecond

// Driver adapts a Port to the event-driven inbound contract of the
// uart pipeline. A background poll loop watches the descriptor and
// emits classified events on a bounded channel; the producer-side send
// is best-effort by construction, so the loop never blocks on a slow
// consumer.
//
// A host process cannot observe parity or FIFO faults on a raw
// descriptor; those events reach the channel through InjectEvent,
// which simulators and tests use. Data readiness, buffer-full high
// water, and descriptor-level line faults are detected directly.
type Driver struct {
	port      *Port
	events    chan uart.Event
	logger    *log.Logger
	highWater int

	mu        sync.Mutex
	announced int // bytes reported via DataReady but not yet read

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// DriverConfig holds driver tunables.
type DriverConfig struct {
	// EventQueueLen is the event channel capacity (default 20).
	EventQueueLen int

	// HighWater is the pending-byte count treated as a buffer-full
	// condition (default 3072).
	HighWater int
}

// NewDriver creates a driver over an open port. Call Start to begin
// event production and Close to stop it.
func NewDriver(port *Port, cfg DriverConfig, logger *log.Logger) *Driver {
	if cfg.EventQueueLen <= 0 {
		cfg.EventQueueLen = DefaultEventQueueLen
	}
	if cfg.HighWater <= 0 {
		cfg.HighWater = defaultHighWater
	}
	if logger == nil {
		logger = log.GetLogger("serial")
	}
	return &Driver{
		port:      port,
		events:    make(chan uart.Event, cfg.EventQueueLen),
		logger:    logger,
		highWater: cfg.HighWater,
		done:      make(chan struct{}),
	}
}

// Start launches the background poll loop.
func (d *Driver) Start() {
	d.wg.Add(1)
	go d.pollLoop()
}

// Close stops the poll loop and closes the event channel, which in
// turn stops a Receiver blocked on it.
func (d *Driver) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
		d.wg.Wait()
		close(d.events)
	})
}

// Events implements uart.Driver.
func (d *Driver) Events() <-chan uart.Event {
	return d.events
}

// ReadBytes implements uart.Driver. A timeout is not an error: the
// pipeline treats a zero-byte read as "nothing arrived".
func (d *Driver) ReadBytes(buf []byte, timeout time.Duration) (int, error) {
	d.port.SetReadTimeout(timeout)
	n, err := d.port.Read(buf)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return 0, nil
		}
		return 0, err
	}
	if n > 0 {
		d.mu.Lock()
		d.announced -= n
		if d.announced < 0 {
			d.announced = 0
		}
		d.mu.Unlock()
	}
	return n, nil
}

// FlushInput implements uart.Driver.
func (d *Driver) FlushInput() error {
	d.mu.Lock()
	d.announced = 0
	d.mu.Unlock()
	return d.port.FlushInput()
}

// ResetEvents implements uart.Driver: pending events are dropped so
// stale notifications are not processed after an overflow recovery.
func (d *Driver) ResetEvents() {
	for {
		select {
		case _, ok := <-d.events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// InjectEvent offers an event to the channel without blocking and
// reports whether it was accepted. Simulators use it to deliver fault
// classes a host descriptor cannot surface.
func (d *Driver) InjectEvent(evt uart.Event) bool {
	select {
	case <-d.done:
		return false
	default:
	}
	return d.emit(evt)
}

func (d *Driver) emit(evt uart.Event) bool {
	select {
	case d.events <- evt:
		return true
	default:
		d.logger.Debug("event queue full, dropped %s", evt.Type)
		return false
	}
}

func (d *Driver) pollLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.done:
			return
		default:
		}

		fd, open := d.port.pollFd()
		if !open {
			return
		}

		pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(pfd, int(pollTick.Milliseconds()))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			d.logger.Error("poll: %v", err)
			return
		}
		if n == 0 {
			continue
		}

		revents := pfd[0].Revents
		if revents&unix.POLLIN != 0 {
			d.reportPending()
			continue
		}
		if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			// Line fault with no data behind it: report once, then
			// stop producing. The closed event channel stops the
			// pipeline's receive stage.
			d.emit(uart.Event{Type: uart.EventFrameError})
			d.logger.Warn("descriptor fault (revents=%#x), stopping event production", revents)
			return
		}
	}
}

// reportPending translates the level-triggered readiness of a
// descriptor into edge-style notifications: only bytes not yet
// announced produce a new event, and a backlog past the high-water
// mark becomes a buffer-full condition.
func (d *Driver) reportPending() {
	pending, err := d.port.InputPending()
	if err != nil {
		d.logger.Error("input pending: %v", err)
		time.Sleep(5 * time.Millisecond)
		return
	}

	if pending >= d.highWater {
		d.emit(uart.Event{Type: uart.EventBufferFull})
		// Recovery flushes input; give the consumer a beat to do it.
		time.Sleep(5 * time.Millisecond)
		return
	}

	d.mu.Lock()
	unreported := pending - d.announced
	if unreported > 0 {
		d.announced = pending
	}
	d.mu.Unlock()

	if unreported > 0 {
		d.emit(uart.Event{Type: uart.EventData, Size: unreported})
		return
	}

	// Everything readable has been announced already; avoid spinning
	// on the level-triggered poll while the consumer catches up.
	time.Sleep(2 * time.Millisecond)
}
