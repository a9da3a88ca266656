package uart

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeDriver feeds scripted events and data to a Receiver.
type fakeDriver struct {
	events chan Event

	mu      sync.Mutex
	pending []byte
	flushes int
	resets  int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{events: make(chan Event, 20)}
}

func (d *fakeDriver) Events() <-chan Event { return d.events }

func (d *fakeDriver) ReadBytes(buf []byte, timeout time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := copy(buf, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

func (d *fakeDriver) FlushInput() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
	d.flushes++
	return nil
}

func (d *fakeDriver) ResetEvents() {
	d.mu.Lock()
	d.resets++
	d.mu.Unlock()
	for {
		select {
		case <-d.events:
		default:
			return
		}
	}
}

// offer queues data and announces it with a data event.
func (d *fakeDriver) offer(data []byte) {
	d.mu.Lock()
	d.pending = append(d.pending, data...)
	d.mu.Unlock()
	d.events <- Event{Type: EventData, Size: len(data)}
}

func (d *fakeDriver) counts() (flushes, resets int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushes, d.resets
}

func startReceiver(t *testing.T, drv Driver, fifo *ByteFIFO) (*Receiver, *Counters, func()) {
	t.Helper()
	counters := NewCounters()
	r := NewReceiver(drv, fifo, counters, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	return r, counters, func() {
		cancel()
		<-done
	}
}

func TestReceiverDrainsDataToFIFO(t *testing.T) {
	drv := newFakeDriver()
	fifo, _ := NewByteFIFO(64)
	r, _, stop := startReceiver(t, drv, fifo)
	defer stop()

	drv.offer([]byte("PING\n"))

	buf := make([]byte, 16)
	n := fifo.Read(buf, time.Second)
	if string(buf[:n]) != "PING\n" {
		t.Errorf("fifo got %q", buf[:n])
	}
	if r.BytesReceived() != 5 {
		t.Errorf("rx bytes = %d, want 5", r.BytesReceived())
	}
}

func TestReceiverDropsOnFullFIFO(t *testing.T) {
	drv := newFakeDriver()
	fifo, _ := NewByteFIFO(4)
	r, _, stop := startReceiver(t, drv, fifo)
	defer stop()

	drv.offer([]byte("ABCDEFGH"))

	waitFor(t, func() bool { return r.BytesReceived() == 8 })
	if r.BytesDropped() != 4 {
		t.Errorf("dropped = %d, want 4", r.BytesDropped())
	}

	// The FIFO holds the first 4 bytes, in order.
	buf := make([]byte, 8)
	n := fifo.Read(buf, time.Millisecond)
	if string(buf[:n]) != "ABCD" {
		t.Errorf("fifo got %q, want ABCD", buf[:n])
	}
}

func TestReceiverOverflowRecovery(t *testing.T) {
	// FIFO overflow and buffer-full both count, flush input, and reset
	// pending events.
	for _, tt := range []struct {
		name string
		evt  EventType
		get  func(*Counters) uint64
	}{
		{"fifo overflow", EventFifoOverflow, (*Counters).FifoOverflow},
		{"buffer full", EventBufferFull, (*Counters).BufferFull},
	} {
		t.Run(tt.name, func(t *testing.T) {
			drv := newFakeDriver()
			fifo, _ := NewByteFIFO(64)
			_, counters, stop := startReceiver(t, drv, fifo)
			defer stop()

			drv.events <- Event{Type: tt.evt}

			waitFor(t, func() bool { return tt.get(counters) == 1 })
			flushes, resets := drv.counts()
			if flushes != 1 {
				t.Errorf("flushes = %d, want 1", flushes)
			}
			if resets != 1 {
				t.Errorf("resets = %d, want 1", resets)
			}
		})
	}
}

func TestReceiverLineFaultsFlushWithoutReset(t *testing.T) {
	// Frame and parity errors flush input but keep pending events.
	for _, tt := range []struct {
		name string
		evt  EventType
		get  func(*Counters) uint64
	}{
		{"frame error", EventFrameError, (*Counters).FrameError},
		{"parity error", EventParityError, (*Counters).ParityError},
	} {
		t.Run(tt.name, func(t *testing.T) {
			drv := newFakeDriver()
			fifo, _ := NewByteFIFO(64)
			_, counters, stop := startReceiver(t, drv, fifo)
			defer stop()

			drv.events <- Event{Type: tt.evt}

			waitFor(t, func() bool { return tt.get(counters) == 1 })
			flushes, resets := drv.counts()
			if flushes != 1 {
				t.Errorf("flushes = %d, want 1", flushes)
			}
			if resets != 0 {
				t.Errorf("resets = %d, want 0", resets)
			}
		})
	}
}

func TestReceiverContinuesAfterFault(t *testing.T) {
	drv := newFakeDriver()
	fifo, _ := NewByteFIFO(64)
	r, counters, stop := startReceiver(t, drv, fifo)
	defer stop()

	drv.events <- Event{Type: EventFrameError}
	waitFor(t, func() bool { return counters.FrameError() == 1 })

	drv.offer([]byte("STILL ALIVE\n"))
	waitFor(t, func() bool { return r.BytesReceived() == 12 })
}

func TestReceiverStopsOnClosedEvents(t *testing.T) {
	drv := newFakeDriver()
	fifo, _ := NewByteFIFO(64)
	counters := NewCounters()
	r := NewReceiver(drv, fifo, counters, 10*time.Millisecond, nil)

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()

	close(drv.events)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("receiver did not exit on closed event channel")
	}
}
