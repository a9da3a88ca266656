package uart

import (
	"context"
	"sync/atomic"
	"time"

	"uartlink/pkg/linkerr"
	"uartlink/pkg/log"
)

// LinkWriter is the outbound contract the Transmitter expects from the
// serial hardware layer: a byte-write primitive and a bounded wait for
// transmission completion.
type LinkWriter interface {
	Write(p []byte) (int, error)
	Drain(timeout time.Duration) error
}

// Transmitter is the exclusive owner of the outbound write path.
// Producers enqueue through Send from any goroutine; only Run writes
// to the hardware, so responses are never interleaved. Messages are
// transmitted strictly in enqueue order.
type Transmitter struct {
	w           LinkWriter
	queue       chan Message
	enqueueWait time.Duration
	drainWait   time.Duration
	logger      *log.Logger

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewTransmitter creates the transmission stage with a message queue
// of the given capacity.
func NewTransmitter(w LinkWriter, queueSize int, enqueueWait, drainWait time.Duration, logger *log.Logger) (*Transmitter, error) {
	if queueSize <= 0 {
		return nil, linkerr.NewInitError("message queue capacity must be > 0", nil)
	}
	if logger == nil {
		logger = log.GetLogger("tx")
	}
	return &Transmitter{
		w:           w,
		queue:       make(chan Message, queueSize),
		enqueueWait: enqueueWait,
		drainWait:   drainWait,
		logger:      logger,
	}, nil
}

// Send enqueues text for asynchronous transmission. It returns false
// if the text exceeds the fixed payload capacity or if the queue is
// still full after a short bounded wait. Callers treat false as
// "response dropped"; Send never retries on their behalf. Empty text
// succeeds trivially as a no-op.
func (t *Transmitter) Send(text string) bool {
	if text == "" {
		return true
	}
	msg, ok := NewMessage([]byte(text))
	if !ok {
		t.dropped.Add(1)
		t.logger.Warn("message exceeds %d bytes, not enqueued", MaxMessageSize)
		return false
	}

	timer := time.NewTimer(t.enqueueWait)
	defer timer.Stop()
	select {
	case t.queue <- msg:
		return true
	case <-timer.C:
		t.dropped.Add(1)
		return false
	}
}

// Run loops forever, blocking on the message queue. Each message is
// written in full and drained before the next one is dequeued. It
// returns when ctx is cancelled.
func (t *Transmitter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-t.queue:
			t.transmit(&msg)
		}
	}
}

func (t *Transmitter) transmit(msg *Message) {
	data := msg.Bytes()
	for len(data) > 0 {
		n, err := t.w.Write(data)
		if err != nil {
			t.logger.Error("write: %v", err)
			return
		}
		data = data[n:]
	}

	if err := t.w.Drain(t.drainWait); err != nil {
		t.logger.Warn("drain: %v", err)
	}
	t.sent.Add(1)
}

// Sent returns the number of messages fully transmitted.
func (t *Transmitter) Sent() uint64 {
	return t.sent.Load()
}

// Dropped returns the number of messages refused by Send.
func (t *Transmitter) Dropped() uint64 {
	return t.dropped.Load()
}

// QueueLen returns the number of messages waiting to be transmitted.
func (t *Transmitter) QueueLen() int {
	return len(t.queue)
}
