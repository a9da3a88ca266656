package uart

import (
	"sync"
	"time"

	"uartlink/pkg/linkerr"
)

// ByteFIFO is a bounded FIFO of raw bytes shared between the Receiver
// and the Parser. It decouples interrupt-rate reception from slower
// line parsing.
//
// Writes are best-effort: bytes that do not fit are dropped and the
// shortfall is reported to the caller, never silently. Reads block for
// at most the caller-supplied timeout. The FIFO is created once at
// startup and lives for the whole process.
type ByteFIFO struct {
	mu    sync.Mutex
	buf   []byte
	head  int // next read index
	tail  int // next write index
	count int

	// avail carries a data-ready signal to a blocked reader.
	avail chan struct{}
}

// NewByteFIFO creates a byte FIFO with the given capacity in bytes.
func NewByteFIFO(capacity int) (*ByteFIFO, error) {
	if capacity <= 0 {
		return nil, linkerr.NewInitError("byte fifo capacity must be > 0", nil)
	}
	return &ByteFIFO{
		buf:   make([]byte, capacity),
		avail: make(chan struct{}, 1),
	}, nil
}

// Cap returns the fixed capacity in bytes.
func (f *ByteFIFO) Cap() int {
	return len(f.buf)
}

// Len returns the number of bytes currently buffered.
func (f *ByteFIFO) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// Write copies as much of p as fits and returns the number of bytes
// accepted. It never blocks. A return value less than len(p) means the
// remainder was dropped; the caller is expected to log the shortfall.
func (f *ByteFIFO) Write(p []byte) int {
	f.mu.Lock()
	n := len(f.buf) - f.count
	if n > len(p) {
		n = len(p)
	}
	if n > 0 {
		// At most two copies: tail..end, then start..head.
		c := copy(f.buf[f.tail:], p[:n])
		if c < n {
			copy(f.buf, p[c:n])
		}
		f.tail = (f.tail + n) % len(f.buf)
		f.count += n
	}
	f.mu.Unlock()

	if n > 0 {
		select {
		case f.avail <- struct{}{}:
		default:
		}
	}
	return n
}

// Read copies up to len(p) buffered bytes into p, waiting up to
// timeout for data to arrive. It returns the number of bytes copied;
// zero means the wait timed out, which the Parser treats as a normal
// idle wake-up.
func (f *ByteFIFO) Read(p []byte, timeout time.Duration) int {
	if len(p) == 0 {
		return 0
	}

	deadline := time.Now().Add(timeout)
	for {
		f.mu.Lock()
		if f.count > 0 {
			n := f.count
			if n > len(p) {
				n = len(p)
			}
			c := copy(p[:n], f.buf[f.head:])
			if c < n {
				copy(p[c:n], f.buf)
			}
			f.head = (f.head + n) % len(f.buf)
			f.count -= n
			f.mu.Unlock()
			return n
		}
		f.mu.Unlock()

		remain := time.Until(deadline)
		if remain <= 0 {
			return 0
		}

		t := time.NewTimer(remain)
		select {
		case <-f.avail:
			t.Stop()
		case <-t.C:
			return 0
		}
	}
}
