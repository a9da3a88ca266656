package uart

import (
	"sync"
	"testing"
)

func TestCountersSnapshot(t *testing.T) {
	c := NewCounters()
	c.IncFifoOverflow()
	c.IncFifoOverflow()
	c.IncBufferFull()
	c.IncFrameError()

	snap := c.Snapshot()
	if snap.FifoOverflow != 2 || snap.BufferFull != 1 || snap.FrameError != 1 || snap.ParityError != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestCountersConcurrentReads(t *testing.T) {
	// One writer, many readers; totals must be monotonic per reader.
	c := NewCounters()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			c.IncParityError()
		}
	}()

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var prev uint64
			for i := 0; i < 1000; i++ {
				v := c.ParityError()
				if v < prev {
					t.Errorf("counter went backwards: %d -> %d", prev, v)
					return
				}
				prev = v
			}
		}()
	}
	<-done
	wg.Wait()

	if c.ParityError() != 1000 {
		t.Errorf("final total = %d, want 1000", c.ParityError())
	}
}
