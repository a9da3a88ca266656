// Tests for uartlink-specific metrics
//
// Copyright (C) 2026  uartlink developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"strings"
	"testing"
	"time"

	"uartlink/pkg/uart"
)

func TestNewLinkMetrics(t *testing.T) {
	lm := NewLinkMetrics()

	if lm.RxBytes == nil || lm.Lines == nil || lm.TxMessages == nil {
		t.Fatal("stage counters not created")
	}
	if lm.LinkFaults == nil {
		t.Fatal("fault counter not created")
	}
	if lm.Registry() == nil {
		t.Fatal("registry not created")
	}
}

func TestUpdateFromPipeline(t *testing.T) {
	lm := NewLinkMetrics()

	stats := uart.Stats{
		RxBytes:          1024,
		RxDroppedBytes:   16,
		Lines:            42,
		LinesDropped:     1,
		TxMessages:       40,
		TxDropped:        2,
		ResponsesDropped: 2,
	}
	faults := uart.CounterSnapshot{
		FifoOverflow: 3,
		BufferFull:   1,
		FrameError:   2,
		ParityError:  0,
	}

	lm.UpdateFromPipeline(stats, faults)

	if got := lm.RxBytes.Get(nil); got != 1024 {
		t.Errorf("rx bytes = %d, want 1024", got)
	}
	if got := lm.Lines.Get(nil); got != 42 {
		t.Errorf("lines = %d, want 42", got)
	}
	if got := lm.LinkFaults.Get(Labels{"class": "fifo_overflow"}); got != 3 {
		t.Errorf("fifo overflow faults = %d, want 3", got)
	}
	if got := lm.LinkFaults.Get(Labels{"class": "parity_error"}); got != 0 {
		t.Errorf("parity faults = %d, want 0", got)
	}

	// A second update with the same totals must not double-count.
	lm.UpdateFromPipeline(stats, faults)
	if got := lm.RxBytes.Get(nil); got != 1024 {
		t.Errorf("rx bytes after resync = %d, want 1024", got)
	}

	// Advancing totals advances the counters by the delta.
	stats.RxBytes = 2048
	lm.UpdateFromPipeline(stats, faults)
	if got := lm.RxBytes.Get(nil); got != 2048 {
		t.Errorf("rx bytes after advance = %d, want 2048", got)
	}
}

func TestTxInstruments(t *testing.T) {
	lm := NewLinkMetrics()

	lm.SetTxQueueDepth(7)
	if got := lm.TxQueueLen.Get(nil); got != 7 {
		t.Errorf("queue depth = %g, want 7", got)
	}

	lm.RecordTxWrite(5 * time.Millisecond)
	snap := lm.TxLatency.GetSnapshot(nil)
	if snap.Count != 1 {
		t.Errorf("latency count = %d, want 1", snap.Count)
	}
}

func TestLinkMetricsGather(t *testing.T) {
	lm := NewLinkMetrics()
	lm.RxBytes.Add(nil, 100)
	lm.LinkFaults.Inc(Labels{"class": "buffer_full"})

	output := lm.Gather()

	for _, want := range []string{
		"uartlink_rx_bytes_total 100",
		`uartlink_link_faults_total{class="buffer_full"} 1`,
		"uartlink_go_goroutines",
		"# TYPE uartlink_tx_write_seconds histogram",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("gather output missing %q", want)
		}
	}
}

func TestGlobalMetricsSingleton(t *testing.T) {
	a := GlobalMetrics()
	b := GlobalMetrics()
	if a != b {
		t.Error("GlobalMetrics returned different instances")
	}
}
