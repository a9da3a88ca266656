// Link-specific metrics definitions
//
// Defines all metrics for the uartlink host:
// - Reception stage (bytes received, bytes dropped)
// - Parsing stage (lines parsed, lines dropped, responses dropped)
// - Transmission stage (messages sent, messages dropped, queue depth)
// - Link fault counters (FIFO overflow, buffer full, frame, parity)
// - Go runtime metrics
//
// Copyright (C) 2026  uartlink developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	goruntime "runtime"
	"sync"
	"time"

	"uartlink/pkg/uart"
)

// LinkMetrics holds all uartlink-specific metrics
type LinkMetrics struct {
	// Reception stage
	RxBytes        *Counter
	RxDroppedBytes *Counter

	// Parsing stage
	Lines            *Counter
	LinesDropped     *Counter
	ResponsesDropped *Counter

	// Transmission stage
	TxMessages  *Counter
	TxDropped   *Counter
	TxQueueLen  *Gauge
	TxLatency   *Histogram

	// Link fault counters
	LinkFaults *Counter

	// System metrics
	HostUptime   *Counter
	GoGoroutines *Gauge
	GoMemoryHeap *Gauge
	GoGCCycles   *Counter

	startTime time.Time
	registry  *Registry
}

// NewLinkMetrics creates and registers all uartlink metrics
func NewLinkMetrics() *LinkMetrics {
	lm := &LinkMetrics{
		startTime: time.Now(),
		registry:  NewRegistry(),
	}

	lm.RxBytes = NewCounter("uartlink_rx_bytes_total",
		"Total bytes drained from the link into the byte channel")
	lm.RxDroppedBytes = NewCounter("uartlink_rx_dropped_bytes_total",
		"Total bytes dropped because the byte channel was full")

	lm.Lines = NewCounter("uartlink_lines_total",
		"Total complete lines delivered to the command dispatcher")
	lm.LinesDropped = NewCounter("uartlink_lines_dropped_total",
		"Total overlong lines discarded by the accumulator")
	lm.ResponsesDropped = NewCounter("uartlink_responses_dropped_total",
		"Total responses rejected by a full transmit queue")

	lm.TxMessages = NewCounter("uartlink_tx_messages_total",
		"Total messages written to the link")
	lm.TxDropped = NewCounter("uartlink_tx_dropped_total",
		"Total messages dropped before transmission")
	lm.TxQueueLen = NewGauge("uartlink_tx_queue_depth",
		"Messages waiting in the transmit queue")
	lm.TxLatency = NewHistogram("uartlink_tx_write_seconds",
		"Time to write one message to the link",
		[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25})

	lm.LinkFaults = NewCounter("uartlink_link_faults_total",
		"Total link fault events by class")

	lm.HostUptime = NewCounter("uartlink_host_uptime_seconds_total",
		"Total host uptime in seconds")
	lm.GoGoroutines = NewGauge("uartlink_go_goroutines",
		"Number of active goroutines")
	lm.GoMemoryHeap = NewGauge("uartlink_go_memory_heap_bytes",
		"Go heap memory in use")
	lm.GoGCCycles = NewCounter("uartlink_go_gc_cycles_total",
		"Total Go garbage collection cycles")

	lm.registerAll()
	return lm
}

func (lm *LinkMetrics) registerAll() {
	metrics := []Metric{
		lm.RxBytes, lm.RxDroppedBytes,
		lm.Lines, lm.LinesDropped, lm.ResponsesDropped,
		lm.TxMessages, lm.TxDropped, lm.TxQueueLen, lm.TxLatency,
		lm.LinkFaults,
		lm.HostUptime, lm.GoGoroutines, lm.GoMemoryHeap, lm.GoGCCycles,
	}
	for _, m := range metrics {
		lm.registry.MustRegister(m)
	}
}

// UpdateFromPipeline reconciles the cumulative counter metrics with the
// pipeline's own totals. The pipeline atomics are the source of truth;
// the metrics mirror them on each scrape.
func (lm *LinkMetrics) UpdateFromPipeline(stats uart.Stats, faults uart.CounterSnapshot) {
	syncCounter(lm.RxBytes, nil, stats.RxBytes)
	syncCounter(lm.RxDroppedBytes, nil, stats.RxDroppedBytes)
	syncCounter(lm.Lines, nil, stats.Lines)
	syncCounter(lm.LinesDropped, nil, stats.LinesDropped)
	syncCounter(lm.ResponsesDropped, nil, stats.ResponsesDropped)
	syncCounter(lm.TxMessages, nil, stats.TxMessages)
	syncCounter(lm.TxDropped, nil, stats.TxDropped)

	syncCounter(lm.LinkFaults, Labels{"class": "fifo_overflow"}, faults.FifoOverflow)
	syncCounter(lm.LinkFaults, Labels{"class": "buffer_full"}, faults.BufferFull)
	syncCounter(lm.LinkFaults, Labels{"class": "frame_error"}, faults.FrameError)
	syncCounter(lm.LinkFaults, Labels{"class": "parity_error"}, faults.ParityError)
}

// syncCounter advances a counter to an externally tracked total.
// Counters are monotonic, so a stale total is left alone.
func syncCounter(c *Counter, labels Labels, total uint64) {
	current := c.Get(labels)
	if total > current {
		c.Add(labels, total-current)
	}
}

// SetTxQueueDepth updates the transmit queue depth gauge
func (lm *LinkMetrics) SetTxQueueDepth(depth int) {
	lm.TxQueueLen.Set(nil, float64(depth))
}

// RecordTxWrite records the duration of one link write
func (lm *LinkMetrics) RecordTxWrite(d time.Duration) {
	lm.TxLatency.Observe(nil, d.Seconds())
}

// UpdateSystemMetrics updates Go runtime metrics
func (lm *LinkMetrics) UpdateSystemMetrics() {
	var m goruntime.MemStats
	goruntime.ReadMemStats(&m)

	lm.GoGoroutines.Set(nil, float64(goruntime.NumGoroutine()))
	lm.GoMemoryHeap.Set(nil, float64(m.HeapAlloc))
	syncCounter(lm.GoGCCycles, nil, uint64(m.NumGC))
	syncCounter(lm.HostUptime, nil, uint64(time.Since(lm.startTime).Seconds()))
}

// Gather returns all metrics in Prometheus text format
func (lm *LinkMetrics) Gather() string {
	lm.UpdateSystemMetrics()
	return lm.registry.Gather()
}

// Registry returns the internal registry
func (lm *LinkMetrics) Registry() *Registry {
	return lm.registry
}

// Global metrics instance
var globalMetrics *LinkMetrics
var globalMetricsOnce sync.Once

// GlobalMetrics returns the global uartlink metrics instance
func GlobalMetrics() *LinkMetrics {
	globalMetricsOnce.Do(func() {
		globalMetrics = NewLinkMetrics()
	})
	return globalMetrics
}
