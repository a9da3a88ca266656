package uart

import (
	"context"
	"sync"
	"time"

	"uartlink/pkg/log"
)

// Config holds the pipeline tunables. The timeouts bound internal
// hand-offs only; they are configuration, not protocol semantics.
type Config struct {
	// ByteFIFOSize is the byte channel capacity in bytes.
	ByteFIFOSize int

	// LineCapacity is the line accumulator size (payload + terminator).
	LineCapacity int

	// MessageQueueSize is the outbound message queue capacity.
	MessageQueueSize int

	// ReadWait bounds a single driver read on a data event.
	ReadWait time.Duration

	// PollWait bounds the parser's wait on the byte FIFO.
	PollWait time.Duration

	// EnqueueWait bounds Send when the message queue is full.
	EnqueueWait time.Duration

	// DrainWait bounds the wait for hardware transmit completion.
	DrainWait time.Duration
}

// DefaultConfig returns the reference tunables.
func DefaultConfig() Config {
	return Config{
		ByteFIFOSize:     4096,
		LineCapacity:     DefaultLineCapacity,
		MessageQueueSize: 10,
		ReadWait:         20 * time.Millisecond,
		PollWait:         200 * time.Millisecond,
		EnqueueWait:      20 * time.Millisecond,
		DrainWait:        100 * time.Millisecond,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.ByteFIFOSize == 0 {
		c.ByteFIFOSize = def.ByteFIFOSize
	}
	if c.LineCapacity == 0 {
		c.LineCapacity = def.LineCapacity
	}
	if c.MessageQueueSize == 0 {
		c.MessageQueueSize = def.MessageQueueSize
	}
	if c.ReadWait == 0 {
		c.ReadWait = def.ReadWait
	}
	if c.PollWait == 0 {
		c.PollWait = def.PollWait
	}
	if c.EnqueueWait == 0 {
		c.EnqueueWait = def.EnqueueWait
	}
	if c.DrainWait == 0 {
		c.DrainWait = def.DrainWait
	}
}

// Stats is a point-in-time view of the pipeline activity totals.
type Stats struct {
	RxBytes          uint64 `json:"rx_bytes"`
	RxDroppedBytes   uint64 `json:"rx_dropped_bytes"`
	Lines            uint64 `json:"lines"`
	LinesDropped     uint64 `json:"lines_dropped"`
	TxMessages       uint64 `json:"tx_messages"`
	TxDropped        uint64 `json:"tx_dropped"`
	ResponsesDropped uint64 `json:"responses_dropped"`
}

// Pipeline wires the three stages over one serial link. Each stage
// runs in its own goroutine; the byte FIFO and the message queue are
// the only cross-stage shared resources. The steady-state model is
// run-forever, but Stop provides an orderly shutdown path for tests
// and service teardown.
type Pipeline struct {
	cfg      Config
	counters *Counters
	recv     *Receiver
	parser   *Parser
	tx       *Transmitter
	logger   *log.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a pipeline over the given driver and writer. A resource
// allocation failure here is fatal to the caller: the system cannot
// safely run without its core channels.
func New(cfg Config, drv Driver, w LinkWriter, handler Handler, counters *Counters, logger *log.Logger) (*Pipeline, error) {
	cfg.applyDefaults()
	if counters == nil {
		counters = NewCounters()
	}
	if logger == nil {
		logger = log.GetLogger("uart")
	}

	fifo, err := NewByteFIFO(cfg.ByteFIFOSize)
	if err != nil {
		return nil, err
	}
	tx, err := NewTransmitter(w, cfg.MessageQueueSize, cfg.EnqueueWait, cfg.DrainWait, logger.WithPrefix("tx"))
	if err != nil {
		return nil, err
	}
	acc := NewLineAccumulator(cfg.LineCapacity)

	p := &Pipeline{
		cfg:      cfg,
		counters: counters,
		recv:     NewReceiver(drv, fifo, counters, cfg.ReadWait, logger.WithPrefix("rx")),
		parser:   NewParser(fifo, acc, handler, tx, cfg.PollWait, logger.WithPrefix("parser")),
		tx:       tx,
		logger:   logger,
	}
	return p, nil
}

// Start launches the three stage goroutines. It is an error to start
// a pipeline twice without stopping it first.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true

	p.wg.Add(3)
	go func() {
		defer p.wg.Done()
		p.recv.Run(ctx)
	}()
	go func() {
		defer p.wg.Done()
		p.parser.Run(ctx)
	}()
	go func() {
		defer p.wg.Done()
		p.tx.Run(ctx)
	}()

	p.logger.Info("pipeline started (fifo=%dB queue=%d)", p.cfg.ByteFIFOSize, p.cfg.MessageQueueSize)
}

// Stop cancels all stages and waits for them to exit. Buffered but
// untransmitted messages are discarded; the protocol is best-effort.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.logger.Info("pipeline stopped")
}

// Send enqueues an outbound message through the transmission stage.
// Any producer may call it; the write path stays exclusively owned by
// the Transmitter.
func (p *Pipeline) Send(text string) bool {
	return p.tx.Send(text)
}

// Counters returns the shared fault counter set.
func (p *Pipeline) Counters() *Counters {
	return p.counters
}

// Stats aggregates the per-stage activity totals.
func (p *Pipeline) Stats() Stats {
	return Stats{
		RxBytes:          p.recv.BytesReceived(),
		RxDroppedBytes:   p.recv.BytesDropped(),
		Lines:            p.parser.Lines(),
		LinesDropped:     p.parser.LinesDropped(),
		TxMessages:       p.tx.Sent(),
		TxDropped:        p.tx.Dropped(),
		ResponsesDropped: p.parser.ResponsesDropped(),
	}
}
