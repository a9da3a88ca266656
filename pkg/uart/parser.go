package uart

import (
	"context"
	"sync/atomic"
	"time"

	"uartlink/pkg/log"
)

// Handler maps one complete command line to at most one response. It
// must not perform I/O; the Parser enqueues whatever it returns. The
// second result reports whether a response should be sent.
type Handler interface {
	HandleLine(line string) (string, bool)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(line string) (string, bool)

// HandleLine implements Handler.
func (f HandlerFunc) HandleLine(line string) (string, bool) {
	return f(line)
}

// Sender is the enqueue side of the transmission stage.
type Sender interface {
	Send(text string) bool
}

// Parser drains the byte FIFO, reassembles newline-delimited command
// lines, and dispatches each completed line exactly once, in arrival
// order. The stage is single-threaded, which is what preserves
// dispatch ordering.
type Parser struct {
	fifo     *ByteFIFO
	acc      *LineAccumulator
	handler  Handler
	sender   Sender
	pollWait time.Duration
	logger   *log.Logger

	buf []byte

	lines        atomic.Uint64
	linesDropped atomic.Uint64
	respDropped  atomic.Uint64
}

// parseChunkSize bounds one FIFO drain.
const parseChunkSize = 128

// NewParser creates the parsing and dispatch stage.
func NewParser(fifo *ByteFIFO, acc *LineAccumulator, handler Handler, sender Sender, pollWait time.Duration, logger *log.Logger) *Parser {
	if logger == nil {
		logger = log.GetLogger("parser")
	}
	return &Parser{
		fifo:     fifo,
		acc:      acc,
		handler:  handler,
		sender:   sender,
		pollWait: pollWait,
		logger:   logger,
		buf:      make([]byte, parseChunkSize),
	}
}

// Run loops forever, waiting on the FIFO with a bounded wait so the
// loop wakes periodically even with no data. An idle wake-up is a
// no-op; it exists as the hook point for idle or resync policies.
func (p *Parser) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n := p.fifo.Read(p.buf, p.pollWait)
		if n == 0 {
			continue
		}
		p.consume(p.buf[:n])
	}
}

// consume feeds bytes to the accumulator and dispatches each completed
// line. Two delimiters in one chunk yield two dispatches, in order.
func (p *Parser) consume(data []byte) {
	for _, b := range data {
		line, res := p.acc.Feed(b)
		switch res {
		case FeedLine:
			p.dispatch(line)
		case FeedOverflow:
			p.linesDropped.Add(1)
			p.logger.Warn("line too long, dropped")
		}
	}
}

func (p *Parser) dispatch(line string) {
	p.lines.Add(1)
	p.logger.Debug("cmd: %s", line)

	resp, ok := p.handler.HandleLine(line)
	if !ok || resp == "" {
		return
	}
	if !p.sender.Send(resp) {
		// Response dropped is the documented outcome of a full
		// message queue; the client just sees a missing reply.
		p.respDropped.Add(1)
		p.logger.Warn("response dropped for cmd: %s", line)
	}
}

// Lines returns the number of complete lines dispatched.
func (p *Parser) Lines() uint64 {
	return p.lines.Load()
}

// LinesDropped returns the number of overlong lines discarded.
func (p *Parser) LinesDropped() uint64 {
	return p.linesDropped.Load()
}

// ResponsesDropped returns the number of responses lost to a full
// message queue.
func (p *Parser) ResponsesDropped() uint64 {
	return p.respDropped.Load()
}
