// Package command implements the line protocol command set: a pure
// mapping from recognized command strings to response text. Handlers
// perform no I/O; the parsing stage enqueues whatever they return.
package command

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"uartlink/pkg/uart"
)

// Version is the string reported by the VERSION command.
const Version = "UARTLINK v1"

// UnknownReply is the fixed response for any unrecognized non-empty
// line. It is deliberately state-independent.
const UnknownReply = "ERR UNKNOWN_CMD\n"

// Func produces the response for one invocation of a command.
type Func func() string

// Dispatcher maps command lines to responses. Commands are
// case-sensitive single words. Safe for concurrent use.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Func
	start    time.Time
}

// New creates a dispatcher with the core command set registered:
// PING, VERSION and UPTIME.
func New() *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]Func),
		start:    time.Now(),
	}
	d.Register("PING", func() string { return "PONG\n" })
	d.Register("VERSION", func() string { return Version + "\n" })
	d.Register("UPTIME", func() string {
		return fmt.Sprintf("UPTIME_MS %d\n", time.Since(d.start).Milliseconds())
	})
	return d
}

// Register adds or replaces a command handler.
func (d *Dispatcher) Register(name string, fn Func) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = fn
}

// RegisterStatus adds the STATUS command reporting the link fault
// counters.
func (d *Dispatcher) RegisterStatus(counters *uart.Counters) {
	d.Register("STATUS", func() string {
		s := counters.Snapshot()
		return fmt.Sprintf("STATUS fifo_ovf=%d buf_full=%d frame_err=%d parity_err=%d\n",
			s.FifoOverflow, s.BufferFull, s.FrameError, s.ParityError)
	})
}

// RegisterHelp adds the HELP command listing the registered commands.
func (d *Dispatcher) RegisterHelp() {
	d.Register("HELP", func() string {
		return "CMDS " + strings.Join(d.Commands(), " ") + "\n"
	})
}

// Commands returns the registered command names, sorted.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	d.mu.RUnlock()
	sort.Strings(names)
	return names
}

// HandleLine implements uart.Handler. An empty line produces no
// response; an unrecognized line produces the fixed unknown-command
// reply, which is a valid protocol outcome, not an error.
func (d *Dispatcher) HandleLine(line string) (string, bool) {
	if line == "" {
		return "", false
	}

	d.mu.RLock()
	fn, ok := d.handlers[line]
	d.mu.RUnlock()
	if !ok {
		return UnknownReply, true
	}
	return fn(), true
}
