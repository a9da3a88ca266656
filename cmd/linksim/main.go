// linksim plays the remote peer of a uartlink host over a Unix socket.
// It listens on the socket, waits for uartlinkd (started with -socket)
// to connect, and then drives the link with scripted command traffic:
//
//   - periodic PING / VERSION / UPTIME / STATUS exchanges
//   - optional junk bursts (unknown commands, CRLF line endings,
//     overlong lines) to exercise the host's fault paths
//
// Responses are checked against the expected shape of the line
// protocol and mismatches are reported at exit.
//
// Usage:
//
//	linksim -socket /tmp/uartlink.sock [-interval 500ms] [-junk] [-trace]
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
)

// expectation pairs a command with a predicate over the response line.
type expectation struct {
	send  string
	check func(string) bool
}

var script = []expectation{
	{"PING", func(s string) bool { return s == "PONG" }},
	{"VERSION", func(s string) bool { return strings.HasPrefix(s, "UARTLINK") }},
	{"UPTIME", func(s string) bool { return strings.HasPrefix(s, "UPTIME_MS ") }},
	{"STATUS", func(s string) bool { return strings.HasPrefix(s, "STATUS ") }},
}

// junk lines that must not kill the link. None of them produce a
// well-formed reply except the unknown command, so they are sent
// fire-and-forget between scripted exchanges.
var junk = []string{
	"NOSUCHCMD",
	"PING\r", // CR before the delimiter is elided by the host
	strings.Repeat("Z", 400),
}

type simStats struct {
	sent       atomic.Uint64
	ok         atomic.Uint64
	mismatched atomic.Uint64
	timeouts   atomic.Uint64
}

func main() {
	socketPath := flag.String("socket", "/tmp/uartlink.sock", "Unix socket path to listen on")
	interval := flag.Duration("interval", 500*time.Millisecond, "delay between scripted exchanges")
	junkMode := flag.Bool("junk", false, "interleave malformed traffic with the script")
	trace := flag.Bool("trace", false, "print every line sent and received")
	flag.Parse()

	os.Remove(*socketPath)

	listener, err := net.Listen("unix", *socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "linksim: listen: %v\n", err)
		os.Exit(1)
	}
	defer listener.Close()
	defer os.Remove(*socketPath)

	fmt.Printf("linksim listening on %s\n", *socketPath)
	fmt.Println("waiting for uartlinkd, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	connCh := make(chan net.Conn, 1)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			connCh <- conn
		}
	}()

	stats := &simStats{}
	done := make(chan struct{})

	for {
		select {
		case <-sigCh:
			report(stats)
			if stats.mismatched.Load() > 0 || stats.timeouts.Load() > 0 {
				os.Exit(1)
			}
			return
		case conn := <-connCh:
			fmt.Println("host connected")
			go driveLink(conn, stats, *interval, *junkMode, *trace, done)
		case <-done:
			fmt.Println("host disconnected")
		}
	}
}

// driveLink runs the scripted exchanges until the connection drops.
func driveLink(conn net.Conn, stats *simStats, interval time.Duration, junkMode, trace bool, done chan<- struct{}) {
	defer conn.Close()
	defer func() { done <- struct{}{} }()

	reader := bufio.NewReader(conn)

	// The host announces itself with a banner line on startup; it may
	// or may not have been emitted before we attached.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if banner, err := reader.ReadString('\n'); err == nil {
		fmt.Printf("banner: %s", banner)
	}

	step := 0
	for {
		exp := script[step%len(script)]
		step++

		if junkMode && step%5 == 0 {
			line := junk[(step/5)%len(junk)]
			if trace {
				fmt.Printf(">> %.40s (junk)\n", line)
			}
			if _, err := conn.Write([]byte(line + "\n")); err != nil {
				return
			}
			// The unknown command draws an error reply; swallow
			// whatever arrives so the scripted reads stay aligned.
			conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
			for {
				if _, err := reader.ReadString('\n'); err != nil {
					break
				}
			}
		}

		if trace {
			fmt.Printf(">> %s\n", exp.send)
		}
		if _, err := conn.Write([]byte(exp.send + "\n")); err != nil {
			return
		}
		stats.sent.Add(1)

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		line, err := reader.ReadString('\n')
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				stats.timeouts.Add(1)
				fmt.Printf("timeout waiting for reply to %s\n", exp.send)
				continue
			}
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if trace {
			fmt.Printf("<< %s\n", line)
		}

		if exp.check(line) {
			stats.ok.Add(1)
		} else {
			stats.mismatched.Add(1)
			fmt.Printf("mismatch: %s -> %q\n", exp.send, line)
		}

		time.Sleep(interval)
	}
}

func report(stats *simStats) {
	fmt.Printf("\nsent=%d ok=%d mismatched=%d timeouts=%d\n",
		stats.sent.Load(), stats.ok.Load(), stats.mismatched.Load(), stats.timeouts.Load())
}
