// linkcheck is a protocol smoke-test client for a running uartlink
// host. It opens the other end of the serial link, exercises each
// command, and verifies the responses.
//
// Usage:
//
//	linkcheck -device /dev/ttyUSB1 [options]
//
// Options:
//
//	-device string    Serial device path (required)
//	-baud int         Baud rate (default: 115200)
//	-timeout duration Per-response read timeout (default: 2s)
//	-count int        Repetitions of the full command sweep (default: 1)
//
// Examples:
//
//	# One sweep over a pty pair
//	linkcheck -device /dev/pts/3
//
//	# Soak the link for a while
//	linkcheck -device /dev/ttyUSB1 -count 100
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tarm/serial"
)

// check is one request/response expectation.
type check struct {
	name   string
	send   string
	expect func(string) bool
}

func main() {
	device := flag.String("device", "", "Serial device path (required)")
	baud := flag.Int("baud", 115200, "Baud rate")
	timeout := flag.Duration("timeout", 2*time.Second, "Per-response read timeout")
	count := flag.Int("count", 1, "Repetitions of the full command sweep")
	flag.Parse()

	if *device == "" {
		fmt.Fprintf(os.Stderr, "Error: -device is required\n")
		flag.Usage()
		os.Exit(1)
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        *device,
		Baud:        *baud,
		ReadTimeout: *timeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", *device, err)
		os.Exit(1)
	}
	defer port.Close()

	checks := []check{
		{
			name:   "PING",
			send:   "PING\n",
			expect: func(resp string) bool { return resp == "PONG" },
		},
		{
			name:   "VERSION",
			send:   "VERSION\n",
			expect: func(resp string) bool { return strings.HasPrefix(resp, "UARTLINK") },
		},
		{
			name:   "UPTIME",
			send:   "UPTIME\n",
			expect: func(resp string) bool { return strings.HasPrefix(resp, "UPTIME_MS ") },
		},
		{
			name:   "STATUS",
			send:   "STATUS\n",
			expect: func(resp string) bool { return strings.HasPrefix(resp, "STATUS ") },
		},
		{
			name:   "HELP",
			send:   "HELP\n",
			expect: func(resp string) bool { return strings.HasPrefix(resp, "CMDS ") },
		},
		{
			name:   "unknown command",
			send:   "XYZZY\n",
			expect: func(resp string) bool { return resp == "ERR UNKNOWN_CMD" },
		},
		{
			name: "carriage return elision",
			send: "PING\r\n",
			expect: func(resp string) bool { return resp == "PONG" },
		},
	}

	reader := bufio.NewReader(port)
	passed, failed := 0, 0

	start := time.Now()
	for i := 0; i < *count; i++ {
		for _, c := range checks {
			if err := runCheck(port, reader, c); err != nil {
				fmt.Printf("FAIL %-24s %v\n", c.name, err)
				failed++
				continue
			}
			if *count == 1 {
				fmt.Printf("PASS %s\n", c.name)
			}
			passed++
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("\n%d passed, %d failed in %v\n", passed, failed, elapsed.Round(time.Millisecond))
	if failed > 0 {
		os.Exit(1)
	}
}

// runCheck sends one command and validates the response line.
func runCheck(port *serial.Port, reader *bufio.Reader, c check) error {
	if _, err := port.Write([]byte(c.send)); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	resp := strings.TrimRight(line, "\r\n")

	if !c.expect(resp) {
		return fmt.Errorf("unexpected response %q", resp)
	}
	return nil
}
