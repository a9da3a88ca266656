package command

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"uartlink/pkg/uart"
)

func TestCoreCommands(t *testing.T) {
	d := New()

	tests := []struct {
		line     string
		wantResp string
		wantOK   bool
		prefix   bool
	}{
		{"PING", "PONG\n", true, false},
		{"VERSION", Version + "\n", true, false},
		{"UPTIME", "UPTIME_MS ", true, true},
		{"", "", false, false},
		{"FLY", UnknownReply, true, false},
		{"ping", UnknownReply, true, false}, // commands are case-sensitive
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			resp, ok := d.HandleLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("HandleLine(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}
			if tt.prefix {
				if !strings.HasPrefix(resp, tt.wantResp) {
					t.Errorf("resp = %q, want prefix %q", resp, tt.wantResp)
				}
				return
			}
			if resp != tt.wantResp {
				t.Errorf("resp = %q, want %q", resp, tt.wantResp)
			}
		})
	}
}

func TestResponsesAreNewlineTerminated(t *testing.T) {
	d := New()
	d.RegisterStatus(uart.NewCounters())
	d.RegisterHelp()

	for _, cmd := range d.Commands() {
		resp, ok := d.HandleLine(cmd)
		if !ok {
			t.Errorf("%s produced no response", cmd)
			continue
		}
		if !strings.HasSuffix(resp, "\n") {
			t.Errorf("%s response %q not newline-terminated", cmd, resp)
		}
	}
}

func TestUnknownCommandIsStateIndependent(t *testing.T) {
	d := New()

	first, _ := d.HandleLine("WARP")
	for i := 0; i < 3; i++ {
		resp, ok := d.HandleLine("WARP")
		if !ok || resp != first {
			t.Fatalf("unknown reply varied: %q vs %q", resp, first)
		}
	}
	if first != "ERR UNKNOWN_CMD\n" {
		t.Errorf("unknown reply = %q", first)
	}
}

func TestUptimeAdvances(t *testing.T) {
	d := New()

	resp1, _ := d.HandleLine("UPTIME")
	time.Sleep(15 * time.Millisecond)
	resp2, _ := d.HandleLine("UPTIME")

	var ms1, ms2 int64
	if _, err := fmt.Sscanf(resp1, "UPTIME_MS %d", &ms1); err != nil {
		t.Fatalf("bad uptime response %q: %v", resp1, err)
	}
	if _, err := fmt.Sscanf(resp2, "UPTIME_MS %d", &ms2); err != nil {
		t.Fatalf("bad uptime response %q: %v", resp2, err)
	}
	if ms2 < ms1 {
		t.Errorf("uptime went backwards: %d then %d", ms1, ms2)
	}
}

func TestStatusReportsCounters(t *testing.T) {
	counters := uart.NewCounters()
	counters.IncFifoOverflow()
	counters.IncFrameError()
	counters.IncFrameError()

	d := New()
	d.RegisterStatus(counters)

	resp, ok := d.HandleLine("STATUS")
	if !ok {
		t.Fatal("STATUS produced no response")
	}
	want := "STATUS fifo_ovf=1 buf_full=0 frame_err=2 parity_err=0\n"
	if resp != want {
		t.Errorf("resp = %q, want %q", resp, want)
	}
}

func TestHelpListsAllCommands(t *testing.T) {
	d := New()
	d.RegisterStatus(uart.NewCounters())
	d.RegisterHelp()

	resp, _ := d.HandleLine("HELP")
	if resp != "CMDS HELP PING STATUS UPTIME VERSION\n" {
		t.Errorf("resp = %q", resp)
	}
}

func TestRegisterReplaces(t *testing.T) {
	d := New()
	d.Register("PING", func() string { return "REPLACED\n" })

	resp, _ := d.HandleLine("PING")
	if resp != "REPLACED\n" {
		t.Errorf("resp = %q, want REPLACED", resp)
	}
}

func TestDispatcherImplementsHandler(t *testing.T) {
	var _ uart.Handler = New()
}
