package uart

import (
	"strings"
	"testing"
)

// feedAll pushes a string through the accumulator and collects the
// completed lines and the number of overflow drops.
func feedAll(a *LineAccumulator, s string) (lines []string, overflows int) {
	for i := 0; i < len(s); i++ {
		line, res := a.Feed(s[i])
		switch res {
		case FeedLine:
			lines = append(lines, line)
		case FeedOverflow:
			overflows++
		}
	}
	return lines, overflows
}

func TestLineAccumulatorBasic(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"lf terminated", "PING\n", []string{"PING"}},
		{"crlf terminated", "PING\r\n", []string{"PING"}},
		{"cr mid-line elided", "PI\rNG\n", []string{"PING"}},
		{"empty line ignored", "\n", nil},
		{"crlf only ignored", "\r\n", nil},
		{"multiple lines", "PING\nVERSION\nUPTIME\n", []string{"PING", "VERSION", "UPTIME"}},
		{"blank lines between", "PING\n\n\nVERSION\n", []string{"PING", "VERSION"}},
		{"trailing partial withheld", "PING\nVER", []string{"PING"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewLineAccumulator(DefaultLineCapacity)
			lines, overflows := feedAll(a, tt.input)
			if overflows != 0 {
				t.Errorf("unexpected overflows: %d", overflows)
			}
			if len(lines) != len(tt.want) {
				t.Fatalf("got %d lines %v, want %v", len(lines), lines, tt.want)
			}
			for i := range lines {
				if lines[i] != tt.want[i] {
					t.Errorf("line %d = %q, want %q", i, lines[i], tt.want[i])
				}
			}
		})
	}
}

func TestLineAccumulatorSplitDelivery(t *testing.T) {
	// Bytes arriving one at a time across "chunks" must still assemble
	// one line.
	a := NewLineAccumulator(DefaultLineCapacity)

	for _, b := range []byte("PIN") {
		if _, res := a.Feed(b); res != FeedNone {
			t.Fatalf("unexpected result %v mid-line", res)
		}
	}
	if a.Len() != 3 {
		t.Errorf("accumulated %d bytes, want 3", a.Len())
	}

	if _, res := a.Feed('G'); res != FeedNone {
		t.Fatalf("unexpected result %v", res)
	}
	line, res := a.Feed('\n')
	if res != FeedLine || line != "PING" {
		t.Errorf("got (%q, %v), want (PING, FeedLine)", line, res)
	}
	if a.Len() != 0 {
		t.Errorf("accumulator not reset after line, len=%d", a.Len())
	}
}

func TestLineAccumulatorOverflow(t *testing.T) {
	// 300 bytes without a delimiter into a 256-byte accumulator: the
	// line is dropped whole and the next well-formed line survives.
	a := NewLineAccumulator(DefaultLineCapacity)

	long := strings.Repeat("A", 300) + "\n"
	lines, overflows := feedAll(a, long)
	if len(lines) != 0 {
		t.Errorf("overlong line delivered: %v", lines)
	}
	if overflows != 1 {
		t.Errorf("overflows = %d, want 1", overflows)
	}

	lines, overflows = feedAll(a, "PING\n")
	if overflows != 0 {
		t.Errorf("unexpected overflow after resync")
	}
	if len(lines) != 1 || lines[0] != "PING" {
		t.Errorf("post-overflow line = %v, want [PING]", lines)
	}
}

func TestLineAccumulatorMaxLengthLine(t *testing.T) {
	// capacity-1 payload bytes is the longest accepted line.
	a := NewLineAccumulator(DefaultLineCapacity)

	max := strings.Repeat("B", DefaultLineCapacity-1)
	lines, overflows := feedAll(a, max+"\n")
	if overflows != 0 {
		t.Fatalf("max-length line overflowed")
	}
	if len(lines) != 1 || lines[0] != max {
		t.Errorf("max-length line not delivered intact")
	}

	// One more byte tips it over.
	lines, overflows = feedAll(a, max+"C\n")
	if overflows != 1 || len(lines) != 0 {
		t.Errorf("oversize line: lines=%v overflows=%d", lines, overflows)
	}
}

func TestLineAccumulatorDiscardingSwallowsUntilDelimiter(t *testing.T) {
	a := NewLineAccumulator(4)

	_, overflows := feedAll(a, "ABCDEF")
	if overflows != 1 {
		t.Fatalf("overflows = %d, want exactly 1 per overlong line", overflows)
	}

	// Still discarding: more bytes produce no further overflow reports.
	_, overflows = feedAll(a, "GHI")
	if overflows != 0 {
		t.Errorf("repeated overflow reports while discarding")
	}

	// Delimiter ends the discard; the next line is clean.
	lines, _ := feedAll(a, "\nXY\n")
	if len(lines) != 1 || lines[0] != "XY" {
		t.Errorf("post-discard line = %v, want [XY]", lines)
	}
}

func TestLineAccumulatorReset(t *testing.T) {
	a := NewLineAccumulator(DefaultLineCapacity)
	feedAll(a, "PART")
	a.Reset()

	lines, _ := feedAll(a, "IAL\n")
	if len(lines) != 1 || lines[0] != "IAL" {
		t.Errorf("line after reset = %v, want [IAL]", lines)
	}
}
