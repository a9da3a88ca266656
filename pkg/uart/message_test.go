package uart

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		ok      bool
	}{
		{"empty", "", true},
		{"short", "PONG\n", true},
		{"max size", strings.Repeat("X", MaxMessageSize), true},
		{"over max", strings.Repeat("X", MaxMessageSize+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := NewMessage([]byte(tt.payload))
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if msg.Len() != len(tt.payload) {
				t.Errorf("len = %d, want %d", msg.Len(), len(tt.payload))
			}
			if !bytes.Equal(msg.Bytes(), []byte(tt.payload)) {
				t.Errorf("payload mismatch")
			}
		})
	}
}

func TestMessageIsValueType(t *testing.T) {
	// Copying a message must copy the payload; the queue passes
	// messages by value between goroutines.
	src := []byte("ORIGINAL\n")
	msg, _ := NewMessage(src)
	cp := msg

	src[0] = 'X'
	if cp.Bytes()[0] != 'O' {
		t.Error("message aliases the source buffer")
	}
}

func TestEventTypeString(t *testing.T) {
	for evt, want := range map[EventType]string{
		EventData:         "data",
		EventFifoOverflow: "fifo_overflow",
		EventBufferFull:   "buffer_full",
		EventFrameError:   "frame_error",
		EventParityError:  "parity_error",
	} {
		if got := evt.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", evt, got, want)
		}
	}
}
