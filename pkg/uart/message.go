package uart

// MaxMessageSize is the fixed payload capacity of an outbound message.
// It matches the 255-character line limit plus the terminating newline.
const MaxMessageSize = 256

// Message is a fully-formed outbound payload awaiting transmission.
// It is a value type: ownership transfers into the message queue on
// enqueue and the Transmitter consumes it exactly once.
type Message struct {
	n    int
	data [MaxMessageSize]byte
}

// NewMessage builds a message from p. It reports false if p does not
// fit the fixed payload capacity.
func NewMessage(p []byte) (Message, bool) {
	var m Message
	if len(p) > MaxMessageSize {
		return m, false
	}
	m.n = copy(m.data[:], p)
	return m, true
}

// Len returns the payload length in bytes.
func (m *Message) Len() int {
	return m.n
}

// Bytes returns the payload. The slice aliases the message storage and
// must not be retained past the transmit call.
func (m *Message) Bytes() []byte {
	return m.data[:m.n]
}
