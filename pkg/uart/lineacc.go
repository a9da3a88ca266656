package uart

// FeedResult is the outcome of feeding one byte to a LineAccumulator.
type FeedResult int

const (
	// FeedNone means the byte was consumed with no line completed.
	FeedNone FeedResult = iota

	// FeedLine means a complete non-empty line is ready.
	FeedLine

	// FeedOverflow means the current line exceeded the accumulator
	// capacity; the whole line (including any bytes still to come
	// before the next delimiter) is discarded.
	FeedOverflow
)

// LineAccumulator assembles a raw byte stream into newline-delimited
// text lines. Carriage returns are elided on ingestion; line feed is
// the sole delimiter. The accumulator holds at most capacity-1 payload
// bytes; a line that would not fit is dropped in its entirety and the
// accumulator stays in a discarding state until the next delimiter.
//
// Owned exclusively by the Parser; not safe for concurrent use.
type LineAccumulator struct {
	buf        []byte
	n          int
	discarding bool
}

// DefaultLineCapacity is the reference accumulator size: 255 payload
// characters plus room for the terminator.
const DefaultLineCapacity = 256

// NewLineAccumulator creates an accumulator with the given capacity.
// Capacities below 2 are raised to 2 (one payload byte plus the
// terminator slot).
func NewLineAccumulator(capacity int) *LineAccumulator {
	if capacity < 2 {
		capacity = 2
	}
	return &LineAccumulator{buf: make([]byte, capacity)}
}

// Len returns the number of payload bytes accumulated so far.
func (a *LineAccumulator) Len() int {
	return a.n
}

// Reset discards any partial line.
func (a *LineAccumulator) Reset() {
	a.n = 0
	a.discarding = false
}

// Feed consumes one byte. When the result is FeedLine the returned
// string holds the completed line with CR and LF already stripped.
// Empty lines (a lone LF or CRLF) complete silently with FeedNone.
func (a *LineAccumulator) Feed(b byte) (string, FeedResult) {
	switch b {
	case '\r':
		return "", FeedNone

	case '\n':
		if a.discarding {
			a.Reset()
			return "", FeedNone
		}
		if a.n == 0 {
			return "", FeedNone
		}
		line := string(a.buf[:a.n])
		a.n = 0
		return line, FeedLine

	default:
		if a.discarding {
			return "", FeedNone
		}
		if a.n >= len(a.buf)-1 {
			// Overlong line: drop it whole, resync on the delimiter.
			a.n = 0
			a.discarding = true
			return "", FeedOverflow
		}
		a.buf[a.n] = b
		a.n++
		return "", FeedNone
	}
}
