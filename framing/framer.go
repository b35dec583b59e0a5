// Package framing turns the raw byte stream of a serial-style link into
// discrete protocol lines, and classifies inbound lines as loopback echoes
// or genuine peer messages. Both types here are pure data structures —
// no I/O, no goroutines — so the session layer owns all the timing.
package framing

import "strings"

// LineFramer segments an unbounded byte stream into trimmed lines.
// A line ends at '\n' or '\r'; bytes between separators accumulate in an
// internal buffer. The framer guarantees an emitted line never contains a
// separator and is never empty after trimming.
type LineFramer struct {
	buf []byte
	gen uint64
}

// NewLineFramer creates an empty framer.
func NewLineFramer() *LineFramer {
	return &LineFramer{}
}

// Push scans the chunk byte-by-byte and returns every complete line it
// terminates, in arrival order. Splitting the same byte sequence across any
// number of Push calls yields the same lines as one call — the buffer
// carries partial lines across chunk boundaries.
func (f *LineFramer) Push(chunk []byte) []string {
	var lines []string
	for _, b := range chunk {
		if b == '\n' || b == '\r' {
			if line := strings.TrimSpace(string(f.buf)); line != "" {
				lines = append(lines, line)
			}
			f.buf = f.buf[:0]
			continue
		}
		f.buf = append(f.buf, b)
	}
	if len(chunk) > 0 {
		f.gen++
	}
	return lines
}

// HasPending reports whether a partial, unterminated line is buffered.
func (f *LineFramer) HasPending() bool {
	return len(f.buf) > 0
}

// Flush force-emits the pending partial line, trimmed. Returns false when
// there is nothing worth emitting (empty buffer, or whitespace only).
// Used for the idle-timeout flush and the end-of-session flush.
func (f *LineFramer) Flush() (string, bool) {
	line := strings.TrimSpace(string(f.buf))
	f.buf = f.buf[:0]
	if line == "" {
		return "", false
	}
	return line, true
}

// Generation increments on every Push that delivered bytes. The session
// stamps its idle-flush timer with this value so a flush scheduled before
// more data arrived can tell it has been superseded.
func (f *LineFramer) Generation() uint64 {
	return f.gen
}

// Reset discards any pending partial line.
func (f *LineFramer) Reset() {
	f.buf = f.buf[:0]
}
