package framing

import "strings"

// DefaultEchoCapacity bounds how many recently-sent lines are remembered.
const DefaultEchoCapacity = 32

// EchoWindow is a bounded FIFO of the last N trimmed lines sent locally.
// The peer on this link is a debugging/monitoring tool that reflects every
// line it receives, so the session must silently discard its own commands
// coming back while still surfacing genuinely new peer lines — including a
// peer resending the exact text of a stale command after the window has
// rotated past it.
type EchoWindow struct {
	entries  []string
	capacity int
}

// NewEchoWindow creates a window holding at most capacity entries.
// capacity <= 0 falls back to DefaultEchoCapacity.
func NewEchoWindow(capacity int) *EchoWindow {
	if capacity <= 0 {
		capacity = DefaultEchoCapacity
	}
	return &EchoWindow{
		entries:  make([]string, 0, capacity),
		capacity: capacity,
	}
}

// RememberSent records a line this side just sent. When the window is full
// the oldest entry is evicted first — FIFO, not LRU.
func (w *EchoWindow) RememberSent(line string) {
	if len(w.entries) >= w.capacity {
		w.entries = w.entries[1:] // evict oldest
	}
	w.entries = append(w.entries, strings.TrimSpace(line))
}

// IsEcho classifies an inbound line. A match removes the matched entry and
// everything older than it — out-of-order partial echoes resynchronize the
// window instead of leaving stale entries that would swallow later lines.
// A miss leaves the window unchanged.
func (w *EchoWindow) IsEcho(line string) bool {
	line = strings.TrimSpace(line)
	for i, sent := range w.entries {
		if sent == line {
			w.entries = w.entries[i+1:]
			return true
		}
	}
	return false
}

// Len returns the number of remembered lines.
func (w *EchoWindow) Len() int {
	return len(w.entries)
}

// Reset empties the window. Each session gets a fresh window — echoes never
// carry across a reconnect.
func (w *EchoWindow) Reset() {
	w.entries = w.entries[:0]
}
