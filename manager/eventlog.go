package manager

import "sync"

// DefaultLogCapacity bounds the in-memory event log.
const DefaultLogCapacity = 256

// eventLog is an append-only, size-bounded record of every event the
// manager has emitted — the application renders this instead of modal
// errors. When full, the oldest entries are dropped first.
type eventLog struct {
	mu       sync.Mutex
	events   []Event
	capacity int
}

func newEventLog(capacity int) *eventLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &eventLog{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
	}
}

// append records one event, evicting the oldest when full.
func (l *eventLog) append(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) >= l.capacity {
		l.events = l.events[1:] // drop oldest
	}
	l.events = append(l.events, ev)
}

// snapshot returns a copy of the log, oldest first.
func (l *eventLog) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// size returns the current entry count.
func (l *eventLog) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
