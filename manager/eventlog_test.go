package manager

import (
	"strconv"
	"testing"
)

func TestEventLogBounded(t *testing.T) {
	l := newEventLog(4)
	for i := 0; i < 10; i++ {
		l.append(Event{Kind: EventNotice, Message: strconv.Itoa(i)})
	}
	if l.size() != 4 {
		t.Fatalf("expected log capped at 4, got %d", l.size())
	}

	got := l.snapshot()
	for i, ev := range got {
		want := strconv.Itoa(6 + i)
		if ev.Message != want {
			t.Errorf("entry %d: expected %s, got %s", i, want, ev.Message)
		}
	}
}

func TestEventLogSnapshotIsCopy(t *testing.T) {
	l := newEventLog(8)
	l.append(Event{Kind: EventNotice, Message: "first"})

	snap := l.snapshot()
	snap[0].Message = "mutated"

	if l.snapshot()[0].Message != "first" {
		t.Error("snapshot aliases the live log")
	}
}

func TestEventLogDefaultCapacity(t *testing.T) {
	l := newEventLog(0)
	for i := 0; i < DefaultLogCapacity+10; i++ {
		l.append(Event{Kind: EventNotice})
	}
	if l.size() != DefaultLogCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultLogCapacity, l.size())
	}
}
