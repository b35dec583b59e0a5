package link

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/risa-org/rcl/transport"
)

// received is one delivered line with its echo tag.
type received struct {
	line string
	echo bool
}

// ended is one termination report.
type ended struct {
	reason  transport.DisconnectReason
	message string
}

// startSession wires a session over one end of a net.Pipe and collects
// its callbacks on channels.
func startSession(t *testing.T, conn net.Conn) (*Session, chan received, chan ended) {
	t.Helper()
	lines := make(chan received, 32)
	terms := make(chan ended, 4)

	s := New(conn, Options{
		OnLine: func(line string, echo bool) {
			lines <- received{line: line, echo: echo}
		},
		OnTerminate: func(reason transport.DisconnectReason, message string) {
			terms <- ended{reason: reason, message: message}
		},
	})
	s.Start()
	return s, lines, terms
}

func waitLine(t *testing.T, lines chan received) received {
	t.Helper()
	select {
	case l := <-lines:
		return l
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
		return received{}
	}
}

func waitEnd(t *testing.T, terms chan ended) ended {
	t.Helper()
	select {
	case e := <-terms:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for termination")
		return ended{}
	}
}

func TestSessionDeliversPeerLines(t *testing.T) {
	local, peer := net.Pipe()
	s, lines, _ := startSession(t, local)
	defer s.Terminate(transport.ReasonLocal, "test over")

	go peer.Write([]byte("STATUS,hello\n"))

	got := waitLine(t, lines)
	if got.line != "STATUS,hello" || got.echo {
		t.Errorf("expected peer line untagged, got %+v", got)
	}
}

func TestSessionSendAndEchoClassification(t *testing.T) {
	local, peer := net.Pipe()
	s, lines, _ := startSession(t, local)
	defer s.Terminate(transport.ReasonLocal, "test over")

	reader := bufio.NewReader(peer)
	if !s.Send("ADD,B1,(2,3)") {
		t.Fatal("expected Send to be accepted")
	}

	sent, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("peer read failed: %v", err)
	}
	if strings.TrimSpace(sent) != "ADD,B1,(2,3)" {
		t.Errorf("expected wire line with terminator, got %q", sent)
	}

	// peer reflects the line back — must classify as echo
	go peer.Write([]byte("ADD,B1,(2,3)\n"))
	got := waitLine(t, lines)
	if !got.echo {
		t.Errorf("expected reflected line tagged as echo, got %+v", got)
	}

	// the same text again is a genuine peer message
	go peer.Write([]byte("ADD,B1,(2,3)\n"))
	got = waitLine(t, lines)
	if got.echo {
		t.Errorf("expected repeated line tagged as peer-originated, got %+v", got)
	}
}

func TestSessionWritesAreSerialized(t *testing.T) {
	local, peer := net.Pipe()
	s, _, _ := startSession(t, local)
	defer s.Terminate(transport.ReasonLocal, "test over")

	reader := bufio.NewReader(peer)
	var wg sync.WaitGroup
	const n = 10
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !s.Send("STATUS,serialized-check") {
				time.Sleep(time.Millisecond)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for i := 0; i < n; i++ {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("peer read %d failed: %v", i, err)
		}
		if strings.TrimSpace(line) != "STATUS,serialized-check" {
			t.Fatalf("interleaved or corrupted line: %q", line)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("senders did not finish")
	}
}

func TestSessionIdleFlushEmitsStraggler(t *testing.T) {
	local, peer := net.Pipe()
	s, lines, _ := startSession(t, local)
	defer s.Terminate(transport.ReasonLocal, "test over")

	// no terminator — only the idle flush can deliver this
	go peer.Write([]byte("STRAGGLER"))

	got := waitLine(t, lines)
	if got.line != "STRAGGLER" {
		t.Errorf("expected flushed straggler, got %+v", got)
	}
}

func TestSessionIdleFlushSupersededByData(t *testing.T) {
	local, peer := net.Pipe()
	s, lines, _ := startSession(t, local)
	defer s.Terminate(transport.ReasonLocal, "test over")

	// second chunk arrives well inside the grace period and terminates
	// the line — it must come through whole, not split
	go func() {
		peer.Write([]byte("HALF"))
		time.Sleep(10 * time.Millisecond)
		peer.Write([]byte("-LINE\n"))
	}()

	got := waitLine(t, lines)
	if got.line != "HALF-LINE" {
		t.Errorf("expected reassembled line, got %+v", got)
	}

	// and no stale flush afterwards
	select {
	case extra := <-lines:
		t.Errorf("unexpected extra line: %+v", extra)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSessionRemoteCloseTerminatesWithRemote(t *testing.T) {
	local, peer := net.Pipe()
	_, _, terms := startSession(t, local)

	peer.Close()

	end := waitEnd(t, terms)
	if end.reason != transport.ReasonRemote {
		t.Errorf("expected ReasonRemote, got %v (%s)", end.reason, end.message)
	}
}

func TestSessionLocalTerminate(t *testing.T) {
	local, _ := net.Pipe()
	s, _, terms := startSession(t, local)

	s.Terminate(transport.ReasonLocal, "user disconnect")

	end := waitEnd(t, terms)
	if end.reason != transport.ReasonLocal || end.message != "user disconnect" {
		t.Errorf("expected local cause preserved, got %+v", end)
	}
}

func TestSessionTerminateIsIdempotent(t *testing.T) {
	local, _ := net.Pipe()
	s, _, terms := startSession(t, local)

	s.Terminate(transport.ReasonLocal, "first")
	s.Terminate(transport.ReasonError, "second")
	s.Terminate(transport.ReasonRemote, "third")

	end := waitEnd(t, terms)
	if end.reason != transport.ReasonLocal || end.message != "first" {
		t.Errorf("expected first cause to win, got %+v", end)
	}

	select {
	case extra := <-terms:
		t.Errorf("termination reported more than once: %+v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSessionTerminateFlushesPendingPartial(t *testing.T) {
	local, peer := net.Pipe()
	lines := make(chan received, 4)
	terms := make(chan ended, 1)
	s := New(local, Options{
		// long grace so the flush can only come from Terminate
		IdleFlush: 10 * time.Second,
		OnLine: func(line string, echo bool) {
			lines <- received{line: line, echo: echo}
		},
		OnTerminate: func(reason transport.DisconnectReason, message string) {
			terms <- ended{reason: reason, message: message}
		},
	})
	s.Start()

	go peer.Write([]byte("UNFINISHED"))
	time.Sleep(50 * time.Millisecond) // let the read land

	s.Terminate(transport.ReasonLocal, "closing")

	got := waitLine(t, lines)
	if got.line != "UNFINISHED" {
		t.Errorf("expected pending partial flushed at teardown, got %+v", got)
	}
	waitEnd(t, terms)
}

func TestSessionSendAfterTerminateRejected(t *testing.T) {
	local, _ := net.Pipe()
	s, _, terms := startSession(t, local)

	s.Terminate(transport.ReasonLocal, "bye")
	waitEnd(t, terms)

	if s.Send("anything") {
		t.Error("expected Send on terminated session to be rejected")
	}
}

func TestSessionSendEmptyRejected(t *testing.T) {
	local, _ := net.Pipe()
	s, _, _ := startSession(t, local)
	defer s.Terminate(transport.ReasonLocal, "test over")

	if s.Send("   ") {
		t.Error("expected whitespace-only send to be rejected")
	}
}
