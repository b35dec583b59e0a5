// Package link runs one live session over a duplex byte-stream endpoint:
// a dedicated blocking read loop, a write pump that serializes outbound
// lines, newline framing with a bounded idle flush for stragglers, and
// echo suppression against a peer that reflects everything it receives.
//
// A Session is one-shot: once terminated it cannot be restarted. The
// connection manager creates a fresh Session (with fresh framer and echo
// window) for every accepted or dialed connection.
package link

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/risa-org/rcl/framing"
	"github.com/risa-org/rcl/transport"
)

// Defaults for session tuning knobs.
const (
	// DefaultIdleFlush bounds the latency of a partial line that never
	// receives a terminator.
	DefaultIdleFlush = 50 * time.Millisecond
	// DefaultJoinTimeout bounds how long Terminate waits for the reader
	// to unblock before returning anyway.
	DefaultJoinTimeout = time.Second
	// DefaultSendBuffer is the write queue depth; Send reports rejection
	// instead of blocking when it is full.
	DefaultSendBuffer = 16

	readBufferSize = 512
)

// Options configures a Session. OnLine and OnTerminate are how the session
// reports upward; both are invoked from session goroutines, never from the
// caller of Send.
type Options struct {
	// OnLine delivers each complete inbound line, tagged with whether it
	// was classified as a loopback echo of a line this side sent.
	OnLine func(line string, echo bool)

	// OnTerminate fires exactly once, with the first recorded cause.
	OnTerminate func(reason transport.DisconnectReason, message string)

	// EchoCapacity overrides the echo window size (default 32).
	EchoCapacity int

	// IdleFlush overrides the partial-line grace period.
	IdleFlush time.Duration

	// JoinTimeout overrides the bounded reader join in Terminate.
	JoinTimeout time.Duration

	// SendBuffer overrides the write queue depth.
	SendBuffer int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Session owns exactly one endpoint from Start to termination.
type Session struct {
	ep   transport.Endpoint
	opts Options
	log  *slog.Logger

	// mu guards the framer, the echo window, and the idle-flush timer.
	// Callbacks are always invoked outside this lock.
	mu         sync.Mutex
	framer     *framing.LineFramer
	echo       *framing.EchoWindow
	flushTimer *time.Timer

	writes    chan string
	closed    atomic.Bool
	cancel    context.CancelFunc
	loopsDone chan struct{}

	causeOnce  sync.Once
	finishOnce sync.Once
	cause      transport.DisconnectReason
	causeMsg   string
}

// New wraps an established endpoint. The session does not touch the
// endpoint until Start.
func New(ep transport.Endpoint, opts Options) *Session {
	if opts.IdleFlush <= 0 {
		opts.IdleFlush = DefaultIdleFlush
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = DefaultJoinTimeout
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{
		ep:        ep,
		opts:      opts,
		log:       opts.Logger,
		framer:    framing.NewLineFramer(),
		echo:      framing.NewEchoWindow(opts.EchoCapacity),
		writes:    make(chan string, opts.SendBuffer),
		loopsDone: make(chan struct{}),
		cause:     transport.ReasonError,
	}
}

// Start launches the read loop and write pump. The two loops are
// coordinated with an errgroup: either one failing cancels the other, and
// a monitor goroutine finishes the session once both have returned.
func (s *Session) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.readLoop(ctx)
	})
	group.Go(func() error {
		return s.writePump(ctx)
	})

	go func() {
		_ = group.Wait()
		close(s.loopsDone)
		s.finish()
	}()
}

// Send queues a line for transmission and returns immediately: true means
// accepted (the write happens asynchronously), false means the session is
// closed or the queue is full. An accepted line is remembered in the echo
// window so its reflection can be classified.
func (s *Session) Send(line string) bool {
	if s.closed.Load() {
		return false
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case s.writes <- line:
		// remembered only once the queue accepted it — a rejected send
		// must not leave a phantom entry that swallows a real peer line
		s.echo.RememberSent(line)
		return true
	default:
		return false
	}
}

// Terminate tears the session down: records the cause, closes the
// endpoint to unblock the reader, waits a bounded time for the loops, and
// finishes. Idempotent — only the first cause wins and the termination
// callback fires exactly once.
func (s *Session) Terminate(reason transport.DisconnectReason, message string) {
	s.setCause(reason, message)
	s.closed.Store(true)
	if s.cancel != nil {
		s.cancel()
	}
	_ = s.ep.Close()

	if s.cancel != nil {
		select {
		case <-s.loopsDone:
		case <-time.After(s.opts.JoinTimeout):
			s.log.Warn("session reader did not unblock in time", "timeout", s.opts.JoinTimeout)
		}
	}
	s.finish()
}

// Closed reports whether the session has begun terminating.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// setCause records the first termination cause; later causes are ignored.
func (s *Session) setCause(reason transport.DisconnectReason, message string) {
	s.causeOnce.Do(func() {
		s.cause = reason
		s.causeMsg = message
	})
}

// readLoop blocks on the endpoint and feeds the framer. It records its
// own termination cause before returning so the monitor goroutine only
// has to finish the session.
func (s *Session) readLoop(ctx context.Context) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.ep.Read(buf)
		if n > 0 {
			s.consume(buf[:n])
		}
		if err != nil {
			reason, msg := classifyReadError(err)
			s.setCause(reason, msg)
			s.closed.Store(true)
			return err
		}
		if n <= 0 {
			// zero or negative read without an error — peer is gone
			s.setCause(transport.ReasonRemote, "connection closed by peer")
			s.closed.Store(true)
			return io.EOF
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// consume pushes a chunk through the framer, classifies and delivers any
// complete lines, and arms the idle-flush timer when the chunk left a
// partial line and produced nothing complete.
func (s *Session) consume(chunk []byte) {
	type tagged struct {
		line string
		echo bool
	}

	s.mu.Lock()
	lines := s.framer.Push(chunk)
	out := make([]tagged, 0, len(lines))
	for _, line := range lines {
		out = append(out, tagged{line: line, echo: s.echo.IsEcho(line)})
	}
	armFlush := len(lines) == 0 && s.framer.HasPending()
	gen := s.framer.Generation()
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	if armFlush {
		s.flushTimer = time.AfterFunc(s.opts.IdleFlush, func() {
			s.idleFlush(gen)
		})
	}
	s.mu.Unlock()

	for _, l := range out {
		s.deliver(l.line, l.echo)
	}
}

// idleFlush force-emits a partial line that sat unterminated for the
// grace period. The generation stamp makes a flush scheduled before more
// data arrived a no-op — genuine data supersedes it.
func (s *Session) idleFlush(gen uint64) {
	if s.closed.Load() {
		return
	}

	s.mu.Lock()
	if s.framer.Generation() != gen || !s.framer.HasPending() {
		s.mu.Unlock()
		return
	}
	line, ok := s.framer.Flush()
	var echo bool
	if ok {
		echo = s.echo.IsEcho(line)
	}
	s.mu.Unlock()

	if ok {
		s.deliver(line, echo)
	}
}

// deliver hands one classified line upward.
func (s *Session) deliver(line string, echo bool) {
	s.log.Debug("line received", "line", line, "echo", echo)
	if s.opts.OnLine != nil {
		s.opts.OnLine(line, echo)
	}
}

// writePump serializes all outbound writes — two concurrent Sends can
// never interleave the bytes of two lines. A write failure records
// ReasonError and closes the endpoint to unblock the reader.
func (s *Session) writePump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line := <-s.writes:
			if _, err := s.ep.Write([]byte(line + "\n")); err != nil {
				s.setCause(transport.ReasonError, "write failed: "+err.Error())
				s.closed.Store(true)
				_ = s.ep.Close()
				return err
			}
			s.log.Debug("line sent", "line", line)
		}
	}
}

// finish completes the teardown exactly once: flush any pending partial
// line as a final message, reset framer and echo window, and report the
// recorded cause.
func (s *Session) finish() {
	s.finishOnce.Do(func() {
		s.closed.Store(true)

		s.mu.Lock()
		if s.flushTimer != nil {
			s.flushTimer.Stop()
			s.flushTimer = nil
		}
		line, ok := s.framer.Flush()
		var echo bool
		if ok {
			echo = s.echo.IsEcho(line)
		}
		s.framer.Reset()
		s.echo.Reset()
		reason, msg := s.cause, s.causeMsg
		s.mu.Unlock()

		if ok {
			s.deliver(line, echo)
		}

		s.log.Info("session terminated", "reason", reason, "message", msg)
		if s.opts.OnTerminate != nil {
			s.opts.OnTerminate(reason, msg)
		}
	})
}

// classifyReadError maps a read failure to a disconnect reason: orderly or
// inferred peer-side closure is ReasonRemote, everything else ReasonError.
func classifyReadError(err error) (transport.DisconnectReason, string) {
	switch {
	case errors.Is(err, io.EOF):
		return transport.ReasonRemote, "connection closed by peer"
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return transport.ReasonRemote, "connection closed"
	case strings.Contains(err.Error(), "use of closed"),
		strings.Contains(err.Error(), "closed pipe"),
		strings.Contains(err.Error(), "connection reset"):
		return transport.ReasonRemote, err.Error()
	default:
		return transport.ReasonError, err.Error()
	}
}
