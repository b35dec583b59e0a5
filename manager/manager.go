package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/risa-org/rcl/link"
	"github.com/risa-org/rcl/transport"
)

// Errors returned by manager operations. Every error return is mirrored
// by an event on the stream, so callers that only watch events miss
// nothing.
var (
	// ErrBusy is returned when an operation conflicts with the active
	// mode/state.
	ErrBusy = errors.New("manager busy: conflicting mode active")
	// ErrNotConnected is returned by SendLine with no active session.
	ErrNotConnected = errors.New("not connected")
	// ErrSendFailed is returned when the active session refused the line.
	ErrSendFailed = errors.New("send failed")
	// ErrManagerClosed is returned after Close.
	ErrManagerClosed = errors.New("manager closed")
)

// Default timing knobs.
const (
	// DefaultRetryDelay is the backoff after a transient listen/accept
	// failure.
	DefaultRetryDelay = 2 * time.Second
	// DefaultRecoverDelay is the pause before auto re-entering server
	// mode after an unintentional disconnect.
	DefaultRecoverDelay = time.Second
	// DefaultDialTimeout bounds one outbound connection attempt.
	DefaultDialTimeout = 15 * time.Second
	// DefaultEventBuffer is the event channel depth.
	DefaultEventBuffer = 64
)

// Options configures a Manager. Binder is required to serve, Dialer to
// connect; a manager built with only one of them simply cannot play the
// other role.
type Options struct {
	Binder  transport.Binder
	Dialer  transport.Dialer
	Service string // listening identity handed to Binder.Listen

	RetryDelay   time.Duration
	RecoverDelay time.Duration
	DialTimeout  time.Duration
	EventBuffer  int
	LogCapacity  int

	// Session tuning, passed through to each link session.
	EchoCapacity int
	IdleFlush    time.Duration

	Logger *slog.Logger
}

// Manager owns at most one live link session and the background accept
// loop. All public operations are safe for concurrent use; internally the
// manager is a plain mutex-guarded state machine whose blocking work
// happens on background goroutines.
type Manager struct {
	opts Options
	log  *slog.Logger
	elog *eventLog

	events     chan Event
	emitMu     sync.RWMutex
	emitClosed bool

	mu          sync.Mutex
	mode        Mode
	state       State
	session     *link.Session
	listener    transport.Listener
	serverStop  context.CancelFunc
	serverDone  chan struct{}
	dialCancel  context.CancelFunc
	intentional bool
	closed      bool
}

// New creates a manager in NONE/DISCONNECTED.
func New(opts Options) *Manager {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.RecoverDelay <= 0 {
		opts.RecoverDelay = DefaultRecoverDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		opts:   opts,
		log:    opts.Logger,
		elog:   newEventLog(opts.LogCapacity),
		events: make(chan Event, opts.EventBuffer),
	}
}

// Events returns the manager's event stream. The channel is closed by
// Close. A consumer that falls behind loses events from the channel but
// never from the bounded log.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Log returns a snapshot of the bounded event log, oldest first.
func (m *Manager) Log() []Event {
	return m.elog.snapshot()
}

// Mode returns the current role.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// State returns the current lifecycle stage.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StartServer enters server mode and begins accepting connections in the
// background, one session at a time. A no-op when already listening or
// serving a connection; rejected as BUSY when a different mode is active
// in a non-disconnected state.
func (m *Manager) StartServer() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.mode == ModeServer && (m.state == StateListening || m.state == StateConnected) {
		m.mu.Unlock()
		return nil // already serving
	}
	if m.state != StateDisconnected {
		m.mu.Unlock()
		m.emit(Event{Kind: EventSendRejected, Reject: RejectBusy,
			Message: "cannot start server: " + m.mode.String() + "/" + m.state.String() + " active"})
		return ErrBusy
	}
	if m.opts.Binder == nil {
		m.mu.Unlock()
		m.emit(Event{Kind: EventSendRejected, Reject: RejectBusy, Message: "no server transport configured"})
		return ErrBusy
	}

	// defensive: a stale session in DISCONNECTED state should not exist,
	// but tear it down rather than leak a reader
	if stale := m.session; stale != nil {
		m.session = nil
		go stale.Terminate(transport.ReasonLocal, "superseded")
	}

	m.intentional = false
	ctx, cancel := context.WithCancel(context.Background())
	m.serverStop = cancel
	done := make(chan struct{})
	m.serverDone = done
	m.setPhaseLocked(ModeServer, StateListening, "server started")
	m.mu.Unlock()

	go m.acceptLoop(ctx, done)
	return nil
}

// StopServer leaves server mode. Exactly one Disconnected(local) event is
// emitted whether or not a session was active: an active session reports
// its own termination, otherwise the manager reports directly.
func (m *Manager) StopServer() {
	m.mu.Lock()
	if m.mode != ModeServer {
		m.mu.Unlock()
		return
	}
	m.intentional = true
	cancel := m.serverStop
	m.serverStop = nil
	done := m.serverDone
	m.serverDone = nil
	lis := m.listener
	m.listener = nil
	sess := m.session
	m.setPhaseLocked(ModeNone, StateDisconnected, "server stopped")
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if lis != nil {
		_ = lis.Close() // unblock a pending accept
	}
	if sess != nil {
		sess.Terminate(transport.ReasonLocal, "server stopped")
	} else {
		m.emit(Event{Kind: EventDisconnected, Reason: transport.ReasonLocal, Message: "server stopped"})
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(m.opts.RetryDelay + time.Second):
			m.log.Warn("accept loop slow to stop")
		}
	}
}

// Connect dials a peer and enters client mode. When the server is
// running, it is stopped first — the two modes are mutually exclusive.
// Any other non-disconnected state is a BUSY rejection.
func (m *Manager) Connect(peer string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.mode == ModeServer {
		m.mu.Unlock()
		m.StopServer()
		m.mu.Lock()
	}
	if m.state != StateDisconnected {
		m.mu.Unlock()
		m.emit(Event{Kind: EventSendRejected, Reject: RejectBusy,
			Message: "cannot connect: " + m.mode.String() + "/" + m.state.String() + " active"})
		return ErrBusy
	}
	if m.opts.Dialer == nil {
		m.mu.Unlock()
		m.emit(Event{Kind: EventSendRejected, Reject: RejectBusy, Message: "no client transport configured"})
		return ErrBusy
	}

	m.intentional = false
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.DialTimeout)
	m.dialCancel = cancel
	m.setPhaseLocked(ModeClient, StateConnecting, "connecting to "+peer)
	m.mu.Unlock()

	go m.dial(ctx, peer)
	return nil
}

// DisconnectClient tears down the client connection (or a connect attempt
// in flight) intentionally — no auto-recovery follows.
func (m *Manager) DisconnectClient() {
	m.mu.Lock()
	if m.mode != ModeClient {
		m.mu.Unlock()
		return
	}
	m.intentional = true
	cancel := m.dialCancel
	m.dialCancel = nil
	sess := m.session
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sess != nil {
		sess.Terminate(transport.ReasonLocal, "client disconnect")
	} else if cancel == nil {
		m.mu.Lock()
		m.setPhaseLocked(ModeNone, StateDisconnected, "client disconnect")
		m.mu.Unlock()
		m.emit(Event{Kind: EventDisconnected, Reason: transport.ReasonLocal, Message: "client disconnect"})
	}
	// with an attempt still in flight, the dial goroutine observes the
	// cancellation and reports the disconnect itself
}

// SendLine hands a line to the active session. With no session the call
// does no I/O and synchronously emits a not-connected rejection; a
// session refusing the line (closing, or queue full) is an io-error
// rejection.
func (m *Manager) SendLine(line string) error {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()

	if sess == nil {
		m.emit(Event{Kind: EventSendRejected, Reject: RejectNotConnected, Message: "no active connection"})
		return ErrNotConnected
	}
	if !sess.Send(line) {
		m.emit(Event{Kind: EventSendRejected, Reject: RejectIOError, Message: "session refused line"})
		return ErrSendFailed
	}
	return nil
}

// Close shuts the manager down for good: stops serving, terminates any
// session, and closes the event channel.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.intentional = true
	cancelServer := m.serverStop
	m.serverStop = nil
	done := m.serverDone
	m.serverDone = nil
	cancelDial := m.dialCancel
	m.dialCancel = nil
	lis := m.listener
	m.listener = nil
	sess := m.session
	m.mu.Unlock()

	if cancelServer != nil {
		cancelServer()
	}
	if cancelDial != nil {
		cancelDial()
	}
	if lis != nil {
		_ = lis.Close()
	}
	if sess != nil {
		sess.Terminate(transport.ReasonLocal, "manager closed")
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(m.opts.RetryDelay + time.Second):
		}
	}

	m.emitMu.Lock()
	m.emitClosed = true
	close(m.events)
	m.emitMu.Unlock()
}

// ------------------------------------------------------------
// Server accept loop
// ------------------------------------------------------------

// acceptLoop runs in the background for the lifetime of server mode:
// listen, accept one connection, run the session to completion, listen
// again. Transient failures back off with a fixed delay.
func (m *Manager) acceptLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for ctx.Err() == nil {
		lis, err := m.opts.Binder.Listen(ctx, m.opts.Service)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.emit(Event{Kind: EventNotice, Message: "listen failed: " + err.Error()})
			if !sleepCtx(ctx, m.opts.RetryDelay) {
				return
			}
			continue
		}

		m.mu.Lock()
		if ctx.Err() != nil {
			m.mu.Unlock()
			_ = lis.Close()
			return
		}
		m.listener = lis
		m.setPhaseLocked(ModeServer, StateListening, "listening")
		m.mu.Unlock()

		ep, err := lis.Accept(ctx)
		_ = lis.Close()
		m.mu.Lock()
		m.listener = nil
		m.mu.Unlock()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.emit(Event{Kind: EventNotice, Message: "accept failed: " + err.Error()})
			if !sleepCtx(ctx, m.opts.RetryDelay) {
				return
			}
			continue
		}

		if ctx.Err() != nil {
			// stopped just as the connection landed
			_ = ep.Close()
			return
		}

		endCh := m.startSession(ep, "peer connected")
		if endCh == nil {
			// server torn down as the connection landed
			return
		}

		// serve exactly one session at a time
		select {
		case <-endCh:
		case <-ctx.Done():
			m.mu.Lock()
			sess := m.session
			m.mu.Unlock()
			if sess != nil {
				sess.Terminate(transport.ReasonLocal, "server stopped")
			}
			<-endCh
			return
		}
	}
}

// dial performs one outbound connection attempt.
func (m *Manager) dial(ctx context.Context, peer string) {
	ep, err := m.opts.Dialer.Dial(ctx, peer)

	m.mu.Lock()
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	if err != nil {
		intentional := m.intentional
		m.setPhaseLocked(ModeNone, StateDisconnected, "connect failed")
		m.mu.Unlock()

		if intentional {
			m.emit(Event{Kind: EventDisconnected, Reason: transport.ReasonLocal, Message: "connect canceled"})
			return
		}
		ev := Event{Kind: EventDisconnected, Reason: transport.ReasonError, Reject: RejectIOError,
			Message: "connect failed: " + err.Error()}
		if errors.Is(err, transport.ErrPermissionDenied) {
			ev.Reject = RejectPermissionDenied
			ev.Message = "connect failed: permission denied"
		}
		m.emit(ev)
		return
	}
	if m.closed || m.intentional {
		// canceled while the dial was completing: drop the connection and
		// settle the state machine
		m.setPhaseLocked(ModeNone, StateDisconnected, "connect canceled")
		m.mu.Unlock()
		_ = ep.Close()
		m.emit(Event{Kind: EventDisconnected, Reason: transport.ReasonLocal, Message: "connect canceled"})
		return
	}
	m.mu.Unlock()

	m.startSession(ep, "connected to "+peer)
}

// ------------------------------------------------------------
// Session lifecycle
// ------------------------------------------------------------

// startSession installs a fresh link session over the endpoint and
// reports CONNECTED. The returned channel closes when the session has
// fully terminated and its end has been processed. A teardown that
// landed between the caller's checks and the install here is caught
// under the same lock that installs the session: the endpoint is closed
// and nil is returned — whoever initiated the teardown already settled
// the state machine and emitted the disconnect.
func (m *Manager) startSession(ep transport.Endpoint, note string) chan struct{} {
	endCh := make(chan struct{})

	sess := link.New(ep, link.Options{
		EchoCapacity: m.opts.EchoCapacity,
		IdleFlush:    m.opts.IdleFlush,
		Logger:       m.log,
		OnLine: func(line string, echo bool) {
			m.emit(Event{Kind: EventLine, Line: line, Echo: echo})
		},
		OnTerminate: func(reason transport.DisconnectReason, message string) {
			m.onSessionEnd(reason, message)
			close(endCh)
		},
	})

	m.mu.Lock()
	if m.closed || m.intentional {
		m.mu.Unlock()
		_ = ep.Close()
		return nil
	}
	m.session = sess
	m.setPhaseLocked(m.mode, StateConnected, note)
	m.mu.Unlock()

	m.emit(Event{Kind: EventConnected, Message: note})
	sess.Start()
	return endCh
}

// onSessionEnd folds a session termination back into the state machine
// and applies the recovery policy: unintentional remote/error loss always
// ends in SERVER/LISTENING — the design's safe default is "always be
// listening" so the controlling tool can reconnect without user action.
// A prior CLIENT mode is not re-dialed; recovery falls back to serving.
func (m *Manager) onSessionEnd(reason transport.DisconnectReason, message string) {
	m.mu.Lock()
	m.session = nil
	intentional := m.intentional
	serverLoopAlive := m.serverStop != nil

	if !serverLoopAlive {
		// client mode, or server already unwound: fall to disconnected
		m.setPhaseLocked(ModeNone, StateDisconnected, message)
	}
	// under a live accept loop the loop itself re-enters LISTENING
	closed := m.closed
	m.mu.Unlock()

	m.emit(Event{Kind: EventDisconnected, Reason: reason, Message: message})

	if closed || intentional || reason == transport.ReasonLocal {
		return
	}
	if !serverLoopAlive && m.opts.Binder != nil {
		// lost a client session unintentionally: recover into the safe
		// default after a short pause
		time.AfterFunc(m.opts.RecoverDelay, func() {
			m.mu.Lock()
			idle := !m.closed && m.mode == ModeNone && m.state == StateDisconnected
			m.mu.Unlock()
			if !idle {
				// the user moved on during the pause; do not fight them
				return
			}
			if err := m.StartServer(); err != nil && !errors.Is(err, ErrManagerClosed) {
				m.log.Warn("auto-recovery failed", "error", err)
			}
		})
	}
}

// ------------------------------------------------------------
// Phase table and event plumbing
// ------------------------------------------------------------

type phase struct {
	mode  Mode
	state State
}

// validPhaseChange defines which mode/state moves are legal. The manager
// only ever drives legal moves; the table catches regressions and is
// exercised directly by tests.
var validPhaseChange = map[phase][]phase{
	{ModeNone, StateDisconnected}: {{ModeServer, StateListening}, {ModeClient, StateConnecting}},
	{ModeServer, StateListening}:  {{ModeServer, StateListening}, {ModeServer, StateConnected}, {ModeNone, StateDisconnected}},
	{ModeServer, StateConnected}:  {{ModeServer, StateListening}, {ModeNone, StateDisconnected}},
	{ModeClient, StateConnecting}: {{ModeClient, StateConnected}, {ModeNone, StateDisconnected}},
	{ModeClient, StateConnected}:  {{ModeNone, StateDisconnected}},
}

// phaseChangeAllowed reports whether moving between the two mode/state
// pairs is legal. Staying in place is always allowed.
func phaseChangeAllowed(from, to phase) bool {
	if from == to {
		return true
	}
	for _, p := range validPhaseChange[from] {
		if p == to {
			return true
		}
	}
	return false
}

// setPhaseLocked applies a mode/state change and emits a state event when
// anything actually changed. Callers hold m.mu.
func (m *Manager) setPhaseLocked(mode Mode, state State, message string) {
	from := phase{m.mode, m.state}
	to := phase{mode, state}
	if from == to {
		return
	}
	if !phaseChangeAllowed(from, to) {
		m.log.Warn("irregular phase change",
			"from_mode", from.mode, "from_state", from.state,
			"to_mode", to.mode, "to_state", to.state)
	}
	m.mode = mode
	m.state = state
	m.emit(Event{Kind: EventState, Mode: mode, State: state, Message: message})
}

// emit appends to the bounded log and offers the event to the stream.
// The channel send never blocks: the manager must not deadlock on a slow
// consumer, so overflow drops from the channel (the log still has it).
func (m *Manager) emit(ev Event) {
	ev.Time = time.Now()
	if ev.Kind != EventState {
		m.mu.Lock()
		ev.Mode = m.mode
		ev.State = m.state
		m.mu.Unlock()
	}
	m.elog.append(ev)
	m.log.Debug("event", "kind", ev.Kind, "message", ev.Message)

	m.emitMu.RLock()
	defer m.emitMu.RUnlock()
	if m.emitClosed {
		return
	}
	select {
	case m.events <- ev:
	default:
		m.log.Warn("event channel full, dropping", "kind", ev.Kind)
	}
}

// sleepCtx pauses for d, returning false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
