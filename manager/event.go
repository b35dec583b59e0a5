// Package manager is the connection session manager: the state machine
// that opens and accepts link sessions, enforces server/client mode
// exclusivity, retries listening after remote-initiated disconnects, and
// exposes one uniform event stream to the application.
package manager

import (
	"time"

	"github.com/risa-org/rcl/transport"
)

// Mode is which role the manager is currently playing. Exactly one mode
// is active at a time — entering one from another first tears the other
// down.
type Mode int

const (
	ModeNone Mode = iota
	ModeServer
	ModeClient
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeServer:
		return "server"
	case ModeClient:
		return "client"
	default:
		return "unknown"
	}
}

// State is the connection lifecycle stage, orthogonal to Mode but
// constrained: listening only under server mode, connecting only under
// client mode, connected under either.
type State int

const (
	StateDisconnected State = iota
	StateListening
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateListening:
		return "listening"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// RejectReason says why a command was refused. Rejections are synchronous
// and non-fatal — the manager reports them and carries on.
type RejectReason int

const (
	RejectBusy RejectReason = iota
	RejectNotConnected
	RejectPermissionDenied
	RejectIOError
)

func (r RejectReason) String() string {
	switch r {
	case RejectBusy:
		return "busy"
	case RejectNotConnected:
		return "not_connected"
	case RejectPermissionDenied:
		return "permission_denied"
	case RejectIOError:
		return "io_error"
	default:
		return "unknown"
	}
}

// EventKind discriminates Event.
type EventKind int

const (
	// EventState reports a mode/state change.
	EventState EventKind = iota
	// EventConnected reports a session coming up.
	EventConnected
	// EventDisconnected reports a session (or attempt) ending; Reason is
	// populated, and Reject distinguishes permission denials on failed
	// connect attempts.
	EventDisconnected
	// EventLine delivers one inbound line, tagged echo or not.
	EventLine
	// EventSendRejected reports a refused command; Reject is populated.
	EventSendRejected
	// EventNotice carries a free-form log message.
	EventNotice
)

func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventLine:
		return "line"
	case EventSendRejected:
		return "send_rejected"
	case EventNotice:
		return "notice"
	default:
		return "unknown"
	}
}

// Event is the single typed notification the manager emits. The
// application-level aggregator is the sole consumer; it folds these into
// its own model and appends every one to its log view.
type Event struct {
	Kind    EventKind
	Time    time.Time
	Mode    Mode
	State   State
	Reason  transport.DisconnectReason // EventDisconnected
	Reject  RejectReason               // EventSendRejected, EventDisconnected
	Line    string                     // EventLine
	Echo    bool                       // EventLine
	Message string                     // human-readable detail, may be empty
}
