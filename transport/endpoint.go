package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Accept, Listen, and Dial once the transport
// has been shut down. The accept loop treats it as a terminal condition,
// not a transient failure to retry.
var ErrClosed = errors.New("transport closed")

// ErrPermissionDenied is returned when the platform refuses access to the
// transport (e.g. the Bluetooth stack rejects the profile or the user has
// not granted the permission). The connection manager reports this to the
// application as a distinct rejection so the UI can prompt instead of
// retrying blindly.
var ErrPermissionDenied = errors.New("transport permission denied")

// DisconnectReason tells the manager why a session ended.
// This feeds directly into the recovery policy — remote and error
// disconnects trigger an automatic return to listening, local ones never do.
type DisconnectReason int

const (
	ReasonLocal  DisconnectReason = iota // this side asked for the teardown
	ReasonRemote                         // peer closed, orderly or inferred
	ReasonError                          // read/write failure, anything unexplained
)

// String returns the reason name used in events and logs.
func (r DisconnectReason) String() string {
	switch r {
	case ReasonLocal:
		return "local"
	case ReasonRemote:
		return "remote"
	case ReasonError:
		return "error"
	default:
		return "unknown"
	}
}

// Endpoint is one live duplex byte stream. The core never assumes more than
// this: a blocking Read, a Write, and a Close that unblocks both.
//
// Read must return n <= 0 or an error once the peer is gone. Close must be
// safe to call from a goroutine other than the reader.
type Endpoint interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Listener hands out endpoints for inbound connections.
// Accept blocks until a peer connects or ctx is canceled. The manager
// accepts one connection, closes the listener, runs the session to
// completion, and then listens again — so implementations only ever need
// to produce endpoints one at a time.
type Listener interface {
	Accept(ctx context.Context) (Endpoint, error)
	Close() error
}

// Binder opens a listening endpoint for the given service identity.
// What "service" means is transport-specific: a TCP listen address, an SPP
// service name, a websocket bind address.
type Binder interface {
	Listen(ctx context.Context, service string) (Listener, error)
}

// Dialer opens an outbound connection to a peer handle discovered by an
// external device-enumeration collaborator. The handle format is
// transport-specific: host:port, ws:// URL, BlueZ device object path.
type Dialer interface {
	Dial(ctx context.Context, peer string) (Endpoint, error)
}
