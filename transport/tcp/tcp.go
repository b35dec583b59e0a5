// Package tcp provides the TCP transport: a Binder that listens on a
// host:port and a Dialer that connects to one. A net.Conn is the
// endpoint as-is — line framing lives above the transport.
package tcp

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"

	"github.com/risa-org/rcl/transport"
)

// Binder listens on TCP addresses. The zero value is ready to use.
type Binder struct{}

// Listen binds the given host:port. Binding a privileged port without
// the capability surfaces as transport.ErrPermissionDenied.
func (Binder) Listen(ctx context.Context, service string) (transport.Listener, error) {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", service)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, transport.ErrPermissionDenied
		}
		return nil, err
	}
	return &Listener{l: l}, nil
}

// Dialer connects to TCP addresses. The zero value is ready to use.
type Dialer struct{}

// Dial connects to the given host:port.
func (Dialer) Dial(ctx context.Context, peer string) (transport.Endpoint, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", peer)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, transport.ErrPermissionDenied
		}
		return nil, err
	}
	return conn, nil
}

// Listener wraps a bound net.Listener with context-aware accepts.
type Listener struct {
	l         net.Listener
	closeOnce sync.Once
	closeErr  error
}

// Addr returns the bound address, useful with a ":0" bind.
func (l *Listener) Addr() net.Addr {
	return l.l.Addr()
}

// Accept waits for one connection. Cancellation closes the listener to
// unblock the pending accept.
func (l *Listener) Accept(ctx context.Context) (transport.Endpoint, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.l.Accept()
		ch <- result{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		_ = l.Close()
		// reap a connection that raced the cancellation
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, net.ErrClosed) {
				return nil, transport.ErrClosed
			}
			return nil, r.err
		}
		return r.conn, nil
	}
}

// Close shuts the listener down. Safe to call more than once.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.l.Close()
	})
	return l.closeErr
}
