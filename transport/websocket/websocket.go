// Package websocket provides the WebSocket transport. The serial link is
// a byte stream, so each side wraps the message-oriented connection with
// websocket.NetConn — every text message carries a chunk of the stream
// and framing happens above the transport, same as TCP.
package websocket

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/risa-org/rcl/transport"
)

// Binder serves WebSocket upgrades on a host:port. The zero value is
// ready to use.
type Binder struct{}

// Listen binds an HTTP server that upgrades every request to a
// WebSocket and queues the resulting connection for Accept.
func (Binder) Listen(ctx context.Context, service string) (transport.Listener, error) {
	var lc net.ListenConfig
	nl, err := lc.Listen(ctx, "tcp", service)
	if err != nil {
		return nil, err
	}

	l := &Listener{
		nl:    nl,
		conns: make(chan net.Conn, 1),
		done:  make(chan struct{}),
	}
	l.srv = &http.Server{Handler: http.HandlerFunc(l.upgrade)}
	go l.srv.Serve(nl)
	return l, nil
}

// Dialer connects to ws:// and wss:// URLs. The zero value is ready to
// use.
type Dialer struct{}

// Dial opens a WebSocket to the given URL and returns it as a byte
// stream endpoint.
func (Dialer) Dial(ctx context.Context, peer string) (transport.Endpoint, error) {
	conn, _, err := websocket.Dial(ctx, peer, nil)
	if err != nil {
		return nil, err
	}
	return websocket.NetConn(context.Background(), conn, websocket.MessageText), nil
}

// Listener hands out upgraded connections one at a time.
type Listener struct {
	nl    net.Listener
	srv   *http.Server
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

// Addr returns the bound address, useful with a ":0" bind.
func (l *Listener) Addr() net.Addr {
	return l.nl.Addr()
}

func (l *Listener) upgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	nc := websocket.NetConn(context.Background(), conn, websocket.MessageText)
	select {
	case l.conns <- nc:
	case <-l.done:
		nc.Close()
	}
}

// Accept waits for one upgraded connection.
func (l *Listener) Accept(ctx context.Context) (transport.Endpoint, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting and shuts the HTTP server down. Safe to call
// more than once.
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err = l.srv.Shutdown(ctx)
	})
	return err
}
