package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/risa-org/rcl/transport"
)

func TestListenDialExchange(t *testing.T) {
	ctx := context.Background()

	lis, err := Binder{}.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer lis.Close()
	url := "ws://" + lis.(*Listener).Addr().String()

	type accepted struct {
		ep  transport.Endpoint
		err error
	}
	acceptCh := make(chan accepted, 1)
	go func() {
		ep, err := lis.Accept(ctx)
		acceptCh <- accepted{ep: ep, err: err}
	}()

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := Dialer{}.Dial(dialCtx, url)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	var server transport.Endpoint
	select {
	case a := <-acceptCh:
		if a.err != nil {
			t.Fatalf("Accept failed: %v", a.err)
		}
		server = a.ep
	case <-time.After(5 * time.Second):
		t.Fatal("Accept never returned")
	}
	defer server.Close()

	if _, err := client.Write([]byte("STATUS,hello\n")); err != nil {
		t.Fatalf("client write failed: %v", err)
	}
	buf := make([]byte, 64)
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("server read failed: %v", err)
	}
	if string(buf[:n]) != "STATUS,hello\n" {
		t.Errorf("unexpected bytes %q", buf[:n])
	}

	// and back the other way
	if _, err := server.Write([]byte("f\n")); err != nil {
		t.Fatalf("server write failed: %v", err)
	}
	n, err = client.Read(buf)
	if err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if string(buf[:n]) != "f\n" {
		t.Errorf("unexpected bytes %q", buf[:n])
	}
}

func TestAcceptAfterClose(t *testing.T) {
	lis, err := Binder{}.Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	lis.Close()
	lis.Close() // idempotent

	if _, err := lis.Accept(context.Background()); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestAcceptCancellation(t *testing.T) {
	lis, err := Binder{}.Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer lis.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := lis.Accept(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Accept did not unblock on cancellation")
	}
}
