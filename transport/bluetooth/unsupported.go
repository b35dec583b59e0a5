//go:build !linux

package bluetooth

import (
	"context"

	"github.com/risa-org/rcl/transport"
)

// Transport is a stub on platforms without BlueZ.
type Transport struct{}

// New creates a Transport whose operations all fail with ErrUnsupported.
func New() *Transport {
	return &Transport{}
}

func (t *Transport) Listen(ctx context.Context, service string) (transport.Listener, error) {
	return nil, ErrUnsupported
}

func (t *Transport) Dial(ctx context.Context, peer string) (transport.Endpoint, error) {
	return nil, ErrUnsupported
}

func (t *Transport) Scan(ctx context.Context) ([]Device, error) {
	return nil, ErrUnsupported
}

func (t *Transport) Close() error {
	return nil
}
