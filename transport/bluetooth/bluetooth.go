// Package bluetooth provides the Bluetooth SPP transport over BlueZ.
// The robot side exposes a Serial Port Profile RFCOMM channel; this
// package registers against BlueZ on the D-Bus system bus to serve or
// dial it, and hands the resulting RFCOMM socket up as a byte-stream
// endpoint. Only Linux hosts with BlueZ are supported; elsewhere every
// operation returns ErrUnsupported.
package bluetooth

import "errors"

const (
	// SPPUUID identifies the Serial Port Profile service.
	SPPUUID = "00001101-0000-1000-8000-00805f9b34fb"

	// DefaultChannel is the RFCOMM channel registered when serving.
	DefaultChannel uint8 = 22
)

// ErrUnsupported is returned on platforms without BlueZ.
var ErrUnsupported = errors.New("bluetooth transport requires linux with bluez")

// Device describes a discovered peer. Path is the BlueZ object path and
// is always set; the rest depends on what discovery yielded.
type Device struct {
	Path  string
	MAC   string
	Name  string
	Alias string
}

// Label returns the friendliest available display name.
func (d Device) Label() string {
	switch {
	case d.Alias != "":
		return d.Alias
	case d.Name != "":
		return d.Name
	case d.MAC != "":
		return d.MAC
	default:
		return d.Path
	}
}
