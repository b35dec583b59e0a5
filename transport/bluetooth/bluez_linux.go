//go:build linux

package bluetooth

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	dbus "github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"github.com/risa-org/rcl/transport"
)

const (
	bluezService        = "org.bluez"
	profileIface        = "org.bluez.Profile1"
	profileManagerIface = "org.bluez.ProfileManager1"
	deviceIface         = "org.bluez.Device1"
	adapterIface        = "org.bluez.Adapter1"
	objManagerIface     = "org.freedesktop.DBus.ObjectManager"
	propsIface          = "org.freedesktop.DBus.Properties"
)

var pathCounter uint64

// Transport talks to BlueZ over the system bus. One Transport can serve
// and dial; the SPP profiles are registered lazily and stay registered
// until Close so the manager can re-listen without re-registering.
type Transport struct {
	mu      sync.Mutex
	bus     *dbus.Conn
	closed  bool
	cleanup []func()

	channel uint8

	serverRegistered bool
	serverConns      chan *os.File

	clientRegistered bool
	clientConns      chan *os.File
}

// New creates a Transport. The bus connection is established on first
// use.
func New() *Transport {
	return &Transport{channel: DefaultChannel}
}

// ensureBusLocked connects to the system bus once. Callers hold t.mu.
func (t *Transport) ensureBusLocked() error {
	if t.bus != nil {
		return nil
	}
	bus, err := dbus.SystemBus()
	if err != nil {
		return errors.Wrap(err, "connect system bus")
	}
	t.bus = bus
	t.cleanup = append(t.cleanup, func() { bus.Close() })
	return nil
}

// profile implements org.bluez.Profile1. BlueZ calls NewConnection with
// the RFCOMM socket FD whenever the profile connects, server or client
// side alike.
type profile struct {
	conns chan *os.File
}

func (p *profile) Release() *dbus.Error { return nil }

func (p *profile) Cancel() *dbus.Error { return nil }

func (p *profile) RequestDisconnection(_ dbus.ObjectPath) *dbus.Error { return nil }

func (p *profile) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	f := os.NewFile(uintptr(fd), "rfcomm:"+macFromPath(dev))
	select {
	case p.conns <- f:
		return nil
	default:
		// nobody accepting: close the FD so it cannot leak
		_ = f.Close()
		return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []interface{}{"no receiver"}}
	}
}

// registerProfileLocked exports a Profile1 object and registers it with
// BlueZ. Callers hold t.mu.
func (t *Transport) registerProfileLocked(role, name string, conns chan *os.File) error {
	id := atomic.AddUint64(&pathCounter, 1)
	path := dbus.ObjectPath("/org/rcl/" + role + "/p" + strconv.FormatUint(id, 10))
	if err := t.bus.Export(&profile{conns: conns}, path, profileIface); err != nil {
		return errors.Wrapf(err, "export %s profile", role)
	}

	opts := map[string]dbus.Variant{
		"Role": dbus.MakeVariant(role),
	}
	if role == "server" {
		opts["Name"] = dbus.MakeVariant(name)
		// BlueZ wants Channel as uint16
		opts["Channel"] = dbus.MakeVariant(uint16(t.channel))
	}
	pm := t.bus.Object(bluezService, dbus.ObjectPath("/org/bluez"))
	if call := pm.Call(profileManagerIface+".RegisterProfile", 0, path, SPPUUID, opts); call.Err != nil {
		return mapBluezError(call.Err, "RegisterProfile("+role+")")
	}
	bus := t.bus
	t.cleanup = append(t.cleanup, func() {
		_ = pm.Call(profileManagerIface+".UnregisterProfile", 0, path).Err
		_ = bus.Export(nil, path, profileIface)
	})
	return nil
}

// Listen registers the server-side SPP profile and returns a listener
// over incoming RFCOMM connections. service names the profile in SDP.
func (t *Transport) Listen(ctx context.Context, service string) (transport.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, transport.ErrClosed
	}
	if err := t.ensureBusLocked(); err != nil {
		return nil, err
	}
	if !t.serverRegistered {
		if service == "" {
			service = "rcl"
		}
		t.serverConns = make(chan *os.File, 1)
		if err := t.registerProfileLocked("server", service, t.serverConns); err != nil {
			return nil, err
		}
		t.serverRegistered = true
	}
	return &listener{conns: t.serverConns, done: make(chan struct{})}, nil
}

// Dial connects to a peer identified by BlueZ object path or MAC
// address, pairing first when the device is not yet paired.
func (t *Transport) Dial(ctx context.Context, peer string) (transport.Endpoint, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, transport.ErrClosed
	}
	if err := t.ensureBusLocked(); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	if !t.clientRegistered {
		t.clientConns = make(chan *os.File, 1)
		if err := t.registerProfileLocked("client", "", t.clientConns); err != nil {
			t.mu.Unlock()
			return nil, err
		}
		t.clientRegistered = true
	}
	bus := t.bus
	conns := t.clientConns
	t.mu.Unlock()

	devPath, err := resolveDevicePath(bus, peer)
	if err != nil {
		return nil, err
	}
	dev := bus.Object(bluezService, devPath)

	// pair first when needed; BlueZ refuses SPP to an unpaired device
	var paired dbus.Variant
	if call := dev.Call(propsIface+".Get", 0, deviceIface, "Paired"); call.Err == nil {
		if err := call.Store(&paired); err == nil {
			if b, ok := paired.Value().(bool); ok && !b {
				if err := dev.Call(deviceIface+".Pair", 0).Err; err != nil {
					return nil, mapBluezError(err, "Pair")
				}
			}
		}
	}

	if call := dev.Call(deviceIface+".ConnectProfile", 0, SPPUUID); call.Err != nil {
		return nil, mapBluezError(call.Err, "ConnectProfile")
	}

	select {
	case f := <-conns:
		return f, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "connect canceled")
	}
}

// Scan discovers nearby devices advertising SPP until ctx ends and
// returns the snapshot.
func (t *Transport) Scan(ctx context.Context) ([]Device, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, transport.ErrClosed
	}
	if err := t.ensureBusLocked(); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	bus := t.bus
	t.mu.Unlock()

	adapters, err := listAdapters(bus)
	if err != nil {
		return nil, err
	}
	for _, ap := range adapters {
		_ = bus.Object(bluezService, ap).Call(adapterIface+".StartDiscovery", 0).Err
		defer func(p dbus.ObjectPath) {
			_ = bus.Object(bluezService, p).Call(adapterIface+".StopDiscovery", 0).Err
		}(ap)
	}

	devices, err := snapshotSPPDevices(bus)
	if err != nil {
		return nil, err
	}

	sigCh := make(chan *dbus.Signal, 16)
	bus.Signal(sigCh)
	defer bus.RemoveSignal(sigCh)
	if err := bus.AddMatchSignal(
		dbus.WithMatchInterface(objManagerIface),
		dbus.WithMatchMember("InterfacesAdded"),
	); err != nil {
		return nil, errors.Wrap(err, "subscribe InterfacesAdded")
	}
	defer func() {
		_ = bus.RemoveMatchSignal(
			dbus.WithMatchInterface(objManagerIface),
			dbus.WithMatchMember("InterfacesAdded"),
		)
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case sig := <-sigCh:
			if sig == nil || len(sig.Body) < 2 {
				continue
			}
			path, _ := sig.Body[0].(dbus.ObjectPath)
			ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
			if dev, ok := deviceFromIfaces(path, ifaces); ok {
				devices[dev.Path] = dev
			}
		}
	}

	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, d)
	}
	return out, nil
}

// Close unregisters the profiles and drops the bus connection.
// Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	cleanup := t.cleanup
	t.cleanup = nil
	t.mu.Unlock()

	for i := len(cleanup) - 1; i >= 0; i-- {
		cleanup[i]()
	}
	return nil
}

// listener hands out RFCOMM connections delivered by BlueZ. Closing a
// listener stops this accept cycle only; the profile registration
// belongs to the Transport.
type listener struct {
	conns chan *os.File
	done  chan struct{}
	once  sync.Once
}

func (l *listener) Accept(ctx context.Context) (transport.Endpoint, error) {
	select {
	case f := <-l.conns:
		return f, nil
	case <-l.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *listener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

// mapBluezError folds BlueZ authorization failures into the shared
// permission sentinel and wraps everything else with context.
func mapBluezError(err error, op string) error {
	var derr dbus.Error
	if errors.As(err, &derr) {
		switch derr.Name {
		case "org.bluez.Error.NotAuthorized",
			"org.bluez.Error.NotPermitted",
			"org.freedesktop.DBus.Error.AccessDenied":
			return errors.Wrap(transport.ErrPermissionDenied, op)
		}
	}
	return errors.Wrap(err, op)
}

// resolveDevicePath accepts a device object path as-is and resolves a
// MAC address against the managed object tree.
func resolveDevicePath(bus *dbus.Conn, peer string) (dbus.ObjectPath, error) {
	if strings.HasPrefix(peer, "/") {
		return dbus.ObjectPath(peer), nil
	}
	devices, err := snapshotSPPDevices(bus)
	if err != nil {
		return "", err
	}
	for _, d := range devices {
		if strings.EqualFold(d.MAC, peer) {
			return dbus.ObjectPath(d.Path), nil
		}
	}
	return "", errors.Errorf("no known device with address %s", peer)
}

func listAdapters(bus *dbus.Conn) ([]dbus.ObjectPath, error) {
	objs, err := managedObjects(bus)
	if err != nil {
		return nil, err
	}
	var out []dbus.ObjectPath
	for path, ifaces := range objs {
		if _, ok := ifaces[adapterIface]; ok {
			out = append(out, path)
		}
	}
	return out, nil
}

func snapshotSPPDevices(bus *dbus.Conn) (map[string]Device, error) {
	objs, err := managedObjects(bus)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Device)
	for path, ifaces := range objs {
		if dev, ok := deviceFromIfaces(path, ifaces); ok {
			out[dev.Path] = dev
		}
	}
	return out, nil
}

func managedObjects(bus *dbus.Conn) (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	obj := bus.Object(bluezService, dbus.ObjectPath("/"))
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := obj.Call(objManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, errors.Wrap(call.Err, "GetManagedObjects")
	}
	if err := call.Store(&objs); err != nil {
		return nil, errors.Wrap(err, "decode GetManagedObjects")
	}
	return objs, nil
}

// deviceFromIfaces extracts a Device from a managed-object entry when it
// advertises SPP.
func deviceFromIfaces(path dbus.ObjectPath, ifaces map[string]map[string]dbus.Variant) (Device, bool) {
	props, ok := ifaces[deviceIface]
	if !ok {
		return Device{}, false
	}
	vUUIDs, ok := props["UUIDs"]
	if !ok {
		return Device{}, false
	}
	uuids, _ := vUUIDs.Value().([]string)
	if !containsUUID(uuids, SPPUUID) {
		return Device{}, false
	}
	d := Device{Path: string(path)}
	if v, ok := props["Address"]; ok {
		d.MAC, _ = v.Value().(string)
	}
	if v, ok := props["Name"]; ok {
		d.Name, _ = v.Value().(string)
	}
	if v, ok := props["Alias"]; ok {
		d.Alias, _ = v.Value().(string)
	}
	if d.MAC == "" {
		d.MAC = macFromPath(path)
	}
	return d, true
}

func containsUUID(list []string, target string) bool {
	for _, s := range list {
		if strings.EqualFold(s, target) {
			return true
		}
	}
	return false
}

// macFromPath recovers the address from a .../dev_XX_XX_XX_XX_XX_XX
// object path.
func macFromPath(p dbus.ObjectPath) string {
	s := string(p)
	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return ""
	}
	return strings.ReplaceAll(s[idx+5:], "_", ":")
}
