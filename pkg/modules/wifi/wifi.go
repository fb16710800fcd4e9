// Package wifi tracks the link state of an iwd-managed wireless device.
//
// The tracker follows a chain of three remote objects: the device (powered
// flag), its station (a reference to the connected network) and that
// network (its display name). The network reference changes whenever the
// device roams or reconnects, so the name subscription is replaced on every
// change. All subscriptions are owned by a single goroutine and read through
// one select; a replaced subscription's channel is never selected again, so
// its late deliveries cannot reach the state machine.
package wifi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
	"gitlab.com/tinyland/lab/pulsebar/pkg/bus"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules"
	"gitlab.com/tinyland/lab/pulsebar/pkg/theme"
)

// iwd bus names.
const (
	Service      = "net.connman.iwd"
	DeviceIface  = "net.connman.iwd.Device"
	StationIface = "net.connman.iwd.Station"
	NetworkIface = "net.connman.iwd.Network"
)

// DefaultInterface is the network interface tracked when none is set.
const DefaultInterface = "wlan0"

const icon = "\uf1eb"

// Option configures a Wifi module.
type Option func(*Wifi)

// WithInterface selects the network interface by name.
func WithInterface(name string) Option {
	return func(w *Wifi) {
		if name != "" {
			w.iface = name
		}
	}
}

// WithTheme sets the palette used for the disconnected color.
func WithTheme(t theme.Theme) Option {
	return func(w *Wifi) { w.theme = t }
}

// WithLogger sets the module logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Wifi) { w.logger = l }
}

// Wifi is the wireless link module.
type Wifi struct {
	bus    bus.Bus
	iface  string
	theme  theme.Theme
	logger *slog.Logger
}

var _ modules.Module = (*Wifi)(nil)

// New returns a Wifi module reading from b.
func New(b bus.Bus, opts ...Option) *Wifi {
	w := &Wifi{
		bus:   b,
		iface: DefaultInterface,
		theme: theme.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Name returns "wifi:<interface>".
func (w *Wifi) Name() string { return "wifi:" + w.iface }

// Run locates the device and emits one block per state transition until
// ctx ends or the bus connection is lost.
func (w *Wifi) Run(ctx context.Context, out chan<- *block.Block) error {
	path, err := bus.Lookup(ctx, w.bus, Service, DeviceIface, "Name", w.iface)
	if err != nil {
		return fmt.Errorf("wifi: device %s: %w", w.iface, err)
	}

	t := &tracker{bus: w.bus, device: path, logger: w.logger.With("module", w.Name())}
	defer t.release()

	em := modules.NewEmitter(out)
	return t.run(ctx, func(s State) bool {
		return em.Emit(ctx, w.Block(s))
	})
}

// Block maps a state to its display block.
func (w *Wifi) Block(s State) *block.Block {
	switch s.Kind {
	case Disconnected:
		return block.New(icon).WithShort(icon).WithColor(w.theme.Dim)
	case Connected:
		return block.New(icon).WithShort(icon)
	case ConnectedTo:
		return block.New(icon + " " + s.Name).WithShort(icon)
	default:
		return nil
	}
}

// tracker owns the subscription chain for one device. At most one station
// watch and one network watch exist at a time; nil means not subscribed.
type tracker struct {
	bus    bus.Bus
	device dbus.ObjectPath
	logger *slog.Logger

	state   State
	powered bus.Watch
	station bus.Watch
	network bus.Watch
	netPath dbus.ObjectPath
}

// run drives the state machine. emit is called with the initial state and
// after every transition; run returns nil when emit reports the consumer is
// gone.
func (t *tracker) run(ctx context.Context, emit func(State) bool) error {
	w, err := t.watch(ctx, t.device, DeviceIface, "Powered")
	if err != nil {
		return err
	}
	t.powered = w

	emitted := false
	for {
		prev := t.state

		select {
		case <-ctx.Done():
			return nil

		case c, ok := <-bus.Changes(t.powered):
			if !ok {
				return fmt.Errorf("wifi: %s powered: %w", t.device, bus.ErrWatchClosed)
			}
			err = t.onPowered(ctx, c)

		case c, ok := <-bus.Changes(t.station):
			if !ok {
				return fmt.Errorf("wifi: %s station: %w", t.device, bus.ErrWatchClosed)
			}
			err = t.onStation(ctx, c)

		case c, ok := <-bus.Changes(t.network):
			if !ok {
				return fmt.Errorf("wifi: %s network: %w", t.netPath, bus.ErrWatchClosed)
			}
			t.onName(c)
		}
		if err != nil {
			return err
		}

		if emitted && t.state == prev {
			continue
		}
		t.logger.Debug("wifi state", "from", prev, "to", t.state)
		if !emit(t.state) {
			return nil
		}
		emitted = true
	}
}

// onPowered handles Device.Powered. An unreadable value counts as off.
func (t *tracker) onPowered(ctx context.Context, c bus.Change) error {
	powered, _ := c.Bool()
	if !powered {
		t.dropStation()
		t.state = State{Kind: PoweredOff}
		return nil
	}
	if t.station != nil {
		return nil
	}

	w, err := t.watch(ctx, t.device, StationIface, "ConnectedNetwork")
	if err != nil {
		return err
	}
	t.station = w
	t.state = State{Kind: Disconnected}
	return nil
}

// onStation handles Station.ConnectedNetwork. A cleared or unreadable
// reference means disconnected.
func (t *tracker) onStation(ctx context.Context, c bus.Change) error {
	path, ok := c.Path()
	if !ok {
		t.dropNetwork()
		t.state = State{Kind: Disconnected}
		return nil
	}
	if t.network != nil && path == t.netPath {
		return nil
	}

	t.dropNetwork()
	w, err := t.watch(ctx, path, NetworkIface, "Name")
	if err != nil {
		return err
	}
	t.network = w
	t.netPath = path
	t.state = State{Kind: Connected}
	return nil
}

// onName handles Network.Name. An unreadable or empty name falls back to
// Connected.
func (t *tracker) onName(c bus.Change) {
	name, ok := c.String()
	if !ok || name == "" {
		t.state = State{Kind: Connected}
		return
	}
	t.state = State{Kind: ConnectedTo, Name: name}
}

func (t *tracker) watch(ctx context.Context, path dbus.ObjectPath, iface, prop string) (bus.Watch, error) {
	w, err := t.bus.Watch(ctx, Service, path, iface, prop)
	if err != nil {
		return nil, fmt.Errorf("wifi: watch %s %s.%s: %w", path, iface, prop, err)
	}
	return w, nil
}

func (t *tracker) dropNetwork() {
	if t.network != nil {
		t.network.Close()
		t.network = nil
	}
	t.netPath = ""
}

func (t *tracker) dropStation() {
	t.dropNetwork()
	if t.station != nil {
		t.station.Close()
		t.station = nil
	}
}

// release closes every subscription.
func (t *tracker) release() {
	t.dropStation()
	if t.powered != nil {
		t.powered.Close()
		t.powered = nil
	}
}
