package bluetooth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
	"gitlab.com/tinyland/lab/pulsebar/pkg/bus"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules"
)

// DeviceState is what the device module knows about a paired device.
type DeviceState struct {
	Connected bool
	Alias     string
	Icon      string // freedesktop icon name reported by BlueZ
	Battery   *uint8 // nil when the device reports no battery
}

// Device shows a paired device while it is connected.
type Device struct {
	bus     bus.Bus
	address string
	logger  *slog.Logger
}

var _ modules.Module = (*Device)(nil)

// NewDevice returns the module for the device with the given address.
func NewDevice(b bus.Bus, address string, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{bus: b, address: address, logger: logger}
}

// Name returns "bluetooth_device:<address>".
func (d *Device) Name() string { return "bluetooth_device:" + d.address }

// deviceWatches holds one subscription per tracked property.
type deviceWatches struct {
	connected, alias, icon, battery bus.Watch
}

func (w *deviceWatches) close() {
	for _, x := range []bus.Watch{w.connected, w.alias, w.icon, w.battery} {
		if x != nil {
			x.Close()
		}
	}
}

// Run watches the device's connection, alias, icon and battery level and
// emits a block whenever the rendered result changes. Nothing is emitted
// until every property has reported its initial value.
func (d *Device) Run(ctx context.Context, out chan<- *block.Block) error {
	path, err := bus.Lookup(ctx, d.bus, Service, DeviceIface, "Address", d.address)
	if err != nil {
		return fmt.Errorf("bluetooth: device %s: %w", d.address, err)
	}

	var w deviceWatches
	defer w.close()
	for _, sub := range []struct {
		dst         *bus.Watch
		iface, prop string
	}{
		{&w.connected, DeviceIface, "Connected"},
		{&w.alias, DeviceIface, "Alias"},
		{&w.icon, DeviceIface, "Icon"},
		{&w.battery, BatteryIface, "Percentage"},
	} {
		*sub.dst, err = d.bus.Watch(ctx, Service, path, sub.iface, sub.prop)
		if err != nil {
			return fmt.Errorf("bluetooth: watch %s %s.%s: %w", path, sub.iface, sub.prop, err)
		}
	}

	var (
		state   DeviceState
		pending = 4
		seen    [4]bool
	)
	em := modules.NewEmitter(out)
	for {
		var (
			c    bus.Change
			ok   bool
			prop int
		)
		select {
		case <-ctx.Done():
			return nil
		case c, ok = <-w.connected.Changes():
			prop = 0
			state.Connected, _ = c.Bool()
		case c, ok = <-w.alias.Changes():
			prop = 1
			state.Alias, _ = c.String()
		case c, ok = <-w.icon.Changes():
			prop = 2
			state.Icon, _ = c.String()
		case c, ok = <-w.battery.Changes():
			prop = 3
			// Battery1 is optional; an unreadable level only hides the
			// percentage.
			if v, has := c.Uint8(); has {
				state.Battery = &v
			} else {
				state.Battery = nil
			}
		}
		if !ok {
			return fmt.Errorf("bluetooth: device %s: %w", path, bus.ErrWatchClosed)
		}
		if !seen[prop] {
			seen[prop] = true
			pending--
		}
		if pending > 0 {
			continue
		}

		d.logger.Debug("device state", "module", d.Name(), "connected", state.Connected, "alias", state.Alias)
		if !em.Emit(ctx, DeviceBlock(state)) {
			return nil
		}
	}
}

// DeviceIcon maps a BlueZ icon name to a glyph.
func DeviceIcon(name string) string {
	switch name {
	case "audio-card", "audio-headset", "audio-headphones":
		return "\uf025"
	case "input-gaming":
		return "\uf11b"
	case "input-keyboard":
		return "\uf11c"
	case "input-mouse":
		return "\uf8cc"
	default:
		return "\uf293"
	}
}

// DeviceBlock renders s: hidden unless connected, full text
// "icon alias pct%", short text "icon pct%".
func DeviceBlock(s DeviceState) *block.Block {
	if !s.Connected {
		return nil
	}
	icon := DeviceIcon(s.Icon)

	full := []string{icon}
	short := []string{icon}
	if s.Alias != "" {
		full = append(full, s.Alias)
	}
	if s.Battery != nil {
		pct := fmt.Sprintf("%d%%", *s.Battery)
		full = append(full, pct)
		short = append(short, pct)
	}
	return block.New(strings.Join(full, " ")).WithShort(strings.Join(short, " "))
}
