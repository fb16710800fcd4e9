// Package bluetooth implements the BlueZ adapter and paired-device modules.
// Both locate their object by hardware address once at start and then
// follow property changes on it.
package bluetooth

import (
	"context"
	"fmt"
	"log/slog"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
	"gitlab.com/tinyland/lab/pulsebar/pkg/bus"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules"
)

// BlueZ bus names.
const (
	Service      = "org.bluez"
	AdapterIface = "org.bluez.Adapter1"
	DeviceIface  = "org.bluez.Device1"
	BatteryIface = "org.bluez.Battery1"
)

const adapterIcon = "\uf294"

// Adapter shows a bluetooth icon while the adapter is powered.
type Adapter struct {
	bus     bus.Bus
	address string
	logger  *slog.Logger
}

var _ modules.Module = (*Adapter)(nil)

// NewAdapter returns the module for the adapter with the given address.
func NewAdapter(b bus.Bus, address string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{bus: b, address: address, logger: logger}
}

// Name returns "bluetooth:<address>".
func (a *Adapter) Name() string { return "bluetooth:" + a.address }

// Run emits the adapter block on every Powered change.
func (a *Adapter) Run(ctx context.Context, out chan<- *block.Block) error {
	path, err := bus.Lookup(ctx, a.bus, Service, AdapterIface, "Address", a.address)
	if err != nil {
		return fmt.Errorf("bluetooth: adapter %s: %w", a.address, err)
	}

	w, err := a.bus.Watch(ctx, Service, path, AdapterIface, "Powered")
	if err != nil {
		return fmt.Errorf("bluetooth: watch %s powered: %w", path, err)
	}
	defer w.Close()

	em := modules.NewEmitter(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-w.Changes():
			if !ok {
				return fmt.Errorf("bluetooth: %s powered: %w", path, bus.ErrWatchClosed)
			}
			powered, _ := c.Bool()
			a.logger.Debug("adapter powered", "module", a.Name(), "powered", powered)
			if !em.Emit(ctx, AdapterBlock(powered)) {
				return nil
			}
		}
	}
}

// AdapterBlock is the adapter's display block, nil when unpowered.
func AdapterBlock(powered bool) *block.Block {
	if !powered {
		return nil
	}
	return block.New(adapterIcon).WithShort(adapterIcon)
}
