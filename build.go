package main

import (
	"context"
	"fmt"
	"log/slog"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
	"gitlab.com/tinyland/lab/pulsebar/pkg/bus"
	"gitlab.com/tinyland/lab/pulsebar/pkg/config"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules/battery"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules/bluetooth"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules/clock"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules/kube"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules/sysmetrics"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules/tailscale"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules/wifi"
	"gitlab.com/tinyland/lab/pulsebar/pkg/theme"
)

// builder turns module descriptors into running modules. Reactive kinds
// share one system bus connection, opened on first use.
type builder struct {
	theme   theme.Theme
	logger  *slog.Logger
	trigger *modules.Trigger

	connect   func(*slog.Logger) (bus.Bus, func() error, error)
	tailscale tailscale.StatusClient // nil dials tailscaled

	bus     bus.Bus
	busErr  error
	closers []func() error
}

func newBuilder(th theme.Theme, logger *slog.Logger, trigger *modules.Trigger) *builder {
	return &builder{
		theme:   th,
		logger:  logger,
		trigger: trigger,
		connect: func(l *slog.Logger) (bus.Bus, func() error, error) {
			c, err := bus.ConnectSystem(l)
			if err != nil {
				return nil, nil, err
			}
			return c, c.Close, nil
		},
	}
}

// build returns one module per descriptor, in slot order.
func (b *builder) build(descs []config.Module) ([]modules.Module, error) {
	mods := make([]modules.Module, 0, len(descs))
	for i, d := range descs {
		m, err := b.module(d)
		if err != nil {
			return nil, fmt.Errorf("modules[%d] (%s): %w", i, d.Kind(), err)
		}
		mods = append(mods, m)
	}
	return mods, nil
}

func (b *builder) module(d config.Module) (modules.Module, error) {
	switch d := d.(type) {
	case *config.ClockModule:
		c, err := clock.New(clock.Config{
			Format:      d.Format,
			ShortFormat: d.ShortFormat,
			Timezone:    d.Timezone,
			Interval:    d.Interval.Duration,
		})
		if err != nil {
			return nil, err
		}
		return b.poll(c), nil

	case *config.BatteryModule:
		return b.poll(battery.New(battery.Config{
			Name:     d.Name,
			Root:     d.Root,
			Interval: d.Interval.Duration,
		}, b.theme)), nil

	case *config.SysmetricsModule:
		metric, err := sysmetrics.ParseMetric(d.Metric)
		if err != nil {
			return nil, err
		}
		return b.poll(sysmetrics.New(sysmetrics.Config{
			Metric:   metric,
			Mount:    d.Mount,
			Interval: d.Interval.Duration,
		}, b.theme)), nil

	case *config.TailscaleModule:
		return b.poll(tailscale.New(tailscale.Config{
			SocketPath: d.Socket,
			Interval:   d.Interval.Duration,
		}, b.tailscale, b.theme)), nil

	case *config.KubeModule:
		return b.poll(kube.New(kube.Config{
			Kubeconfig: d.Kubeconfig,
			Context:    d.Context,
			Interval:   d.Interval.Duration,
		}, b.theme, b.logger)), nil

	case *config.WifiModule:
		name := "wifi:" + d.Interface
		sb, err := b.systemBus()
		if err != nil {
			return unavailable(name, err), nil
		}
		return wifi.New(sb,
			wifi.WithInterface(d.Interface),
			wifi.WithTheme(b.theme),
			wifi.WithLogger(b.logger),
		), nil

	case *config.BluetoothModule:
		sb, err := b.systemBus()
		if err != nil {
			return unavailable("bluetooth:"+d.Address, err), nil
		}
		return bluetooth.NewAdapter(sb, d.Address, b.logger), nil

	case *config.BluetoothDeviceModule:
		sb, err := b.systemBus()
		if err != nil {
			return unavailable("bluetooth_device:"+d.Address, err), nil
		}
		return bluetooth.NewDevice(sb, d.Address, b.logger), nil

	default:
		return nil, fmt.Errorf("unsupported module kind %q", d.Kind())
	}
}

func (b *builder) poll(c modules.Collector) modules.Module {
	return modules.Poll(c, modules.WithLogger(b.logger), modules.WithTrigger(b.trigger))
}

// systemBus connects once; a failed connection is remembered so every
// reactive slot reports the same error.
func (b *builder) systemBus() (bus.Bus, error) {
	if b.bus == nil && b.busErr == nil {
		sb, closeFn, err := b.connect(b.logger)
		if err != nil {
			b.busErr = err
			b.logger.Warn("system bus unavailable", "err", err)
		} else {
			b.bus = sb
			b.closers = append(b.closers, closeFn)
		}
	}
	return b.bus, b.busErr
}

// close releases shared connections.
func (b *builder) close() {
	for _, fn := range b.closers {
		if err := fn(); err != nil {
			b.logger.Debug("close", "err", err)
		}
	}
	b.closers = nil
}

// unavailableModule is a slot whose transport could not be set up. Its
// stream ends at once, so the slot stays empty.
type unavailableModule struct {
	name string
	err  error
}

func unavailable(name string, err error) modules.Module {
	return &unavailableModule{name: name, err: err}
}

func (u *unavailableModule) Name() string { return u.name }

func (u *unavailableModule) Run(context.Context, chan<- *block.Block) error {
	return u.err
}
