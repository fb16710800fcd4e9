package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"tailscale.com/ipn/ipnstate"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
	"gitlab.com/tinyland/lab/pulsebar/pkg/bus"
	"gitlab.com/tinyland/lab/pulsebar/pkg/config"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules"
	"gitlab.com/tinyland/lab/pulsebar/pkg/theme"
)

type stubStatus struct{}

func (stubStatus) Status(context.Context) (*ipnstate.Status, error) {
	return &ipnstate.Status{BackendState: "Running"}, nil
}

func testBuilder(connects *int, connErr error) *builder {
	b := newBuilder(theme.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)), modules.NewTrigger())
	b.connect = func(*slog.Logger) (bus.Bus, func() error, error) {
		*connects++
		if connErr != nil {
			return nil, nil, connErr
		}
		return bus.NewFake(), func() error { return nil }, nil
	}
	b.tailscale = stubStatus{}
	return b
}

func TestBuildEveryKindInOrder(t *testing.T) {
	var descs []config.Module
	for _, kind := range []string{
		config.KindClock, config.KindBattery, config.KindWifi, config.KindBluetooth,
		config.KindBluetoothDevice, config.KindSysmetrics, config.KindTailscale, config.KindKube,
	} {
		d, err := config.NewModule(kind)
		if err != nil {
			t.Fatal(err)
		}
		descs = append(descs, d)
	}
	descs[3].(*config.BluetoothModule).Address = "00:1A:7D:DA:71:13"
	descs[4].(*config.BluetoothDeviceModule).Address = "AA:BB:CC:DD:EE:FF"

	var connects int
	b := testBuilder(&connects, nil)
	mods, err := b.build(descs)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	want := []string{
		"clock", "battery:BAT0", "wifi:wlan0", "bluetooth:00:1A:7D:DA:71:13",
		"bluetooth_device:AA:BB:CC:DD:EE:FF", "sysmetrics:cpu", "tailscale", "kube",
	}
	if len(mods) != len(want) {
		t.Fatalf("built %d modules", len(mods))
	}
	for i, m := range mods {
		if m.Name() != want[i] {
			t.Errorf("slot %d = %q, want %q", i, m.Name(), want[i])
		}
	}
	if _, ok := mods[0].(*modules.Poller); !ok {
		t.Errorf("clock should be polled, got %T", mods[0])
	}
	if connects != 1 {
		t.Errorf("bus connects = %d, want 1 shared connection", connects)
	}
}

func TestBuildBusFailureIsScopedToSlot(t *testing.T) {
	var connects int
	boom := errors.New("no system bus")
	b := testBuilder(&connects, boom)

	wifiDesc, _ := config.NewModule(config.KindWifi)
	clockDesc, _ := config.NewModule(config.KindClock)
	btDesc := &config.BluetoothModule{Address: "00:1A:7D:DA:71:13"}
	mods, err := b.build([]config.Module{wifiDesc, clockDesc, btDesc})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if connects != 1 {
		t.Errorf("connects = %d, want 1", connects)
	}
	if err := mods[0].Run(context.Background(), make(chan *block.Block)); !errors.Is(err, boom) {
		t.Errorf("wifi Run = %v, want %v", err, boom)
	}
	if mods[2].Name() != "bluetooth:00:1A:7D:DA:71:13" {
		t.Errorf("bluetooth name = %q", mods[2].Name())
	}
}

func TestBuildRejectsBadDescriptors(t *testing.T) {
	var connects int
	b := testBuilder(&connects, nil)
	if _, err := b.build([]config.Module{&config.ClockModule{Timezone: "Mars/Olympus"}}); err == nil {
		t.Error("unknown timezone should fail")
	}
	if _, err := b.build([]config.Module{&config.SysmetricsModule{Metric: "gpu"}}); err == nil {
		t.Error("unknown metric should fail")
	}
}

func TestBuiltTailscaleModuleRenders(t *testing.T) {
	var connects int
	b := testBuilder(&connects, nil)
	mods, err := b.build([]config.Module{&config.TailscaleModule{Interval: config.Duration{Duration: time.Hour}}})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan *block.Block)
	go mods[0].Run(ctx, out)

	select {
	case got := <-out:
		if got == nil || got.Text != "TS 0/0" {
			t.Errorf("block = %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no block")
	}
}

func TestResolveTheme(t *testing.T) {
	cfg := config.DefaultConfig()
	if th, err := resolveTheme(cfg); err != nil || th.Name != theme.Default().Name {
		t.Errorf("default theme = %v, %v", th.Name, err)
	}
	cfg.Theme = "no-such-theme"
	if _, err := resolveTheme(cfg); err == nil {
		t.Error("unknown theme should fail")
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("debug") != slog.LevelDebug || parseLevel("WARN") != slog.LevelWarn || parseLevel("bogus") != slog.LevelInfo {
		t.Error("parseLevel mismatch")
	}
}
