package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleTOML = `
format = "swaybar"
theme = "nord"

[log]
level = "debug"

[daemon]
pid_file = "/run/user/1000/pulsebar.pid"
socket = "/run/user/1000/pulsebar.sock"

[[modules]]
kind = "wifi"
interface = "wlp2s0"

[[modules]]
kind = "sysmetrics"
metric = "disk"
mount = "/home"

[[modules]]
kind = "battery"

[[modules]]
kind = "clock"
format = "%H:%M"
timezone = "Europe/Ljubljana"
interval = "30s"
`

const sampleYAML = `
format: term
term:
  max_width: 80
mqtt:
  enabled: true
  broker: tcp://broker:1883
  qos: 1
modules:
  - kind: bluetooth
    address: "00:1A:7D:DA:71:13"
  - kind: bluetooth_device
    address: "AA:BB:CC:DD:EE:FF"
  - kind: kube
    context: prod
    interval: 1m
  - kind: clock
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PULSEBAR_FORMAT", "PULSEBAR_THEME", "PULSEBAR_LOG_LEVEL", "PULSEBAR_MQTT_BROKER", "PULSEBAR_MAX_WIDTH"} {
		t.Setenv(k, "")
	}
}

func TestLoadTOMLModulesInOrder(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromReader(strings.NewReader(sampleTOML), TOML)
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Format != "swaybar" || cfg.Theme != "nord" || cfg.Log.Level != "debug" {
		t.Errorf("top level = %q %q %q", cfg.Format, cfg.Theme, cfg.Log.Level)
	}
	if cfg.Daemon.Socket != "/run/user/1000/pulsebar.sock" {
		t.Errorf("Daemon.Socket = %q", cfg.Daemon.Socket)
	}

	var kinds []string
	for _, m := range cfg.Modules {
		kinds = append(kinds, m.Kind())
	}
	if got := strings.Join(kinds, ","); got != "wifi,sysmetrics,battery,clock" {
		t.Fatalf("kinds = %s", got)
	}

	if w := cfg.Modules[0].(*WifiModule); w.Interface != "wlp2s0" {
		t.Errorf("wifi interface = %q", w.Interface)
	}
	if s := cfg.Modules[1].(*SysmetricsModule); s.Metric != "disk" || s.Mount != "/home" {
		t.Errorf("sysmetrics = %+v", s)
	}
	// Kind defaults survive a descriptor that sets nothing.
	if b := cfg.Modules[2].(*BatteryModule); b.Name != "BAT0" || b.Interval.Duration != 10*time.Second {
		t.Errorf("battery = %+v", b)
	}
	c := cfg.Modules[3].(*ClockModule)
	if c.Format != "%H:%M" || c.ShortFormat != "%H:%M" || c.Timezone != "Europe/Ljubljana" || c.Interval.Duration != 30*time.Second {
		t.Errorf("clock = %+v", c)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromReader(strings.NewReader(sampleYAML), YAML)
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Format != "term" || cfg.Term.MaxWidth != 80 {
		t.Errorf("format=%q max_width=%d", cfg.Format, cfg.Term.MaxWidth)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "tcp://broker:1883" || cfg.MQTT.QoS != 1 || cfg.MQTT.Topic != "pulsebar/blocks" {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
	if len(cfg.Modules) != 4 {
		t.Fatalf("modules = %d", len(cfg.Modules))
	}
	if d := cfg.Modules[1].(*BluetoothDeviceModule); d.Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("device address = %q", d.Address)
	}
	if k := cfg.Modules[2].(*KubeModule); k.Context != "prod" || k.Interval.Duration != time.Minute {
		t.Errorf("kube = %+v", k)
	}
	if c := cfg.Modules[3].(*ClockModule); c.Format != "%Y-%m-%d %H:%M:%S" {
		t.Errorf("clock default format = %q", c.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadUnknownKind(t *testing.T) {
	clearEnv(t)
	_, err := LoadFromReader(strings.NewReader("[[modules]]\nkind = \"weather\"\n"), TOML)
	if err == nil || !strings.Contains(err.Error(), `unknown module kind "weather"`) {
		t.Errorf("err = %v", err)
	}
	_, err = LoadFromReader(strings.NewReader("modules:\n  - interface: wlan0\n"), YAML)
	if err == nil || !strings.Contains(err.Error(), "without kind") {
		t.Errorf("yaml err = %v", err)
	}
}

func TestLoadBadDuration(t *testing.T) {
	clearEnv(t)
	_, err := LoadFromReader(strings.NewReader("[[modules]]\nkind = \"clock\"\ninterval = \"soon\"\n"), TOML)
	if err == nil {
		t.Error("expected invalid duration error")
	}
}

func TestEmptyModulesUsePresetThenDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromReader(strings.NewReader(`preset = "ops"`), TOML)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Modules) != 7 || cfg.Modules[0].Kind() != KindTailscale {
		t.Errorf("ops preset modules = %d", len(cfg.Modules))
	}

	cfg, err = LoadFromReader(strings.NewReader(""), TOML)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Modules) != 2 || cfg.Modules[0].Kind() != KindBattery || cfg.Modules[1].Kind() != KindClock {
		t.Errorf("default modules = %v", cfg.Modules)
	}

	if _, err := LoadFromReader(strings.NewReader(`preset = "gaming"`), TOML); err == nil {
		t.Error("unknown preset should fail")
	}
}

func TestPresetsAreFreshCopies(t *testing.T) {
	a, _ := Preset("laptop")
	a[0].(*SysmetricsModule).Metric = "disk"
	b, _ := Preset("laptop")
	if b[0].(*SysmetricsModule).Metric != "cpu" {
		t.Error("presets share descriptors")
	}
	if got := strings.Join(PresetNames(), ","); got != "desktop,laptop,minimal,ops" {
		t.Errorf("PresetNames = %s", got)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PULSEBAR_FORMAT", "debug")
	t.Setenv("PULSEBAR_THEME", "dracula")
	t.Setenv("PULSEBAR_LOG_LEVEL", "warn")
	t.Setenv("PULSEBAR_MQTT_BROKER", "tcp://mqtt:1883")
	t.Setenv("PULSEBAR_MAX_WIDTH", "120")

	cfg, err := LoadFromReader(strings.NewReader(sampleTOML), TOML)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Format != "debug" || cfg.Theme != "dracula" || cfg.Log.Level != "warn" {
		t.Errorf("overrides = %q %q %q", cfg.Format, cfg.Theme, cfg.Log.Level)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "tcp://mqtt:1883" || cfg.Term.MaxWidth != 120 {
		t.Errorf("mqtt=%+v max_width=%d", cfg.MQTT, cfg.Term.MaxWidth)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config { return DefaultConfig() }

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"unknown format", func(c *Config) { c.Format = "polybar" }, "unknown format"},
		{"unknown level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true }, "without broker"},
		{"qos", func(c *Config) { c.MQTT.QoS = 3 }, "qos"},
		{"zero interval", func(c *Config) { c.Modules[1].(*ClockModule).Interval = Duration{} }, "interval must be positive"},
		{"bad metric", func(c *Config) { c.Modules = []Module{&SysmetricsModule{Metric: "gpu"}} }, `unknown metric "gpu"`},
		{"mount on cpu", func(c *Config) { c.Modules = []Module{&SysmetricsModule{Metric: "cpu", Mount: "/"}} }, "disk metric"},
		{"no address", func(c *Config) { c.Modules = []Module{&BluetoothModule{}} }, "address is required"},
		{"no interface", func(c *Config) { c.Modules = []Module{&WifiModule{}} }, "interface is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate = %v, want %q", err, tt.want)
			}
		})
	}

	c := valid()
	c.Modules = nil
	if err := c.Validate(); !errors.Is(err, ErrNoModules) {
		t.Errorf("Validate = %v, want ErrNoModules", err)
	}
	if err := valid().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestValidateFormatIgnoresCase(t *testing.T) {
	c := DefaultConfig()
	c.Format = "I3BAR"
	if err := c.Validate(); err != nil {
		t.Errorf("Validate(%q) = %v", c.Format, err)
	}
}

func TestLoadSearchPaths(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", t.TempDir())

	cfg, path, err := Load()
	if err != nil || path != "" || len(cfg.Modules) != 2 {
		t.Fatalf("no file: cfg=%v path=%q err=%v", cfg, path, err)
	}

	want := filepath.Join(dir, "pulsebar", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(want), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(want, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, path, err = Load()
	if err != nil {
		t.Fatal(err)
	}
	if path != want || cfg.Format != "term" {
		t.Errorf("path=%q format=%q", path, cfg.Format)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not exist", err)
	}
}

func TestSyntaxFor(t *testing.T) {
	for path, want := range map[string]Syntax{
		"config.toml": TOML,
		"config.YAML": YAML,
		"bar.yml":     YAML,
		"config":      TOML,
	} {
		if got := SyntaxFor(path); got != want {
			t.Errorf("SyntaxFor(%q) = %v", path, got)
		}
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil || d.Duration != 90*time.Second {
		t.Errorf("d=%v err=%v", d, err)
	}
	if err := d.UnmarshalText([]byte("-1s")); err == nil {
		t.Error("negative duration should fail")
	}
	if b, _ := (Duration{2 * time.Second}).MarshalText(); string(b) != "2s" {
		t.Errorf("MarshalText = %s", b)
	}
}

func TestDurationAcceptsSeconds(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromReader(strings.NewReader("[[modules]]\nkind = \"battery\"\ninterval = 30\n"), TOML)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Modules[0].(*BatteryModule).Interval.Duration; got != 30*time.Second {
		t.Errorf("toml interval = %v", got)
	}

	cfg, err = LoadFromReader(strings.NewReader("modules:\n  - kind: clock\n    interval: 0.5\n  - kind: kube\n    interval: 2m\n"), YAML)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Modules[0].(*ClockModule).Interval.Duration; got != 500*time.Millisecond {
		t.Errorf("yaml float interval = %v", got)
	}
	if got := cfg.Modules[1].(*KubeModule).Interval.Duration; got != 2*time.Minute {
		t.Errorf("yaml string interval = %v", got)
	}

	if _, err := LoadFromReader(strings.NewReader("[[modules]]\nkind = \"battery\"\ninterval = -5\n"), TOML); err == nil {
		t.Error("negative seconds should fail")
	}
}
