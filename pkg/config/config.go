// Package config loads the pulsebar configuration from TOML or YAML.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gitlab.com/tinyland/lab/pulsebar/pkg/format"
)

// Module kinds.
const (
	KindClock           = "clock"
	KindBattery         = "battery"
	KindWifi            = "wifi"
	KindBluetooth       = "bluetooth"
	KindBluetoothDevice = "bluetooth_device"
	KindSysmetrics      = "sysmetrics"
	KindTailscale       = "tailscale"
	KindKube            = "kube"
)

// sysmetrics metric names.
var metrics = []string{"cpu", "memory", "load", "disk", "uptime"}

// ErrNoModules is returned by Validate when no module is configured.
var ErrNoModules = errors.New("config: no modules configured")

// Config is the top-level configuration.
type Config struct {
	Format    string `toml:"format" yaml:"format"`
	Theme     string `toml:"theme" yaml:"theme"`
	ThemeFile string `toml:"theme_file" yaml:"theme_file"`

	// Preset names a built-in module list used when Modules is empty.
	Preset string `toml:"preset" yaml:"preset"`

	Log    LogConfig    `toml:"log" yaml:"log"`
	Daemon DaemonConfig `toml:"daemon" yaml:"daemon"`
	Term   TermConfig   `toml:"term" yaml:"term"`
	MQTT   MQTTConfig   `toml:"mqtt" yaml:"mqtt"`

	// Modules are the bar slots in display order. They are decoded by
	// kind after the rest of the file.
	Modules []Module `toml:"-" yaml:"-"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
	File  string `toml:"file" yaml:"file"` // empty logs to stderr only
}

// DaemonConfig configures the single-instance guard and status socket.
type DaemonConfig struct {
	PIDFile string `toml:"pid_file" yaml:"pid_file"` // empty disables
	Socket  string `toml:"socket" yaml:"socket"`     // empty disables
}

// TermConfig configures the term output format.
type TermConfig struct {
	MaxWidth int `toml:"max_width" yaml:"max_width"`
}

// MQTTConfig configures the optional MQTT publisher.
type MQTTConfig struct {
	Enabled  bool     `toml:"enabled" yaml:"enabled"`
	Broker   string   `toml:"broker" yaml:"broker"`
	Topic    string   `toml:"topic" yaml:"topic"`
	ClientID string   `toml:"client_id" yaml:"client_id"`
	QoS      int      `toml:"qos" yaml:"qos"`
	Timeout  Duration `toml:"timeout" yaml:"timeout"`
}

// Module is one module descriptor. The concrete type is selected by the
// descriptor's kind field.
type Module interface {
	Kind() string
}

// ClockModule configures a clock slot. Formats use strftime syntax.
type ClockModule struct {
	Format      string   `toml:"format" yaml:"format"`
	ShortFormat string   `toml:"short_format" yaml:"short_format"`
	Timezone    string   `toml:"timezone" yaml:"timezone"`
	Interval    Duration `toml:"interval" yaml:"interval"`
}

// BatteryModule configures a battery slot.
type BatteryModule struct {
	Name     string   `toml:"name" yaml:"name"`
	Root     string   `toml:"root" yaml:"root"`
	Interval Duration `toml:"interval" yaml:"interval"`
}

// WifiModule configures a wireless link slot.
type WifiModule struct {
	Interface string `toml:"interface" yaml:"interface"`
}

// BluetoothModule configures a bluetooth adapter slot.
type BluetoothModule struct {
	Address string `toml:"address" yaml:"address"`
}

// BluetoothDeviceModule configures a paired device slot.
type BluetoothDeviceModule struct {
	Address string `toml:"address" yaml:"address"`
}

// SysmetricsModule configures a host metric slot. A zero interval uses the
// metric's own default.
type SysmetricsModule struct {
	Metric   string   `toml:"metric" yaml:"metric"`
	Mount    string   `toml:"mount" yaml:"mount"`
	Interval Duration `toml:"interval" yaml:"interval"`
}

// TailscaleModule configures a tailnet slot.
type TailscaleModule struct {
	Socket   string   `toml:"socket" yaml:"socket"`
	Interval Duration `toml:"interval" yaml:"interval"`
}

// KubeModule configures a Kubernetes node readiness slot.
type KubeModule struct {
	Kubeconfig string   `toml:"kubeconfig" yaml:"kubeconfig"`
	Context    string   `toml:"context" yaml:"context"`
	Interval   Duration `toml:"interval" yaml:"interval"`
}

func (*ClockModule) Kind() string           { return KindClock }
func (*BatteryModule) Kind() string         { return KindBattery }
func (*WifiModule) Kind() string            { return KindWifi }
func (*BluetoothModule) Kind() string       { return KindBluetooth }
func (*BluetoothDeviceModule) Kind() string { return KindBluetoothDevice }
func (*SysmetricsModule) Kind() string      { return KindSysmetrics }
func (*TailscaleModule) Kind() string       { return KindTailscale }
func (*KubeModule) Kind() string            { return KindKube }

// NewModule returns the descriptor for kind pre-filled with its defaults.
func NewModule(kind string) (Module, error) {
	switch kind {
	case KindClock:
		return &ClockModule{
			Format:      "%Y-%m-%d %H:%M:%S",
			ShortFormat: "%H:%M",
			Interval:    Duration{time.Second},
		}, nil
	case KindBattery:
		return &BatteryModule{
			Name:     "BAT0",
			Root:     "/sys/class/power_supply",
			Interval: Duration{10 * time.Second},
		}, nil
	case KindWifi:
		return &WifiModule{Interface: "wlan0"}, nil
	case KindBluetooth:
		return &BluetoothModule{}, nil
	case KindBluetoothDevice:
		return &BluetoothDeviceModule{}, nil
	case KindSysmetrics:
		return &SysmetricsModule{Metric: "cpu"}, nil
	case KindTailscale:
		return &TailscaleModule{Interval: Duration{10 * time.Second}}, nil
	case KindKube:
		return &KubeModule{Interval: Duration{15 * time.Second}}, nil
	case "":
		return nil, errors.New("config: module without kind")
	default:
		return nil, fmt.Errorf("config: unknown module kind %q", kind)
	}
}

// Validate reports the first problem with c.
func (c *Config) Validate() error {
	if !format.Valid(c.Format) {
		return fmt.Errorf("config: unknown format %q (want one of %s)", c.Format, strings.Join(format.Names(), ", "))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("config: mqtt enabled without broker")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("config: mqtt qos %d out of range", c.MQTT.QoS)
	}
	if len(c.Modules) == 0 {
		return ErrNoModules
	}
	for i, m := range c.Modules {
		if err := validateModule(m); err != nil {
			return fmt.Errorf("config: modules[%d] (%s): %w", i, m.Kind(), err)
		}
	}
	return nil
}

func validateModule(m Module) error {
	switch m := m.(type) {
	case *ClockModule:
		return positive(m.Interval)
	case *BatteryModule:
		if m.Name == "" {
			return errors.New("name is required")
		}
		return positive(m.Interval)
	case *WifiModule:
		if m.Interface == "" {
			return errors.New("interface is required")
		}
	case *BluetoothModule:
		if m.Address == "" {
			return errors.New("address is required")
		}
	case *BluetoothDeviceModule:
		if m.Address == "" {
			return errors.New("address is required")
		}
	case *SysmetricsModule:
		if !contains(metrics, m.Metric) {
			return fmt.Errorf("unknown metric %q", m.Metric)
		}
		if m.Mount != "" && m.Metric != "disk" {
			return errors.New("mount only applies to the disk metric")
		}
	case *TailscaleModule:
		return positive(m.Interval)
	case *KubeModule:
		return positive(m.Interval)
	default:
		return fmt.Errorf("unsupported descriptor %T", m)
	}
	return nil
}

func positive(d Duration) error {
	if d.Duration <= 0 {
		return fmt.Errorf("interval must be positive, got %s", d.Duration)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
