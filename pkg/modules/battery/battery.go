// Package battery reads charge level and charging status from the kernel's
// power_supply class in sysfs.
package battery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules"
	"gitlab.com/tinyland/lab/pulsebar/pkg/theme"
)

// DefaultRoot is where the kernel exposes power supplies.
const DefaultRoot = "/sys/class/power_supply"

// Config controls the battery collector.
type Config struct {
	// Name is the power supply directory, e.g. "BAT0".
	Name string

	// Root overrides DefaultRoot. Tests point it at a temp dir.
	Root string

	// Interval is the polling rate (default 10s).
	Interval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:     "BAT0",
		Root:     DefaultRoot,
		Interval: 10 * time.Second,
	}
}

// Reading is one sample of the battery.
type Reading struct {
	Capacity int
	Charging bool
}

// Collector samples one battery.
type Collector struct {
	cfg   Config
	theme theme.Theme
}

var _ modules.Collector = (*Collector)(nil)

// New creates a Collector. Zero-value fields in cfg are replaced with
// defaults.
func New(cfg Config, th theme.Theme) *Collector {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Root == "" {
		cfg.Root = def.Root
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	return &Collector{cfg: cfg, theme: th}
}

// Name returns "battery:<name>".
func (c *Collector) Name() string { return "battery:" + c.cfg.Name }

// Interval returns the polling rate.
func (c *Collector) Interval() time.Duration { return c.cfg.Interval }

// Read samples capacity and status. A missing or unparseable file is an
// error.
func (c *Collector) Read() (Reading, error) {
	dir := filepath.Join(c.cfg.Root, c.cfg.Name)

	raw, err := os.ReadFile(filepath.Join(dir, "capacity"))
	if err != nil {
		return Reading{}, fmt.Errorf("battery: %w", err)
	}
	capacity, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 8)
	if err != nil {
		return Reading{}, fmt.Errorf("battery: capacity: %w", err)
	}

	status, err := os.ReadFile(filepath.Join(dir, "status"))
	if err != nil {
		return Reading{}, fmt.Errorf("battery: %w", err)
	}

	return Reading{
		Capacity: int(capacity),
		Charging: strings.TrimSpace(string(status)) == "Charging",
	}, nil
}

// Collect reads the battery and renders it.
func (c *Collector) Collect(ctx context.Context) (*block.Block, error) {
	r, err := c.Read()
	if err != nil {
		return nil, err
	}
	return c.Block(r), nil
}

// Block renders r as "icon N%" in both full and short text.
func (c *Collector) Block(r Reading) *block.Block {
	text := fmt.Sprintf("%s %d%%", Icon(r), r.Capacity)
	return block.New(text).WithShort(text).WithColor(c.theme.ForBattery(r.Capacity, r.Charging))
}

// Icon picks the glyph for a reading.
func Icon(r Reading) string {
	switch {
	case r.Charging:
		return "\uf1e6"
	case r.Capacity <= 25:
		return "\uf243"
	case r.Capacity <= 50:
		return "\uf242"
	case r.Capacity <= 75:
		return "\uf241"
	default:
		return "\uf240"
	}
}
