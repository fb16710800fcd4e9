// Package clock provides the strftime-formatted date and time collector.
package clock

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata" // timezone works without system zoneinfo

	"github.com/ncruces/go-strftime"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules"
)

// Config controls the clock collector.
type Config struct {
	// Format is the strftime layout of the full text.
	Format string

	// ShortFormat is the strftime layout of the short text.
	ShortFormat string

	// Timezone is an IANA zone name. Empty means the local zone.
	Timezone string

	// Interval is the refresh rate (default 1s).
	Interval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Format:      "%Y-%m-%d %H:%M:%S",
		ShortFormat: "%H:%M",
		Interval:    time.Second,
	}
}

// Collector renders the current time.
type Collector struct {
	cfg Config
	loc *time.Location
	now func() time.Time
}

var _ modules.Collector = (*Collector)(nil)

// New creates a Collector. Zero-value fields in cfg are replaced with
// defaults; an unknown timezone is an error.
func New(cfg Config) (*Collector, error) {
	def := DefaultConfig()
	if cfg.Format == "" {
		cfg.Format = def.Format
	}
	if cfg.ShortFormat == "" {
		cfg.ShortFormat = def.ShortFormat
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}

	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("clock: timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}
	return &Collector{cfg: cfg, loc: loc, now: time.Now}, nil
}

// Name returns "clock", or "clock:<zone>" for a fixed timezone.
func (c *Collector) Name() string {
	if c.cfg.Timezone != "" {
		return "clock:" + c.cfg.Timezone
	}
	return "clock"
}

// Interval returns the refresh rate.
func (c *Collector) Interval() time.Duration { return c.cfg.Interval }

// Collect formats the current time. It never fails.
func (c *Collector) Collect(ctx context.Context) (*block.Block, error) {
	t := c.now().In(c.loc)
	return block.New(strftime.Format(c.cfg.Format, t)).
		WithShort(strftime.Format(c.cfg.ShortFormat, t)), nil
}
