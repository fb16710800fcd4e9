// Package sysmetrics provides host metric collectors for the bar. Each
// collector shows one metric (CPU, memory, load, disk or uptime) gathered
// with gopsutil, colored by the theme's usage thresholds.
package sysmetrics

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules"
	"gitlab.com/tinyland/lab/pulsebar/pkg/theme"
)

// Metric selects what a collector shows.
type Metric string

const (
	CPU    Metric = "cpu"
	Memory Metric = "memory"
	Load   Metric = "load"
	Disk   Metric = "disk"
	Uptime Metric = "uptime"
)

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case CPU, Memory, Load, Disk, Uptime:
		return m, nil
	default:
		return "", fmt.Errorf("sysmetrics: unknown metric %q (want cpu, memory, load, disk or uptime)", s)
	}
}

// Config controls a sysmetrics collector.
type Config struct {
	// Metric is the value displayed (default cpu).
	Metric Metric

	// Mount is the disk metric's mount point. Empty selects the fullest
	// real partition.
	Mount string

	// Interval is the polling rate (default 2s, 60s for disk).
	Interval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Metric:   CPU,
		Interval: 2 * time.Second,
	}
}

// --- Metric data types ---

// MemoryMetrics holds physical memory statistics.
type MemoryMetrics struct {
	Total       uint64
	Used        uint64
	UsedPercent float64
}

// DiskMetrics holds usage data for a single mount point.
type DiskMetrics struct {
	Path        string
	FSType      string
	Total       uint64
	Free        uint64
	UsedPercent float64
}

// LoadMetrics holds system load averages.
type LoadMetrics struct {
	Load1  float64
	Load5  float64
	Load15 float64
}

// sampler reads raw host values.
type sampler interface {
	CPUPercent(ctx context.Context) (float64, error)
	CPUCount(ctx context.Context) (int, error)
	Memory(ctx context.Context) (MemoryMetrics, error)
	Load(ctx context.Context) (LoadMetrics, error)
	Disk(ctx context.Context, mount string) (DiskMetrics, error)
	Uptime(ctx context.Context) (time.Duration, error)
}

// --- Collector implementation ---

// Collector renders one host metric.
type Collector struct {
	cfg   Config
	theme theme.Theme
	src   sampler
}

var _ modules.Collector = (*Collector)(nil)

// New creates a Collector reading from the host. Zero-value fields in cfg
// are replaced with defaults.
func New(cfg Config, th theme.Theme) *Collector {
	if cfg.Metric == "" {
		cfg.Metric = DefaultConfig().Metric
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
		if cfg.Metric == Disk {
			cfg.Interval = 60 * time.Second
		}
	}
	return &Collector{cfg: cfg, theme: th, src: hostSampler{}}
}

// Name returns "sysmetrics:<metric>", with the mount for disk.
func (c *Collector) Name() string {
	if c.cfg.Metric == Disk && c.cfg.Mount != "" {
		return "sysmetrics:disk:" + c.cfg.Mount
	}
	return "sysmetrics:" + string(c.cfg.Metric)
}

// Interval returns the polling rate.
func (c *Collector) Interval() time.Duration { return c.cfg.Interval }

// Collect samples the configured metric. A cancelled context returns
// immediately with an error.
func (c *Collector) Collect(ctx context.Context) (*block.Block, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	switch c.cfg.Metric {
	case CPU:
		return c.collectCPU(ctx)
	case Memory:
		return c.collectMemory(ctx)
	case Load:
		return c.collectLoad(ctx)
	case Disk:
		return c.collectDisk(ctx)
	case Uptime:
		return c.collectUptime(ctx)
	default:
		return nil, fmt.Errorf("sysmetrics: unknown metric %q", c.cfg.Metric)
	}
}

// --- per-metric renderers ---

func (c *Collector) collectCPU(ctx context.Context) (*block.Block, error) {
	pct, err := c.src.CPUPercent(ctx)
	if err != nil {
		return nil, fmt.Errorf("sysmetrics: cpu: %w", err)
	}
	text := fmt.Sprintf("CPU %.0f%%", pct)
	return block.New(text).WithShort(text).WithColor(c.theme.ForUsage(pct)), nil
}

func (c *Collector) collectMemory(ctx context.Context) (*block.Block, error) {
	m, err := c.src.Memory(ctx)
	if err != nil {
		return nil, fmt.Errorf("sysmetrics: memory: %w", err)
	}
	return block.New(fmt.Sprintf("MEM %s/%s", humanize.IBytes(m.Used), humanize.IBytes(m.Total))).
		WithShort(fmt.Sprintf("MEM %.0f%%", m.UsedPercent)).
		WithColor(c.theme.ForUsage(m.UsedPercent)), nil
}

func (c *Collector) collectLoad(ctx context.Context) (*block.Block, error) {
	l, err := c.src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("sysmetrics: load: %w", err)
	}
	color := ""
	// Saturation is load relative to the number of logical CPUs.
	if n, err := c.src.CPUCount(ctx); err == nil && n > 0 {
		color = c.theme.ForUsage(l.Load1 / float64(n) * 100)
	}
	return block.New(fmt.Sprintf("LOAD %.2f %.2f %.2f", l.Load1, l.Load5, l.Load15)).
		WithShort(fmt.Sprintf("LOAD %.2f", l.Load1)).
		WithColor(color), nil
}

func (c *Collector) collectDisk(ctx context.Context) (*block.Block, error) {
	d, err := c.src.Disk(ctx, c.cfg.Mount)
	if err != nil {
		return nil, fmt.Errorf("sysmetrics: disk: %w", err)
	}
	return block.New(fmt.Sprintf("%s %s free", d.Path, humanize.IBytes(d.Free))).
		WithShort(fmt.Sprintf("%s %.0f%%", d.Path, d.UsedPercent)).
		WithColor(c.theme.ForUsage(d.UsedPercent)), nil
}

func (c *Collector) collectUptime(ctx context.Context) (*block.Block, error) {
	up, err := c.src.Uptime(ctx)
	if err != nil {
		return nil, fmt.Errorf("sysmetrics: uptime: %w", err)
	}
	text := "UP " + FormatUptime(up)
	return block.New(text).WithShort(text), nil
}

// FormatUptime renders d as "3d 4h", "4h 12m" or "12m".
func FormatUptime(d time.Duration) string {
	days := int(d / (24 * time.Hour))
	hours := int(d/time.Hour) % 24
	mins := int(d/time.Minute) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}
