// Package tailscale provides a collector that shows Tailscale peer
// reachability from the local tailscaled daemon via the LocalAPI unix
// socket.
package tailscale

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tailscale.com/ipn/ipnstate"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules"
	"gitlab.com/tinyland/lab/pulsebar/pkg/theme"
)

// Default configuration values.
const (
	DefaultInterval = 10 * time.Second
)

// StatusClient abstracts the local Tailscale daemon API for testability.
// The real implementation is tailscale.com/client/local.Client, whose
// Status method satisfies this interface.
type StatusClient interface {
	Status(ctx context.Context) (*ipnstate.Status, error)
}

// Config holds the configuration for the Tailscale collector.
type Config struct {
	// Interval is how often collection runs. Zero uses DefaultInterval.
	Interval time.Duration

	// SocketPath is an optional custom tailscaled socket path used when
	// New is given no client. When empty, the platform default is used.
	SocketPath string
}

// Summary is the part of the daemon status the bar displays.
type Summary struct {
	Backend  string // "Running", "Stopped", "NeedsLogin", ...
	Online   int
	Total    int
	ExitNode string // hostname of the active exit node, if any
}

// Collector gathers Tailscale network status from the local daemon.
type Collector struct {
	client   StatusClient
	interval time.Duration
	theme    theme.Theme
}

var _ modules.Collector = (*Collector)(nil)

// New creates a new Tailscale collector. If cfg.Interval is zero,
// DefaultInterval is used. A nil client talks to tailscaled at
// cfg.SocketPath.
func New(cfg Config, client StatusClient, th theme.Theme) *Collector {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	if client == nil {
		client = NewLocalClient(cfg.SocketPath)
	}
	return &Collector{
		client:   client,
		interval: interval,
		theme:    th,
	}
}

// Name returns the collector identifier.
func (c *Collector) Name() string {
	return "tailscale"
}

// Interval returns how often this collector should run.
func (c *Collector) Interval() time.Duration {
	return c.interval
}

// Collect queries the daemon and renders the summary.
func (c *Collector) Collect(ctx context.Context) (*block.Block, error) {
	st, err := c.client.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("tailscale status: %w", err)
	}
	if st == nil {
		return nil, errors.New("tailscale status: nil response")
	}
	return c.Block(Summarize(st)), nil
}

// Block renders s: hidden unless the backend is running, "TS online/total"
// with the exit node appended when one is in use.
func (c *Collector) Block(s Summary) *block.Block {
	if s.Backend != "Running" {
		return nil
	}
	short := fmt.Sprintf("TS %d/%d", s.Online, s.Total)
	full := short
	if s.ExitNode != "" {
		full += " via " + s.ExitNode
	}
	color := ""
	if s.Total > 0 && s.Online == 0 {
		color = c.theme.Dim
	}
	return block.New(full).WithShort(short).WithColor(color)
}

// Summarize reduces an ipnstate.Status to a Summary.
func Summarize(st *ipnstate.Status) Summary {
	s := Summary{Backend: st.BackendState}

	// Use the sorted key order for determinism.
	for _, pubKey := range st.Peers() {
		ps := st.Peer[pubKey]
		if ps == nil {
			continue
		}
		s.Total++
		if ps.Online {
			s.Online++
		}
		if ps.ExitNode {
			s.ExitNode = strings.TrimSuffix(ps.HostName, ".")
		}
	}
	return s
}

// NewLocalClient creates a StatusClient backed by the real Tailscale local
// daemon.
func NewLocalClient(socketPath string) StatusClient {
	return &localClientAdapter{socketPath: socketPath}
}

// localClientAdapter wraps tailscale.com/client/local.Client so we can
// lazily construct it and set the Socket field.
type localClientAdapter struct {
	socketPath string
	once       sync.Once
	client     StatusClient
}

func (a *localClientAdapter) Status(ctx context.Context) (*ipnstate.Status, error) {
	a.once.Do(func() {
		a.client = newRealClient(a.socketPath)
	})
	return a.client.Status(ctx)
}
