package modules

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
)

// Collector is a timer-driven data source. Implementations live in
// sub-packages (clock, battery, sysmetrics, ...) and are turned into a
// Module with Poll.
type Collector interface {
	// Name returns the module identifier (e.g., "battery:BAT0").
	Name() string

	// Collect samples the source once and returns the block to display,
	// or nil to hide the slot.
	Collect(ctx context.Context) (*block.Block, error)

	// Interval returns how often Collect runs.
	Interval() time.Duration
}

// HealthReporter is implemented by modules that track per-tick failures.
// The Registry consults it when reporting status.
type HealthReporter interface {
	Healthy() bool
	LastError() error
	ErrorCount() int64
}

// PollOption configures a Poller.
type PollOption func(*Poller)

// WithLogger sets the logger used for failed ticks.
func WithLogger(l *slog.Logger) PollOption {
	return func(p *Poller) { p.logger = l }
}

// WithTrigger lets t force an immediate sample outside the interval.
func WithTrigger(t *Trigger) PollOption {
	return func(p *Poller) { p.trigger = t }
}

// Trigger broadcasts a refresh request to every Poller holding it.
type Trigger struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewTrigger returns a Trigger with no pending request.
func NewTrigger() *Trigger {
	return &Trigger{ch: make(chan struct{})}
}

// C returns a channel that is closed by the next Fire. A nil Trigger
// never fires.
func (t *Trigger) C() <-chan struct{} {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ch
}

// Fire wakes every current waiter.
func (t *Trigger) Fire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	close(t.ch)
	t.ch = make(chan struct{})
}

// Poller runs a Collector on a fixed interval. Ticks that elapse while the
// consumer is not receiving are skipped, not queued, so a slow bar only ever
// sees the latest sample.
type Poller struct {
	collector Collector
	logger    *slog.Logger
	trigger   *Trigger

	mu       sync.Mutex
	healthy  bool
	lastErr  error
	errCount int64
}

// Poll wraps c into a Module.
func Poll(c Collector, opts ...PollOption) *Poller {
	p := &Poller{
		collector: c,
		healthy:   true, // healthy until the first failed tick
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Name returns the wrapped collector's name.
func (p *Poller) Name() string { return p.collector.Name() }

// Run samples immediately, then once per interval or whenever the trigger
// fires. A failed sample is logged and skipped; the next tick retries. Run
// only returns when ctx ends.
func (p *Poller) Run(ctx context.Context, out chan<- *block.Block) error {
	interval := p.collector.Interval()
	if interval <= 0 {
		interval = time.Second
	}
	// time.Ticker holds at most one pending tick and drops the rest.
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		refresh := p.trigger.C()
		b, err := p.collector.Collect(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			p.fail(err)
			p.logger.Warn("module tick failed", "module", p.Name(), "err", err)
		} else {
			p.succeed()
			if !Emit(ctx, out, b) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-refresh:
		}
	}
}

func (p *Poller) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = false
	p.lastErr = err
	p.errCount++
}

func (p *Poller) succeed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = true
}

// Healthy reports whether the last tick succeeded.
func (p *Poller) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthy
}

// LastError returns the most recent tick error, even if later ticks
// succeeded.
func (p *Poller) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// ErrorCount returns the number of failed ticks.
func (p *Poller) ErrorCount() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errCount
}
