// Package bar implements the aggregation engine: it multiplexes every
// module's tagged update stream, keeps the last known block per slot, and
// hands the full ordered cache to a render sink whenever a slot changes.
package bar

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
	"gitlab.com/tinyland/lab/pulsebar/pkg/modules"
)

// ErrNoModules is returned by Run when the bar has no slots.
var ErrNoModules = errors.New("bar: at least one module is required")

// Sink receives rendered snapshots. Init is called once before the first
// Render; Render is called on every cache change with the full cache in
// slot order. The snapshot is only valid for the duration of the call.
type Sink interface {
	Init() error
	Render(snapshot block.Snapshot) error
}

// Option configures a Bar.
type Option func(*Bar)

// WithLogger sets the bar's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bar) { b.logger = l }
}

// WithRegistry makes the bar record per-slot status in r.
func WithRegistry(r *modules.Registry) Option {
	return func(b *Bar) { b.registry = r }
}

// WithClock overrides the time source used for status timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Bar) { b.now = now }
}

// Bar owns the cache and the merged update stream.
type Bar struct {
	sink     Sink
	streams  []*modules.Stream
	cache    block.Snapshot
	registry *modules.Registry
	logger   *slog.Logger
	now      func() time.Time
}

// New builds one cache slot and one tagged stream per module, in order. No
// module is started until Run.
func New(sink Sink, mods []modules.Module, opts ...Option) *Bar {
	b := &Bar{
		sink:    sink,
		streams: make([]*modules.Stream, len(mods)),
		cache:   make(block.Snapshot, len(mods)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.registry == nil {
		b.registry = modules.NewRegistry()
	}

	for slot, m := range mods {
		b.streams[slot] = modules.Tag(slot, m)
		if err := b.registry.Register(slot, m); err != nil {
			b.logger.Warn("registry", "slot", slot, "err", err)
		}
	}
	return b
}

// Registry returns the status registry the bar writes to.
func (b *Bar) Registry() *modules.Registry { return b.registry }

// Run initialises the sink, starts every module stream and processes
// updates one at a time in arrival order until ctx is cancelled or every
// stream has ended. A stream that ends leaves its slot frozen at the last
// cached block.
func (b *Bar) Run(ctx context.Context) error {
	if len(b.streams) == 0 {
		return ErrNoModules
	}
	if err := b.sink.Init(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan block.Update)
	var wg sync.WaitGroup
	for _, s := range b.streams {
		wg.Add(1)
		go func(s *modules.Stream) {
			defer wg.Done()
			err := s.Run(ctx, updates)
			b.registry.MarkEnded(s.Slot(), err)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				b.logger.Error("module stream ended", "slot", s.Slot(), "module", s.Module().Name(), "err", err)
			} else {
				b.logger.Warn("module stream ended", "slot", s.Slot(), "module", s.Module().Name())
			}
		}(s)
	}
	go func() {
		wg.Wait()
		close(updates)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				b.logger.Warn("all module streams ended")
				return nil
			}
			b.Apply(u)
		}
	}
}

// Apply processes a single update: out-of-range slots are ignored, an
// update equal to the cached block is dropped, anything else replaces the
// cache entry and triggers exactly one render. It reports whether a render
// happened. Apply is not safe for concurrent use; Run calls it from its
// single loop.
func (b *Bar) Apply(u block.Update) bool {
	if u.Slot < 0 || u.Slot >= len(b.cache) {
		b.logger.Debug("update for unknown slot dropped", "slot", u.Slot)
		return false
	}

	changed := !block.Equal(b.cache[u.Slot], u.Block)
	b.registry.RecordUpdate(u.Slot, changed, b.now())
	if !changed {
		return false
	}

	b.cache[u.Slot] = u.Block
	if err := b.sink.Render(b.cache); err != nil {
		b.logger.Error("render failed", "err", err)
	}
	return true
}

// Snapshot returns a deep copy of the current cache. It must not be called
// while Run is active.
func (b *Bar) Snapshot() block.Snapshot {
	return b.cache.Clone()
}
