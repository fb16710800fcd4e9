// Package modules defines the update-stream contract every bar module
// implements, the slot tagging that routes module output into the bar, and
// the adapter that turns interval-driven collectors into streams. Concrete
// modules (clock, battery, wifi, ...) live in sub-packages.
package modules

import (
	"context"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
)

// Module produces the display value of one bar slot as a stream of blocks.
type Module interface {
	// Name identifies the module kind and instance, e.g. "wifi:wlan0".
	Name() string

	// Run sends block updates on out until ctx is cancelled or the
	// underlying source becomes permanently unavailable. A nil block hides
	// the slot. Run returns nil on cancellation and a non-nil error when
	// the source failed; in both cases the stream has ended and is never
	// restarted.
	Run(ctx context.Context, out chan<- *block.Block) error
}

// Emit sends b on out unless ctx ends first. It reports whether b was sent.
func Emit(ctx context.Context, out chan<- *block.Block, b *block.Block) bool {
	select {
	case out <- b:
		return true
	case <-ctx.Done():
		return false
	}
}

// Emitter wraps a module's output channel and drops consecutive duplicate
// blocks, so a module emits exactly once per observable transition.
type Emitter struct {
	out  chan<- *block.Block
	last *block.Block
	sent bool
}

// NewEmitter returns an Emitter writing to out.
func NewEmitter(out chan<- *block.Block) *Emitter {
	return &Emitter{out: out}
}

// Emit sends b unless it equals the previously sent block. It returns false
// only when ctx ended before b could be delivered.
func (e *Emitter) Emit(ctx context.Context, b *block.Block) bool {
	if e.sent && block.Equal(e.last, b) {
		return true
	}
	if !Emit(ctx, e.out, b) {
		return false
	}
	e.last = block.Clone(b)
	e.sent = true
	return true
}

// Stream binds a module to its fixed slot. The slot is set once at
// construction and every block the module produces is forwarded as a
// block.Update carrying it.
type Stream struct {
	slot   int
	module Module
}

// Tag returns the stream for module m at slot.
func Tag(slot int, m Module) *Stream {
	return &Stream{slot: slot, module: m}
}

// Slot returns the slot index of the stream.
func (s *Stream) Slot() int { return s.slot }

// Module returns the wrapped module.
func (s *Stream) Module() Module { return s.module }

// Run drives the module and forwards its blocks as tagged updates. It
// returns when the module's Run returns, with the module's error.
func (s *Stream) Run(ctx context.Context, updates chan<- block.Update) error {
	out := make(chan *block.Block)
	errc := make(chan error, 1)

	go func() {
		errc <- s.module.Run(ctx, out)
		close(out)
	}()

	for b := range out {
		select {
		case updates <- block.Update{Slot: s.slot, Block: b}:
		case <-ctx.Done():
			// The module observes ctx in Emit and returns on its own.
			return <-errc
		}
	}
	return <-errc
}
