package modules

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
)

// MockModule implements Module for testing. It emits a scripted sequence of
// blocks and then either ends with the configured error or, with Hold, stays
// open until its context is cancelled.
type MockModule struct {
	name   string
	blocks []*block.Block
	err    error
	hold   bool

	// Emitted is closed once every scripted block has been delivered.
	Emitted chan struct{}
}

// MockModuleOption configures a MockModule.
type MockModuleOption func(*MockModule)

// Blocks sets the scripted sequence.
func Blocks(blocks ...*block.Block) MockModuleOption {
	return func(m *MockModule) { m.blocks = blocks }
}

// EndWith makes Run return err after the sequence.
func EndWith(err error) MockModuleOption {
	return func(m *MockModule) { m.err = err }
}

// Hold keeps the stream open after the sequence until ctx is cancelled.
func Hold() MockModuleOption {
	return func(m *MockModule) { m.hold = true }
}

// NewMockModule creates a scripted module.
func NewMockModule(name string, opts ...MockModuleOption) *MockModule {
	m := &MockModule{name: name, Emitted: make(chan struct{})}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the module name.
func (m *MockModule) Name() string { return m.name }

// Run emits the scripted blocks in order.
func (m *MockModule) Run(ctx context.Context, out chan<- *block.Block) error {
	for _, b := range m.blocks {
		if !Emit(ctx, out, b) {
			return nil
		}
	}
	close(m.Emitted)
	if m.hold {
		<-ctx.Done()
		return nil
	}
	return m.err
}

// MockCollector implements Collector for testing. All fields are
// configurable and it tracks how many times Collect has been called.
type MockCollector struct {
	name     string
	interval time.Duration
	data     *block.Block
	err      error

	mu        sync.RWMutex
	callCount atomic.Int64

	// CollectFunc, if set, overrides the default Collect behavior.
	CollectFunc func(ctx context.Context) (*block.Block, error)
}

// MockCollectorOption configures a MockCollector.
type MockCollectorOption func(*MockCollector)

// WithBlock sets the block returned by Collect.
func WithBlock(b *block.Block) MockCollectorOption {
	return func(m *MockCollector) { m.data = b }
}

// WithError sets the error returned by Collect.
func WithError(err error) MockCollectorOption {
	return func(m *MockCollector) { m.err = err }
}

// WithCollectFunc sets a custom function for Collect.
func WithCollectFunc(fn func(ctx context.Context) (*block.Block, error)) MockCollectorOption {
	return func(m *MockCollector) { m.CollectFunc = fn }
}

// NewMockCollector creates a mock collector with the given name, interval,
// and options.
func NewMockCollector(name string, interval time.Duration, opts ...MockCollectorOption) *MockCollector {
	m := &MockCollector{
		name:     name,
		interval: interval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the collector name.
func (m *MockCollector) Name() string { return m.name }

// Interval returns the configured collection interval.
func (m *MockCollector) Interval() time.Duration { return m.interval }

// SetBlock updates the returned block (thread-safe).
func (m *MockCollector) SetBlock(b *block.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = b
}

// SetError updates the returned error (thread-safe).
func (m *MockCollector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Collect increments the call counter and returns the configured block and
// error, or delegates to CollectFunc if set.
func (m *MockCollector) Collect(ctx context.Context) (*block.Block, error) {
	m.callCount.Add(1)

	if m.CollectFunc != nil {
		return m.CollectFunc(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data, m.err
}

// CallCount returns how many times Collect has been called.
func (m *MockCollector) CallCount() int64 {
	return m.callCount.Load()
}
