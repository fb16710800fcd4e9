package modules

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
)

// recv reads one block from ch or fails the test after a second.
func recv(t *testing.T, ch <-chan *block.Block) *block.Block {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for block")
		return nil
	}
}

// --- Registry Tests ---

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	m := NewMockModule("clock")

	if err := r.Register(0, m); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, ok := r.Status(0)
	if !ok {
		t.Fatal("Status returned false for registered slot")
	}
	if got.Name != "clock" || !got.Healthy {
		t.Errorf("Status = %+v, want healthy clock", got)
	}
	if _, ok := r.Status(1); ok {
		t.Error("Status returned true for an unregistered slot")
	}
}

func TestRegistryDuplicateSlotError(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(1, NewMockModule("a")); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register(1, NewMockModule("b")); err == nil {
		t.Fatal("second Register should have returned an error for duplicate slot")
	}
}

func TestRegistryAllStatusSortedBySlot(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(2, NewMockModule("c"))
	_ = r.Register(0, NewMockModule("a"))
	_ = r.Register(1, NewMockModule("b"))

	statuses := r.AllStatus()
	if len(statuses) != 3 {
		t.Fatalf("AllStatus returned %d, want 3", len(statuses))
	}
	for i, s := range statuses {
		if s.Slot != i {
			t.Errorf("AllStatus[%d].Slot = %d", i, s.Slot)
		}
		if !s.Healthy {
			t.Errorf("slot %d should start healthy", i)
		}
	}
}

func TestRegistryRecordUpdateAndEnd(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(0, NewMockModule("wifi"))

	now := time.Now()
	r.RecordUpdate(0, true, now)
	r.RecordUpdate(0, false, now)
	r.RecordUpdate(9, true, now) // unknown slot ignored

	s, _ := r.Status(0)
	if s.Updates != 2 || s.Changes != 1 {
		t.Errorf("Updates=%d Changes=%d, want 2 and 1", s.Updates, s.Changes)
	}
	if !s.LastUpdate.Equal(now) {
		t.Errorf("LastUpdate = %v, want %v", s.LastUpdate, now)
	}

	r.MarkEnded(0, errors.New("bus gone"))
	s, _ = r.Status(0)
	if !s.Ended || s.Healthy {
		t.Errorf("after MarkEnded: Ended=%v Healthy=%v", s.Ended, s.Healthy)
	}
	if s.LastError != "bus gone" {
		t.Errorf("LastError = %q", s.LastError)
	}
}

func TestRegistryConsultsHealthReporter(t *testing.T) {
	r := NewRegistry()
	p := Poll(NewMockCollector("battery", time.Second))
	_ = r.Register(0, p)

	p.fail(errors.New("no such file"))

	s, _ := r.Status(0)
	if s.Healthy {
		t.Error("status should reflect unhealthy poller")
	}
	if s.ErrorCount != 1 || s.LastError != "no such file" {
		t.Errorf("ErrorCount=%d LastError=%q", s.ErrorCount, s.LastError)
	}
}

// --- Emitter Tests ---

func TestEmitterSuppressesConsecutiveDuplicates(t *testing.T) {
	out := make(chan *block.Block, 8)
	e := NewEmitter(out)
	ctx := context.Background()

	e.Emit(ctx, nil)
	e.Emit(ctx, nil)
	e.Emit(ctx, block.New("a"))
	e.Emit(ctx, block.New("a"))
	e.Emit(ctx, block.New("b"))
	e.Emit(ctx, nil)

	if len(out) != 4 {
		t.Fatalf("emitted %d blocks, want 4", len(out))
	}
	want := []*block.Block{nil, block.New("a"), block.New("b"), nil}
	for i, w := range want {
		if got := <-out; !block.Equal(got, w) {
			t.Errorf("emission %d = %v, want %v", i, got, w)
		}
	}
}

func TestEmitReturnsFalseOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if Emit(ctx, make(chan *block.Block), block.New("x")) {
		t.Error("Emit should fail once ctx is cancelled")
	}
}

// --- Stream Tests ---

func TestStreamTagsWithSlot(t *testing.T) {
	m := NewMockModule("m", Blocks(block.New("a"), nil))
	s := Tag(3, m)
	if s.Slot() != 3 || s.Module() != m {
		t.Fatal("Tag did not retain slot and module")
	}

	updates := make(chan block.Update, 4)
	if err := s.Run(context.Background(), updates); err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(updates)

	var got []block.Update
	for u := range updates {
		got = append(got, u)
	}
	if len(got) != 2 {
		t.Fatalf("got %d updates, want 2", len(got))
	}
	for _, u := range got {
		if u.Slot != 3 {
			t.Errorf("update slot = %d, want 3", u.Slot)
		}
	}
	if got[0].Block.Text != "a" || got[1].Block != nil {
		t.Errorf("unexpected updates: %+v", got)
	}
}

func TestStreamReturnsModuleError(t *testing.T) {
	testErr := errors.New("subscription failed")
	s := Tag(0, NewMockModule("m", EndWith(testErr)))

	err := s.Run(context.Background(), make(chan block.Update))
	if !errors.Is(err, testErr) {
		t.Errorf("Run error = %v, want %v", err, testErr)
	}
}

func TestStreamStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := Tag(0, NewMockModule("m", Blocks(block.New("a"), block.New("b"))))

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, make(chan block.Update)) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run after cancel = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}

// --- Mock Collector Tests ---

func TestMockCollectorDefaults(t *testing.T) {
	m := NewMockCollector("test", 5*time.Second)

	if m.Name() != "test" {
		t.Errorf("Name = %q, want %q", m.Name(), "test")
	}
	if m.Interval() != 5*time.Second {
		t.Errorf("Interval = %v, want %v", m.Interval(), 5*time.Second)
	}
	if m.CallCount() != 0 {
		t.Errorf("initial CallCount = %d, want 0", m.CallCount())
	}
}

func TestMockCollectorSetters(t *testing.T) {
	m := NewMockCollector("mut", time.Second)

	m.SetBlock(block.New("updated"))
	m.SetError(errors.New("boom"))

	b, err := m.Collect(context.Background())
	if b == nil || b.Text != "updated" {
		t.Errorf("Block = %v, want %q", b, "updated")
	}
	if err == nil || err.Error() != "boom" {
		t.Errorf("Error = %v, want 'boom'", err)
	}
}

// --- Poller Tests ---

func TestPollerSamplesImmediately(t *testing.T) {
	c := NewMockCollector("clock", time.Hour, WithBlock(block.New("12:00")))
	p := Poll(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan *block.Block)
	go p.Run(ctx, out)

	if b := recv(t, out); b.Text != "12:00" {
		t.Errorf("first block = %q, want %q", b.Text, "12:00")
	}
	if p.Name() != "clock" {
		t.Errorf("Name = %q", p.Name())
	}
}

func TestPollerSkipsFailedTickAndRetries(t *testing.T) {
	calls := 0
	c := NewMockCollector("battery", 5*time.Millisecond,
		WithCollectFunc(func(ctx context.Context) (*block.Block, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("capacity: no such file")
			}
			return block.New("80%"), nil
		}),
	)
	p := Poll(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan *block.Block)
	go p.Run(ctx, out)

	if b := recv(t, out); b.Text != "80%" {
		t.Errorf("block = %q, want %q", b.Text, "80%")
	}
	if p.ErrorCount() != 1 {
		t.Errorf("ErrorCount = %d, want 1", p.ErrorCount())
	}
	if p.LastError() == nil {
		t.Error("LastError should be retained after recovery")
	}
	if !p.Healthy() {
		t.Error("poller should be healthy after a successful tick")
	}
}

func TestPollerDoesNotQueueMissedTicks(t *testing.T) {
	c := NewMockCollector("fast", time.Millisecond, WithBlock(block.New("x")))
	p := Poll(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan *block.Block)
	go p.Run(ctx, out)

	recv(t, out)
	// Stall the consumer for many intervals; the poller blocks on one
	// pending sample instead of accumulating a backlog.
	time.Sleep(50 * time.Millisecond)

	if n := c.CallCount(); n > 2 {
		t.Errorf("CallCount during stall = %d, want at most 2", n)
	}
	recv(t, out)
}

func TestPollerStopsOnCancel(t *testing.T) {
	c := NewMockCollector("slow", time.Hour, WithCollectFunc(func(ctx context.Context) (*block.Block, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	p := Poll(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, make(chan *block.Block)) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	if p.ErrorCount() != 0 {
		t.Error("cancellation should not count as a failed tick")
	}
}

func TestPollerTriggerForcesSample(t *testing.T) {
	var n int
	c := NewMockCollector("sysmetrics:cpu", time.Hour, WithCollectFunc(func(ctx context.Context) (*block.Block, error) {
		n++
		return block.New(fmt.Sprintf("sample %d", n)), nil
	}))
	trig := NewTrigger()
	p := Poll(c, WithTrigger(trig))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan *block.Block)
	go p.Run(ctx, out)

	if b := recv(t, out); b.Text != "sample 1" {
		t.Fatalf("first = %q", b.Text)
	}
	trig.Fire()
	if b := recv(t, out); b.Text != "sample 2" {
		t.Errorf("after trigger = %q", b.Text)
	}
}

func TestNilTriggerNeverFires(t *testing.T) {
	var trig *Trigger
	if trig.C() != nil {
		t.Error("nil trigger should return a nil channel")
	}
}
