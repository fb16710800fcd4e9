package modules

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status is the runtime state of one bar slot, as reported over IPC.
type Status struct {
	Slot       int       `json:"slot"`
	Name       string    `json:"name"`
	Healthy    bool      `json:"healthy"`
	Ended      bool      `json:"ended"`
	Updates    int64     `json:"updates"`
	Changes    int64     `json:"changes"`
	LastUpdate time.Time `json:"last_update,omitempty"`
	ErrorCount int64     `json:"error_count"`
	LastError  string    `json:"last_error,omitempty"`
}

type entry struct {
	module Module
	status Status
	endErr error
}

// Registry tracks the modules of a running bar by slot. It is safe for
// concurrent use: the bar loop writes while IPC handlers read.
type Registry struct {
	mu      sync.RWMutex
	entries map[int]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int]*entry)}
}

// Register adds m at slot. It returns an error if the slot is taken.
func (r *Registry) Register(slot int, m Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[slot]; exists {
		return fmt.Errorf("slot %d already registered", slot)
	}
	r.entries[slot] = &entry{
		module: m,
		status: Status{Slot: slot, Name: m.Name(), Healthy: true},
	}
	return nil
}

// RecordUpdate notes that slot produced an update at now; changed reports
// whether it altered the cached block.
func (r *Registry) RecordUpdate(slot int, changed bool, now time.Time) {
	r.update(slot, func(e *entry) {
		e.status.Updates++
		if changed {
			e.status.Changes++
		}
		e.status.LastUpdate = now
	})
}

// MarkEnded records that the stream at slot has ended, with the error it
// ended with (nil for a clean end).
func (r *Registry) MarkEnded(slot int, err error) {
	r.update(slot, func(e *entry) {
		e.status.Ended = true
		e.endErr = err
		if err != nil {
			e.status.Healthy = false
			e.status.LastError = err.Error()
			e.status.ErrorCount++
		}
	})
}

// Status returns a copy of the status at slot.
func (r *Registry) Status(slot int) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[slot]
	if !ok {
		return Status{}, false
	}
	return e.snapshot(), true
}

// AllStatus returns a copy of every status, sorted by slot.
func (r *Registry) AllStatus() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Status, 0, len(r.entries))
	for _, e := range r.entries {
		result = append(result, e.snapshot())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Slot < result[j].Slot
	})
	return result
}

// snapshot merges the recorded status with live health from modules that
// report it. Caller holds at least the read lock.
func (e *entry) snapshot() Status {
	s := e.status
	if e.status.Ended {
		return s
	}
	if h, ok := e.module.(HealthReporter); ok {
		s.Healthy = h.Healthy()
		s.ErrorCount = h.ErrorCount()
		if err := h.LastError(); err != nil {
			s.LastError = err.Error()
		}
	}
	return s
}

func (r *Registry) update(slot int, fn func(e *entry)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[slot]; ok {
		fn(e)
	}
}
