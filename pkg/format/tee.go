package format

import (
	"errors"

	"gitlab.com/tinyland/lab/pulsebar/pkg/bar"
	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
)

// TeeSink fans every call out to several sinks. A failing sink does not
// stop the others; their errors are joined.
type TeeSink struct {
	sinks []bar.Sink
}

// Tee combines sinks. Nil entries are skipped.
func Tee(sinks ...bar.Sink) *TeeSink {
	t := &TeeSink{}
	for _, s := range sinks {
		if s != nil {
			t.sinks = append(t.sinks, s)
		}
	}
	return t
}

// Init initializes every sink.
func (t *TeeSink) Init() error {
	var errs []error
	for _, s := range t.sinks {
		errs = append(errs, s.Init())
	}
	return errors.Join(errs...)
}

// Render forwards snap to every sink.
func (t *TeeSink) Render(snap block.Snapshot) error {
	var errs []error
	for _, s := range t.sinks {
		errs = append(errs, s.Render(snap))
	}
	return errors.Join(errs...)
}
