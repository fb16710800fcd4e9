// Package format implements the render sinks that turn the bar's slot cache
// into an output protocol.
package format

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"gitlab.com/tinyland/lab/pulsebar/pkg/bar"
	"gitlab.com/tinyland/lab/pulsebar/pkg/theme"
)

// Format names accepted by New.
const (
	Debug   = "debug"
	Swaybar = "swaybar"
	I3bar   = "i3bar"
	Term    = "term"
	Auto    = "auto"
)

// ErrUnknownFormat is returned by New for an unsupported name.
var ErrUnknownFormat = errors.New("format: unknown output format")

// Names lists every format New accepts.
func Names() []string {
	return []string{Auto, Debug, I3bar, Swaybar, Term}
}

// Valid reports whether New accepts name. Case is ignored.
func Valid(name string) bool {
	name = strings.ToLower(name)
	for _, n := range Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Options carries the settings shared by the sinks.
type Options struct {
	Theme    theme.Theme
	MaxWidth int // term only; 0 means unlimited
}

// New returns the sink called name writing to w. "auto" picks term when w
// is a terminal and swaybar otherwise.
func New(name string, w io.Writer, opts Options) (bar.Sink, error) {
	switch strings.ToLower(name) {
	case Debug:
		return NewDebug(w), nil
	case Swaybar, I3bar:
		return NewSwaybar(w), nil
	case Term:
		return NewTerm(w, opts.Theme, opts.MaxWidth), nil
	case Auto, "":
		if IsTerminal(w) {
			return NewTerm(w, opts.Theme, opts.MaxWidth), nil
		}
		return NewSwaybar(w), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
