package format

import (
	"fmt"
	"io"
	"strings"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
)

// DebugSink prints every slot, absent ones included, one line per render.
type DebugSink struct {
	w io.Writer
}

// NewDebug returns a debug sink writing to w.
func NewDebug(w io.Writer) *DebugSink {
	return &DebugSink{w: w}
}

// Init is a no-op.
func (s *DebugSink) Init() error { return nil }

// Render writes e.g. [Block{text: "12:00"}, None].
func (s *DebugSink) Render(snap block.Snapshot) error {
	parts := make([]string, len(snap))
	for i, b := range snap {
		parts[i] = b.String()
	}
	_, err := fmt.Fprintf(s.w, "[%s]\n", strings.Join(parts, ", "))
	return err
}
