package format

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
	"gitlab.com/tinyland/lab/pulsebar/pkg/theme"
)

const termSeparator = "│"

// TermSink redraws a single colored line in place on a terminal.
type TermSink struct {
	w        io.Writer
	renderer *lipgloss.Renderer
	theme    theme.Theme
	maxWidth int
}

// NewTerm returns a term sink writing to w. The color profile is detected
// from w; maxWidth <= 0 disables truncation.
func NewTerm(w io.Writer, th theme.Theme, maxWidth int) *TermSink {
	return &TermSink{
		w:        w,
		renderer: lipgloss.NewRenderer(w),
		theme:    th,
		maxWidth: maxWidth,
	}
}

// SetColorProfile overrides the detected color profile.
func (s *TermSink) SetColorProfile(p termenv.Profile) {
	s.renderer.SetColorProfile(p)
}

// Init is a no-op; the line is drawn on the first Render.
func (s *TermSink) Init() error { return nil }

// Render redraws the line.
func (s *TermSink) Render(snap block.Snapshot) error {
	_, err := io.WriteString(s.w, "\r"+ansi.EraseEntireLine+s.Line(snap))
	return err
}

// Line renders the visible blocks joined by a dim separator, truncated to
// the configured width.
func (s *TermSink) Line(snap block.Snapshot) string {
	sep := s.style(s.theme.Separator).Render(termSeparator)

	parts := make([]string, 0, len(snap))
	for _, b := range snap.Visible() {
		color := b.ColorString()
		if color == "" {
			color = s.theme.Foreground
		}
		parts = append(parts, s.style(color).Render(b.Text))
	}
	line := strings.Join(parts, " "+sep+" ")
	if s.maxWidth > 0 && ansi.StringWidth(line) > s.maxWidth {
		line = ansi.Truncate(line, s.maxWidth, "…")
	}
	return line
}

func (s *TermSink) style(color string) lipgloss.Style {
	st := s.renderer.NewStyle()
	if color != "" {
		st = st.Foreground(lipgloss.Color(color))
	}
	return st
}
