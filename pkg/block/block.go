// Package block defines the elementary display unit of the bar and the
// tagged update that carries it from a module to the aggregator.
package block

import (
	"fmt"
	"strings"
)

// Block is a single status bar entry. A nil *Block means "nothing to show"
// for the slot that produced it.
type Block struct {
	// Text is the full text to display.
	Text string `json:"full_text"`

	// ShortText is displayed when the bar is shortened. Nil means absent,
	// which is distinct from an empty string.
	ShortText *string `json:"short_text,omitempty"`

	// Color is a "#rrggbb" foreground color. Nil means the bar default.
	Color *string `json:"color,omitempty"`
}

// New returns a block with only the full text set.
func New(text string) *Block {
	return &Block{Text: text}
}

// WithShort returns a copy of b with ShortText set.
func (b Block) WithShort(short string) *Block {
	b.ShortText = &short
	return &b
}

// WithColor returns a copy of b with Color set. An empty color leaves the
// field absent.
func (b Block) WithColor(color string) *Block {
	if color == "" {
		b.Color = nil
		return &b
	}
	b.Color = &color
	return &b
}

// Short returns the short text, or "" when it is absent.
func (b *Block) Short() string {
	if b == nil || b.ShortText == nil {
		return ""
	}
	return *b.ShortText
}

// ColorString returns the color, or "" when it is absent.
func (b *Block) ColorString() string {
	if b == nil || b.Color == nil {
		return ""
	}
	return *b.Color
}

// String renders b for debug output.
func (b *Block) String() string {
	if b == nil {
		return "None"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Block{text: %q", b.Text)
	if b.ShortText != nil {
		fmt.Fprintf(&sb, ", short_text: %q", *b.ShortText)
	}
	if b.Color != nil {
		fmt.Fprintf(&sb, ", color: %q", *b.Color)
	}
	sb.WriteString("}")
	return sb.String()
}

// Equal reports whether a and b are structurally equal. Two nil blocks are
// equal; a nil and a non-nil block never are. Optional fields compare by
// presence first, then by value.
func Equal(a, b *Block) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Text == b.Text &&
		optEqual(a.ShortText, b.ShortText) &&
		optEqual(a.Color, b.Color)
}

func optEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Clone returns a deep copy of b. Clone(nil) is nil.
func Clone(b *Block) *Block {
	if b == nil {
		return nil
	}
	c := Block{Text: b.Text}
	if b.ShortText != nil {
		s := *b.ShortText
		c.ShortText = &s
	}
	if b.Color != nil {
		s := *b.Color
		c.Color = &s
	}
	return &c
}

// Update is one item of the multiplexed module stream: the module at Slot
// produced Block, or nil to hide the slot.
type Update struct {
	Slot  int
	Block *Block
}

// Snapshot is the ordered cache handed to render sinks, one entry per slot.
type Snapshot []*Block

// Clone returns a deep copy of s so a sink may keep it past the render call.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for i, b := range s {
		out[i] = Clone(b)
	}
	return out
}

// Visible returns the non-nil blocks of s in slot order.
func (s Snapshot) Visible() []*Block {
	out := make([]*Block, 0, len(s))
	for _, b := range s {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}
