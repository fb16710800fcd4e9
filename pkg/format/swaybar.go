package format

import (
	"encoding/json"
	"fmt"
	"io"

	"gitlab.com/tinyland/lab/pulsebar/pkg/block"
)

// SwaybarSink speaks the swaybar/i3bar JSON protocol: a header and the
// opening of an infinite array, then one array of blocks per render.
type SwaybarSink struct {
	w io.Writer
}

// NewSwaybar returns a swaybar sink writing to w.
func NewSwaybar(w io.Writer) *SwaybarSink {
	return &SwaybarSink{w: w}
}

// Init writes the protocol header.
func (s *SwaybarSink) Init() error {
	_, err := io.WriteString(s.w, "{\"version\":1}\n[\n")
	return err
}

// Render writes the visible blocks as one JSON array followed by a comma.
// Absent slots and absent optional fields are omitted.
func (s *SwaybarSink) Render(snap block.Snapshot) error {
	line, err := Encode(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(s.w, "%s,\n", line)
	return err
}

// Encode marshals the visible blocks of snap as a JSON array.
func Encode(snap block.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap.Visible())
	if err != nil {
		return nil, fmt.Errorf("format: encode blocks: %w", err)
	}
	return data, nil
}
