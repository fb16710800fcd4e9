package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a module interval. Config files may write it as a Go
// duration string ("10s", "1m30s") or as a bare number of seconds.
type Duration struct {
	time.Duration
}

// UnmarshalTOML implements toml.Unmarshaler.
func (d *Duration) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case string:
		return d.UnmarshalText([]byte(v))
	case int64:
		return d.setSeconds(float64(v))
	case float64:
		return d.setSeconds(v)
	default:
		return fmt.Errorf("invalid duration %v (%T)", v, v)
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", n.Line)
	}
	var secs float64
	if n.Tag == "!!int" || n.Tag == "!!float" {
		if err := n.Decode(&secs); err != nil {
			return err
		}
		return d.setSeconds(secs)
	}
	return d.UnmarshalText([]byte(n.Value))
}

// UnmarshalText parses a Go duration string. Empty means zero.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("negative duration %q not allowed", s)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) setSeconds(s float64) error {
	if s < 0 {
		return fmt.Errorf("negative duration %vs not allowed", s)
	}
	d.Duration = time.Duration(s * float64(time.Second))
	return nil
}
