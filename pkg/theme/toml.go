package theme

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// thTOMLTheme is the TOML-serializable representation of a Theme.
type thTOMLTheme struct {
	Name   string       `toml:"name"`
	Base   thTOMLBase   `toml:"base"`
	Status thTOMLStatus `toml:"status"`
}

type thTOMLBase struct {
	Foreground string `toml:"foreground"`
	Dim        string `toml:"dim"`
	Separator  string `toml:"separator"`
}

type thTOMLStatus struct {
	OK       string `toml:"ok"`
	Warn     string `toml:"warn"`
	Critical string `toml:"critical"`
}

var thHexColorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// LoadFromTOML parses a TOML theme definition from raw bytes.
func LoadFromTOML(data []byte) (Theme, error) {
	var tt thTOMLTheme
	if err := toml.Unmarshal(data, &tt); err != nil {
		return Theme{}, fmt.Errorf("theme: parse TOML: %w", err)
	}

	t := Theme{
		Name:       tt.Name,
		Foreground: tt.Base.Foreground,
		Dim:        tt.Base.Dim,
		Separator:  tt.Base.Separator,
		OK:         tt.Status.OK,
		Warn:       tt.Status.Warn,
		Critical:   tt.Status.Critical,
	}

	if err := thValidateTheme(t); err != nil {
		return Theme{}, err
	}

	return t, nil
}

// LoadFile reads a TOML theme file and registers it.
func LoadFile(path string) (Theme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Theme{}, fmt.Errorf("theme: %w", err)
	}
	t, err := LoadFromTOML(data)
	if err != nil {
		return Theme{}, fmt.Errorf("%s: %w", path, err)
	}
	Register(t)
	return t, nil
}

// SaveToTOML serializes a theme to TOML bytes.
func SaveToTOML(t Theme) ([]byte, error) {
	tt := thTOMLTheme{
		Name: t.Name,
		Base: thTOMLBase{
			Foreground: t.Foreground,
			Dim:        t.Dim,
			Separator:  t.Separator,
		},
		Status: thTOMLStatus{
			OK:       t.OK,
			Warn:     t.Warn,
			Critical: t.Critical,
		},
	}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(tt); err != nil {
		return nil, fmt.Errorf("theme: encode TOML: %w", err)
	}
	return buf.Bytes(), nil
}

// thValidateTheme checks that all required fields are present and every
// color is valid hex.
func thValidateTheme(t Theme) error {
	if t.Name == "" {
		return fmt.Errorf("theme: missing required field %q", "name")
	}

	colorFields := []struct{ field, value string }{
		{"foreground", t.Foreground},
		{"dim", t.Dim},
		{"separator", t.Separator},
		{"ok", t.OK},
		{"warn", t.Warn},
		{"critical", t.Critical},
	}

	for _, f := range colorFields {
		if f.value == "" {
			return fmt.Errorf("theme: missing required field %q", f.field)
		}
		if !thHexColorRegex.MatchString(f.value) {
			return fmt.Errorf("theme: invalid hex color %q for field %q (expected #RRGGBB)", f.value, f.field)
		}
	}

	return nil
}
