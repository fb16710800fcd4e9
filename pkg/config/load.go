package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Syntax is a configuration file syntax.
type Syntax int

const (
	TOML Syntax = iota
	YAML
)

// SyntaxFor picks the syntax from a file extension. Anything other than
// .yaml or .yml is TOML.
func SyntaxFor(path string) Syntax {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	default:
		return TOML
	}
}

// Load reads configuration from the standard config path.
// Search order:
//  1. $XDG_CONFIG_HOME/pulsebar/config.toml
//  2. ~/.config/pulsebar/config.toml
//  3. the config.yaml and config.yml siblings of both
//
// If no file exists, returns DefaultConfig() with env overrides applied.
// The returned path is empty in that case.
func Load() (*Config, string, error) {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			cfg, err := LoadFromFile(p)
			return cfg, p, err
		}
	}
	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	return cfg, "", nil
}

// LoadFromFile reads configuration from a specific file path. Unlike Load,
// a missing file is an error.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, err := LoadFromReader(f, SyntaxFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader reads configuration from an io.Reader. Fields missing from
// the input keep their DefaultConfig values; each module descriptor starts
// from its kind's defaults. An empty module list falls back to the preset
// and then to the default modules.
func LoadFromReader(r io.Reader, syntax Syntax) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	defaults := cfg.Modules
	cfg.Modules = nil

	switch syntax {
	case YAML:
		err = decodeYAML(data, cfg)
	default:
		err = decodeTOML(data, cfg)
	}
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	if len(cfg.Modules) == 0 {
		if cfg.Preset != "" {
			if cfg.Modules, err = Preset(cfg.Preset); err != nil {
				return nil, err
			}
		} else {
			cfg.Modules = defaults
		}
	}
	return cfg, nil
}

type kindHeader struct {
	Kind string `toml:"kind" yaml:"kind"`
}

func decodeTOML(data []byte, cfg *Config) error {
	var raw struct {
		Modules []toml.Primitive `toml:"modules"`
	}
	md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&raw)
	if err != nil {
		return err
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return err
	}

	for i, prim := range raw.Modules {
		var head kindHeader
		if err := md.PrimitiveDecode(prim, &head); err != nil {
			return fmt.Errorf("modules[%d]: %w", i, err)
		}
		m, err := NewModule(head.Kind)
		if err != nil {
			return fmt.Errorf("modules[%d]: %w", i, err)
		}
		if err := md.PrimitiveDecode(prim, m); err != nil {
			return fmt.Errorf("modules[%d] (%s): %w", i, head.Kind, err)
		}
		cfg.Modules = append(cfg.Modules, m)
	}
	return nil
}

func decodeYAML(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	var raw struct {
		Modules []yaml.Node `yaml:"modules"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}

	for i := range raw.Modules {
		node := &raw.Modules[i]
		var head kindHeader
		if err := node.Decode(&head); err != nil {
			return fmt.Errorf("modules[%d]: %w", i, err)
		}
		m, err := NewModule(head.Kind)
		if err != nil {
			return fmt.Errorf("modules[%d]: %w", i, err)
		}
		if err := node.Decode(m); err != nil {
			return fmt.Errorf("modules[%d] (%s): %w", i, head.Kind, err)
		}
		cfg.Modules = append(cfg.Modules, m)
	}
	return nil
}

// DefaultConfig returns the default configuration: a clock and a battery
// slot rendered in the auto format.
func DefaultConfig() *Config {
	return &Config{
		Format: "auto",
		Theme:  "default",
		Log: LogConfig{
			Level: "info",
		},
		MQTT: MQTTConfig{
			Topic: "pulsebar/blocks",
		},
		Modules: []Module{
			mustModule(KindBattery),
			mustModule(KindClock),
		},
	}
}

// applyEnvOverrides checks environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PULSEBAR_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("PULSEBAR_THEME"); v != "" {
		cfg.Theme = v
	}
	if v := os.Getenv("PULSEBAR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PULSEBAR_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
		cfg.MQTT.Enabled = true
	}
	if v := os.Getenv("PULSEBAR_MAX_WIDTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Term.MaxWidth = n
		}
	}
}

// configSearchPaths returns the ordered list of config file paths to try.
func configSearchPaths() []string {
	home, _ := os.UserHomeDir()
	dirs := []string{filepath.Join(xdgConfigHome(home), "pulsebar")}

	// If XDG_CONFIG_HOME was explicitly set, also try the fallback default.
	if fallback := filepath.Join(home, ".config", "pulsebar"); fallback != dirs[0] {
		dirs = append(dirs, fallback)
	}

	var paths []string
	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		for _, d := range dirs {
			paths = append(paths, filepath.Join(d, name))
		}
	}
	return paths
}

// xdgConfigHome returns XDG_CONFIG_HOME or ~/.config as fallback.
func xdgConfigHome(home string) string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	return filepath.Join(home, ".config")
}
