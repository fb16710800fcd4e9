package config

import (
	"fmt"
	"sort"
)

// presets maps a preset name to the kinds (and per-kind tweaks) it expands
// to, in slot order.
var presets = map[string]func() []Module{
	"minimal": func() []Module {
		return []Module{mustModule(KindClock)}
	},
	"laptop": func() []Module {
		return []Module{
			metric("cpu"),
			metric("memory"),
			mustModule(KindWifi),
			mustModule(KindBattery),
			mustModule(KindClock),
		}
	},
	"desktop": func() []Module {
		return []Module{
			metric("cpu"),
			metric("memory"),
			metric("disk"),
			mustModule(KindClock),
		}
	},
	"ops": func() []Module {
		return []Module{
			mustModule(KindTailscale),
			mustModule(KindKube),
			metric("cpu"),
			metric("memory"),
			metric("load"),
			metric("uptime"),
			mustModule(KindClock),
		}
	},
}

// Preset returns a fresh copy of the named module list.
func Preset(name string) ([]Module, error) {
	build, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("config: unknown preset %q (want one of %v)", name, PresetNames())
	}
	return build(), nil
}

// PresetNames lists the built-in presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func metric(name string) Module {
	m := mustModule(KindSysmetrics).(*SysmetricsModule)
	m.Metric = name
	return m
}

func mustModule(kind string) Module {
	m, err := NewModule(kind)
	if err != nil {
		panic(err)
	}
	return m
}
