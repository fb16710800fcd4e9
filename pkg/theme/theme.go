// Package theme holds the named color palettes modules draw blocks with.
package theme

import (
	"sort"
	"strings"
	"sync"
)

// Theme is a status bar color palette. Every color is a "#rrggbb" string.
type Theme struct {
	Name string

	Foreground string // term sink default text
	Dim        string // muted blocks, e.g. wifi disconnected
	Separator  string // term sink slot separator

	OK       string // charging, all nodes ready
	Warn     string // usage >= warn threshold
	Critical string // low battery, usage >= critical threshold
}

var (
	mu       sync.RWMutex
	registry = map[string]Theme{}
)

func init() {
	thRegisterBuiltins()
}

// Default returns the built-in default palette.
func Default() Theme {
	return thDefaultTheme()
}

// Get returns a named theme, falling back to Default if not found.
func Get(name string) Theme {
	t, _ := Lookup(name)
	return t
}

// Lookup returns a named theme and whether it exists. When it does not, the
// default theme is returned.
func Lookup(name string) (Theme, bool) {
	mu.RLock()
	defer mu.RUnlock()
	if t, ok := registry[strings.ToLower(name)]; ok {
		return t, true
	}
	return registry["default"], false
}

// Names returns all available theme names sorted alphabetically.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds t to the registry under its lowercase name, replacing any
// theme of the same name.
func Register(t Theme) {
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(t.Name)] = t
}
