// Package bus is the remote object bus collaborator used by the reactive
// modules. It exposes the three primitives the trackers consume: enumerate
// managed objects, find an object by a property value, and watch a single
// property for changes. Conn implements them over D-Bus with godbus; Fake
// implements them in memory for tests.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/godbus/dbus/v5"
)

var (
	// ErrNotFound is returned when no managed object matches a lookup.
	ErrNotFound = errors.New("bus: object not found")

	// ErrNoProperty is delivered when a watched property cannot be read,
	// for example because the interface disappeared from the object.
	ErrNoProperty = errors.New("bus: property not available")

	// ErrWatchClosed reports that a watch channel closed under a tracker,
	// which only happens when the connection is lost.
	ErrWatchClosed = errors.New("bus: watch closed")
)

// ManagedObjects maps object path -> interface -> property -> value, as
// returned by org.freedesktop.DBus.ObjectManager.GetManagedObjects.
type ManagedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Change is one observation of a watched property: either its new value or
// the error that prevented reading it.
type Change struct {
	Value any
	Err   error
}

// Bool returns the value as a bool.
func (c Change) Bool() (bool, bool) {
	if c.Err != nil {
		return false, false
	}
	v, ok := c.Value.(bool)
	return v, ok
}

// String returns the value as a string.
func (c Change) String() (string, bool) {
	if c.Err != nil {
		return "", false
	}
	v, ok := c.Value.(string)
	return v, ok
}

// Path returns the value as an object path. The root path "/" and the empty
// path are treated as "no reference".
func (c Change) Path() (dbus.ObjectPath, bool) {
	if c.Err != nil {
		return "", false
	}
	v, ok := c.Value.(dbus.ObjectPath)
	if !ok || v == "" || v == "/" {
		return "", false
	}
	return v, true
}

// Uint8 returns the value as a byte-sized integer.
func (c Change) Uint8() (uint8, bool) {
	if c.Err != nil {
		return 0, false
	}
	v, ok := c.Value.(uint8)
	return v, ok
}

// Watch is a live subscription to one property of one object. The first
// Change is the property's current value; later ones follow remote change
// notifications. The channel is closed when the transport is lost. After
// Close returns, no further Change is observed by the caller.
type Watch interface {
	Changes() <-chan Change
	Close()
}

// Bus is the subset of the remote object bus the trackers use.
type Bus interface {
	// ManagedObjects enumerates every object exported by service.
	ManagedObjects(ctx context.Context, service string) (ManagedObjects, error)

	// Watch subscribes to property prop of interface iface on the object at
	// path, owned by service.
	Watch(ctx context.Context, service string, path dbus.ObjectPath, iface, prop string) (Watch, error)
}

// FindObject returns the path of the first object (in path order) whose
// interface iface has property prop equal to want.
func FindObject(objects ManagedObjects, iface, prop string, want any) (dbus.ObjectPath, error) {
	paths := make([]dbus.ObjectPath, 0, len(objects))
	for p := range objects {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	for _, p := range paths {
		props, ok := objects[p][iface]
		if !ok {
			continue
		}
		v, ok := props[prop]
		if !ok {
			continue
		}
		if v.Value() == want {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s.%s = %v", ErrNotFound, iface, prop, want)
}

// Lookup enumerates service and finds an object with FindObject.
func Lookup(ctx context.Context, b Bus, service, iface, prop string, want any) (dbus.ObjectPath, error) {
	objects, err := b.ManagedObjects(ctx, service)
	if err != nil {
		return "", fmt.Errorf("enumerate %s: %w", service, err)
	}
	return FindObject(objects, iface, prop, want)
}

// Changes returns w's channel, or nil when w is nil. A nil channel never
// becomes ready in a select, which disables that case.
func Changes(w Watch) <-chan Change {
	if w == nil {
		return nil
	}
	return w.Changes()
}
