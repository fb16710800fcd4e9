package bus

import (
	"context"
	"sync"

	"github.com/godbus/dbus/v5"
)

// Fake is an in-memory Bus for tests. Property values set with Set are
// pushed to every open watch on that property. Watches stay recorded after
// Close so tests can inject late deliveries with FakeWatch.Deliver.
type Fake struct {
	mu         sync.Mutex
	objects    map[string]ManagedObjects
	props      map[propKey]any
	watches    []*FakeWatch
	objectsErr error
	watchErr   map[string]error
	gone       bool
}

type propKey struct {
	path  dbus.ObjectPath
	iface string
	prop  string
}

var _ Bus = (*Fake)(nil)

// NewFake returns an empty fake bus.
func NewFake() *Fake {
	return &Fake{
		objects:  make(map[string]ManagedObjects),
		props:    make(map[propKey]any),
		watchErr: make(map[string]error),
	}
}

// AddObject exports an object under service with the given interface
// properties. The properties are also readable through Watch.
func (f *Fake) AddObject(service string, path dbus.ObjectPath, iface string, props map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	objs, ok := f.objects[service]
	if !ok {
		objs = make(ManagedObjects)
		f.objects[service] = objs
	}
	ifaces, ok := objs[path]
	if !ok {
		ifaces = make(map[string]map[string]dbus.Variant)
		objs[path] = ifaces
	}
	vars := make(map[string]dbus.Variant, len(props))
	for k, v := range props {
		vars[k] = dbus.MakeVariant(v)
		f.props[propKey{path, iface, k}] = v
	}
	ifaces[iface] = vars
}

// Set stores a property value and notifies open watches on it.
func (f *Fake) Set(path dbus.ObjectPath, iface, prop string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := propKey{path, iface, prop}
	f.props[k] = v
	f.notifyLocked(k, Change{Value: v})
}

// Invalidate removes a property and notifies open watches with
// ErrNoProperty, as a re-read after invalidation would.
func (f *Fake) Invalidate(path dbus.ObjectPath, iface, prop string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := propKey{path, iface, prop}
	delete(f.props, k)
	f.notifyLocked(k, Change{Err: ErrNoProperty})
}

// FailObjects makes ManagedObjects return err. A nil err clears it.
func (f *Fake) FailObjects(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objectsErr = err
}

// FailWatches makes Watch on iface return err. A nil err clears it.
func (f *Fake) FailWatches(iface string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.watchErr, iface)
		return
	}
	f.watchErr[iface] = err
}

// Disconnect simulates transport loss: every open watch channel closes and
// later Watch calls fail.
func (f *Fake) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gone = true
	for _, w := range f.watches {
		w.disconnect()
	}
}

// Open counts watches on iface that have not been closed. An empty iface
// counts every open watch.
func (f *Fake) Open(iface string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.watches {
		if (iface == "" || w.iface == iface) && !w.Closed() {
			n++
		}
	}
	return n
}

// Watches returns every watch ever opened on path/iface/prop, oldest first,
// including closed ones.
func (f *Fake) Watches(path dbus.ObjectPath, iface, prop string) []*FakeWatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*FakeWatch
	for _, w := range f.watches {
		if w.key == (propKey{path, iface, prop}) {
			out = append(out, w)
		}
	}
	return out
}

// ManagedObjects returns a copy of the objects exported under service.
func (f *Fake) ManagedObjects(ctx context.Context, service string) (ManagedObjects, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objectsErr != nil {
		return nil, f.objectsErr
	}
	if f.gone {
		return nil, dbus.ErrClosed
	}
	out := make(ManagedObjects, len(f.objects[service]))
	for p, ifaces := range f.objects[service] {
		out[p] = ifaces
	}
	return out, nil
}

// Watch opens a watch whose first delivery is the current value, or
// ErrNoProperty when the property is unset.
func (f *Fake) Watch(ctx context.Context, service string, path dbus.ObjectPath, iface, prop string) (Watch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.watchErr[iface]; err != nil {
		return nil, err
	}
	if f.gone {
		return nil, dbus.ErrClosed
	}

	k := propKey{path, iface, prop}
	w := &FakeWatch{
		key:   k,
		iface: iface,
		ch:    make(chan Change, 64),
	}
	if v, ok := f.props[k]; ok {
		w.ch <- Change{Value: v}
	} else {
		w.ch <- Change{Err: ErrNoProperty}
	}
	f.watches = append(f.watches, w)
	return w, nil
}

func (f *Fake) notifyLocked(k propKey, c Change) {
	for _, w := range f.watches {
		if w.key == k && !w.Closed() {
			w.Deliver(c)
		}
	}
}

// FakeWatch is the Watch returned by Fake.
type FakeWatch struct {
	key   propKey
	iface string
	ch    chan Change

	mu     sync.Mutex
	closed bool
	gone   bool
}

// Changes returns the delivery channel.
func (w *FakeWatch) Changes() <-chan Change { return w.ch }

// Close marks the watch closed. The channel is left open so that a
// delivery already in flight can still be observed by a careless reader.
func (w *FakeWatch) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

// Closed reports whether Close has been called.
func (w *FakeWatch) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Deliver pushes c onto the watch channel even if the watch is closed. It
// drops c when the buffer is full or the transport is gone.
func (w *FakeWatch) Deliver(c Change) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gone {
		return
	}
	select {
	case w.ch <- c:
	default:
	}
}

func (w *FakeWatch) disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gone {
		return
	}
	w.gone = true
	close(w.ch)
}
