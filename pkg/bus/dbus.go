package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	propertiesInterface = "org.freedesktop.DBus.Properties"
	propertiesChanged   = propertiesInterface + ".PropertiesChanged"
	propertiesGet       = propertiesInterface + ".Get"
	getManagedObjects   = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
)

// Conn implements Bus over a D-Bus connection.
type Conn struct {
	conn   *dbus.Conn
	logger *slog.Logger
}

var _ Bus = (*Conn)(nil)

// ConnectSystem opens a private connection to the system bus.
func ConnectSystem(logger *slog.Logger) (*Conn, error) {
	c, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return NewConn(c, logger), nil
}

// NewConn wraps an established connection.
func NewConn(c *dbus.Conn, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{conn: c, logger: logger}
}

// Close closes the underlying connection. Every open Watch channel closes.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// ManagedObjects calls GetManagedObjects on service's root object.
func (c *Conn) ManagedObjects(ctx context.Context, service string) (ManagedObjects, error) {
	var objects ManagedObjects
	err := c.conn.Object(service, "/").CallWithContext(ctx, getManagedObjects, 0).Store(&objects)
	if err != nil {
		return nil, fmt.Errorf("get managed objects: %w", err)
	}
	return objects, nil
}

// Watch installs a PropertiesChanged match rule for path/iface and streams
// prop's value. The current value is fetched after the rule is installed,
// so no change between subscribe and read is lost.
func (c *Conn) Watch(ctx context.Context, service string, path dbus.ObjectPath, iface, prop string) (Watch, error) {
	rule := []dbus.MatchOption{
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(0, iface),
	}
	if err := c.conn.AddMatchSignalContext(ctx, rule...); err != nil {
		return nil, fmt.Errorf("subscribe %s %s.%s: %w", path, iface, prop, err)
	}

	wctx, cancel := context.WithCancel(ctx)
	w := &signalWatch{
		conn:    c,
		obj:     c.conn.Object(service, path),
		path:    path,
		iface:   iface,
		prop:    prop,
		rule:    rule,
		signals: make(chan *dbus.Signal, 16),
		changes: make(chan Change),
		ctx:     wctx,
		cancel:  cancel,
	}
	c.conn.Signal(w.signals)
	go w.loop()
	return w, nil
}

// signalWatch is a Watch backed by a match rule and a private signal
// channel. loop is the only sender on changes and closes it on exit.
type signalWatch struct {
	conn    *Conn
	obj     dbus.BusObject
	path    dbus.ObjectPath
	iface   string
	prop    string
	rule    []dbus.MatchOption
	signals chan *dbus.Signal
	changes chan Change

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (w *signalWatch) Changes() <-chan Change { return w.changes }

// Close removes the match rule and stops delivery.
func (w *signalWatch) Close() {
	w.once.Do(func() {
		w.cancel()
		w.conn.conn.RemoveSignal(w.signals)
		if err := w.conn.conn.RemoveMatchSignal(w.rule...); err != nil {
			w.conn.logger.Debug("remove match rule", "path", w.path, "iface", w.iface, "err", err)
		}
	})
}

func (w *signalWatch) loop() {
	defer close(w.changes)

	if !w.send(w.get()) {
		return
	}
	for {
		select {
		case <-w.ctx.Done():
			return
		case sig, ok := <-w.signals:
			if !ok {
				// Connection lost.
				return
			}
			c, relevant := w.decode(sig)
			if !relevant {
				continue
			}
			if !w.send(c) {
				return
			}
		}
	}
}

func (w *signalWatch) send(c Change) bool {
	select {
	case w.changes <- c:
		return true
	case <-w.ctx.Done():
		return false
	}
}

// get reads the property's current value.
func (w *signalWatch) get() Change {
	var v dbus.Variant
	if err := w.obj.CallWithContext(w.ctx, propertiesGet, 0, w.iface, w.prop).Store(&v); err != nil {
		return Change{Err: fmt.Errorf("%w: %s.%s: %v", ErrNoProperty, w.iface, w.prop, err)}
	}
	return Change{Value: v.Value()}
}

// decode extracts prop from a PropertiesChanged signal. Invalidated
// properties are re-read.
func (w *signalWatch) decode(sig *dbus.Signal) (Change, bool) {
	v, reread, ok := propertyChange(sig, w.path, w.iface, w.prop)
	switch {
	case !ok:
		return Change{}, false
	case reread:
		return w.get(), true
	default:
		return Change{Value: v}, true
	}
}

// propertyChange matches sig against one property. ok is false when the
// signal does not concern it; reread is true when the property was only
// invalidated and its value must be fetched.
func propertyChange(sig *dbus.Signal, path dbus.ObjectPath, iface, prop string) (value any, reread, ok bool) {
	if sig.Path != path || sig.Name != propertiesChanged || len(sig.Body) < 3 {
		return nil, false, false
	}
	if name, isStr := sig.Body[0].(string); !isStr || name != iface {
		return nil, false, false
	}
	if changed, isMap := sig.Body[1].(map[string]dbus.Variant); isMap {
		if v, found := changed[prop]; found {
			return v.Value(), false, true
		}
	}
	if invalidated, isList := sig.Body[2].([]string); isList {
		for _, name := range invalidated {
			if name == prop {
				return nil, true, true
			}
		}
	}
	return nil, false, false
}
