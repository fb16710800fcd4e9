package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
)

func next(t *testing.T, w Watch) Change {
	t.Helper()
	select {
	case c, ok := <-w.Changes():
		if !ok {
			t.Fatal("watch channel closed")
		}
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}

func TestFindObjectMatchesInPathOrder(t *testing.T) {
	objects := ManagedObjects{
		"/net/connman/iwd/1": {
			"net.connman.iwd.Device": {"Name": dbus.MakeVariant("wlan0")},
		},
		"/net/connman/iwd/0": {
			"net.connman.iwd.Device": {"Name": dbus.MakeVariant("wlan0")},
		},
		"/net/connman/iwd/2": {
			"net.connman.iwd.Adapter": {"Name": dbus.MakeVariant("wlan0")},
		},
	}

	got, err := FindObject(objects, "net.connman.iwd.Device", "Name", "wlan0")
	if err != nil {
		t.Fatalf("FindObject: %v", err)
	}
	if got != "/net/connman/iwd/0" {
		t.Errorf("FindObject = %q, want first path in order", got)
	}
}

func TestFindObjectNotFound(t *testing.T) {
	objects := ManagedObjects{
		"/org/bluez/hci0": {"org.bluez.Adapter1": {"Alias": dbus.MakeVariant("laptop")}},
	}
	_, err := FindObject(objects, "org.bluez.Device1", "Address", "AA:BB")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestChangeAccessors(t *testing.T) {
	if v, ok := (Change{Value: true}).Bool(); !ok || !v {
		t.Error("Bool accessor")
	}
	if _, ok := (Change{Value: "x", Err: ErrNoProperty}).String(); ok {
		t.Error("an errored change has no value")
	}
	if _, ok := (Change{Value: dbus.ObjectPath("/")}).Path(); ok {
		t.Error("root path is not a reference")
	}
	if p, ok := (Change{Value: dbus.ObjectPath("/a")}).Path(); !ok || p != "/a" {
		t.Error("Path accessor")
	}
	if v, ok := (Change{Value: uint8(42)}).Uint8(); !ok || v != 42 {
		t.Error("Uint8 accessor")
	}
	if _, ok := (Change{Value: 42}).Uint8(); ok {
		t.Error("int is not uint8")
	}
}

func TestChangesOfNilWatchIsNil(t *testing.T) {
	if Changes(nil) != nil {
		t.Error("Changes(nil) should be a nil channel")
	}
}

func TestFakeWatchDeliversCurrentThenChanges(t *testing.T) {
	f := NewFake()
	f.AddObject("net.connman.iwd", "/dev0", "net.connman.iwd.Device", map[string]any{"Powered": false})

	w, err := f.Watch(context.Background(), "net.connman.iwd", "/dev0", "net.connman.iwd.Device", "Powered")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if v, _ := next(t, w).Bool(); v {
		t.Error("initial value should be false")
	}

	f.Set("/dev0", "net.connman.iwd.Device", "Powered", true)
	if v, _ := next(t, w).Bool(); !v {
		t.Error("changed value should be true")
	}

	f.Invalidate("/dev0", "net.connman.iwd.Device", "Powered")
	if c := next(t, w); !errors.Is(c.Err, ErrNoProperty) {
		t.Errorf("invalidated change = %+v", c)
	}
}

func TestFakeWatchUnsetPropertyDeliversError(t *testing.T) {
	f := NewFake()
	w, err := f.Watch(context.Background(), "svc", "/x", "i", "P")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if c := next(t, w); !errors.Is(c.Err, ErrNoProperty) {
		t.Errorf("first change = %+v, want ErrNoProperty", c)
	}
}

func TestFakeOpenCountsLiveWatches(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	a, _ := f.Watch(ctx, "svc", "/a", "iface.A", "P")
	b, _ := f.Watch(ctx, "svc", "/b", "iface.B", "P")

	if f.Open("") != 2 || f.Open("iface.A") != 1 {
		t.Fatalf("Open = %d / %d", f.Open(""), f.Open("iface.A"))
	}
	a.Close()
	if f.Open("iface.A") != 0 {
		t.Error("closed watch still counted")
	}
	b.Close()
	if f.Open("") != 0 {
		t.Error("all watches should be closed")
	}
	if len(f.Watches("/a", "iface.A", "P")) != 1 {
		t.Error("closed watches remain listed")
	}
}

func TestFakeClosedWatchGetsNoSetNotifications(t *testing.T) {
	f := NewFake()
	w, _ := f.Watch(context.Background(), "svc", "/a", "i", "P")
	next(t, w)
	w.Close()

	f.Set("/a", "i", "P", "late")
	select {
	case c := <-w.Changes():
		t.Errorf("closed watch received %+v", c)
	default:
	}
}

func TestFakeDisconnectClosesWatches(t *testing.T) {
	f := NewFake()
	w, _ := f.Watch(context.Background(), "svc", "/a", "i", "P")
	next(t, w)

	f.Disconnect()
	if _, ok := <-w.Changes(); ok {
		t.Error("channel should be closed after Disconnect")
	}
	if _, err := f.Watch(context.Background(), "svc", "/a", "i", "P"); err == nil {
		t.Error("Watch after Disconnect should fail")
	}
	if _, err := f.ManagedObjects(context.Background(), "svc"); err == nil {
		t.Error("ManagedObjects after Disconnect should fail")
	}
}

func TestFakeFailureInjection(t *testing.T) {
	f := NewFake()
	boom := errors.New("access denied")

	f.FailWatches("org.bluez.Battery1", boom)
	if _, err := f.Watch(context.Background(), "org.bluez", "/d", "org.bluez.Battery1", "Percentage"); !errors.Is(err, boom) {
		t.Errorf("Watch err = %v", err)
	}
	f.FailWatches("org.bluez.Battery1", nil)
	if _, err := f.Watch(context.Background(), "org.bluez", "/d", "org.bluez.Battery1", "Percentage"); err != nil {
		t.Errorf("Watch after clearing failure: %v", err)
	}

	f.FailObjects(boom)
	if _, err := Lookup(context.Background(), f, "org.bluez", "org.bluez.Device1", "Address", "x"); !errors.Is(err, boom) {
		t.Errorf("Lookup err = %v", err)
	}
}

func TestLookup(t *testing.T) {
	f := NewFake()
	f.AddObject("org.bluez", "/org/bluez/hci0/dev_AA", "org.bluez.Device1", map[string]any{
		"Address": "AA:BB:CC:DD:EE:FF",
		"Alias":   "Headphones",
	})

	p, err := Lookup(context.Background(), f, "org.bluez", "org.bluez.Device1", "Address", "AA:BB:CC:DD:EE:FF")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if p != "/org/bluez/hci0/dev_AA" {
		t.Errorf("Lookup = %q", p)
	}
}
