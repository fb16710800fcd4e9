package wifi

import "fmt"

// Kind enumerates the link states of a wireless device.
type Kind int

const (
	// PoweredOff: the device is unpowered. Nothing is shown.
	PoweredOff Kind = iota
	// Disconnected: powered, no network association.
	Disconnected
	// Connected: associated with a network whose name is not known.
	Connected
	// ConnectedTo: associated with a network whose name resolved.
	ConnectedTo
)

func (k Kind) String() string {
	switch k {
	case PoweredOff:
		return "powered-off"
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case ConnectedTo:
		return "connected-to"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// State is the tracker's current link state. Name is only set for
// ConnectedTo.
type State struct {
	Kind Kind
	Name string
}

func (s State) String() string {
	if s.Kind == ConnectedTo {
		return fmt.Sprintf("connected-to(%q)", s.Name)
	}
	return s.Kind.String()
}
