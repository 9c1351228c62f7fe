package presence

import "github.com/vovakirdan/snuz/internal/proto"

// State is the connection manager's position in the reconnect cycle.
type State int

const (
	// StateIdle means no identity is assigned; nothing is connected or scheduled.
	StateIdle State = iota
	// StateConnecting means a transport is being opened for the current identity.
	StateConnecting
	// StateConnected means the channel is open and sends are transmitted.
	StateConnected
	// StateDisconnected means the channel dropped and a reconnect is armed.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Status is the observable connection status.
type Status struct {
	State    State
	Identity string
	// Reason holds the transport error of the last drop while Disconnected.
	Reason string
}

// Connected reports whether presence messages are currently transmitted.
func (s Status) Connected() bool {
	return s.State == StateConnected
}

// UpdateKind tells subscribers what an Update carries.
type UpdateKind int

const (
	// UpdateStatus is emitted on every connection status change.
	UpdateStatus UpdateKind = iota
	// UpdatePresence is emitted for every valid inbound presence message.
	UpdatePresence
)

// Update is pushed to subscribers.
type Update struct {
	Kind    UpdateKind
	Status  Status
	Message proto.PresenceMessage
}
