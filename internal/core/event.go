package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventPresence carries a presence message published by another member.
	EventPresence EventKind = iota
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Group   string
	Message Message
}
