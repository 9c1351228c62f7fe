package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandPublish relays a presence message to the rest of the group.
	CommandPublish CommandKind = iota
)

// Command represents an action requested by a client.
type Command struct {
	Kind    CommandKind
	Message Message
}
