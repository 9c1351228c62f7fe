package core

// Client is one live presence channel as seen by the core layer.
type Client struct {
	ID    string
	Name  string // username
	Group string // sleep group the channel relays within
	// Commands is written by the transport and drained by the hub.
	Commands chan *Command
	// Events is written by the hub and closed when the client is unregistered.
	Events chan *Event
}

// NewClient constructs a client with initialized channels.
func NewClient(id, name, group string) *Client {
	if name == "" {
		name = id
	}
	return &Client{
		ID:       id,
		Name:     name,
		Group:    group,
		Commands: make(chan *Command, 16),
		Events:   make(chan *Event, 16),
	}
}
