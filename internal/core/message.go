package core

import "time"

// Message is an encoded presence message in transit through the hub.
type Message struct {
	From      string // username of the publishing channel
	Operation string
	Payload   []byte // wire encoding, relayed as is
	CreatedAt time.Time
}
