package core

import "errors"

var (
	// ErrHubStopped is returned when the hub no longer runs.
	ErrHubStopped = errors.New("hub stopped")
	// ErrUnknownClient is returned for commands from an unregistered client.
	ErrUnknownClient = errors.New("unknown client")
)
