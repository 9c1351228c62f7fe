package http

import (
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/snuz/internal/core"
	"github.com/vovakirdan/snuz/internal/proto"
)

var errForeignSubject = errors.New("presence message about another user")

func inboundToCommand(client *core.Client, raw []byte) (*core.Command, error) {
	msg, err := proto.Decode(raw)
	if err != nil {
		return nil, err
	}
	if msg.Username != client.Name {
		return nil, fmt.Errorf("%w: channel %q sent %q", errForeignSubject, client.Name, msg.Username)
	}

	payload, err := proto.Encode(msg)
	if err != nil {
		return nil, err
	}
	return &core.Command{
		Kind: core.CommandPublish,
		Message: core.Message{
			From:      client.Name,
			Operation: msg.Operation,
			Payload:   payload,
			CreatedAt: time.Now(),
		},
	}, nil
}

func outboundFromEvent(event *core.Event) ([]byte, bool) {
	switch event.Kind {
	case core.EventPresence:
		return event.Message.Payload, len(event.Message.Payload) > 0
	default:
		return nil, false
	}
}
