package presence

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/snuz/internal/notify"
	"github.com/vovakirdan/snuz/internal/proto"
)

// NotificationTitle is the title of every presence notification.
const NotificationTitle = "Sleep Update 😴"

// InboundHandler decodes and acts on one inbound frame. A returned error means
// the frame was discarded.
//
// HandleFrame runs on the Manager's event loop. It must not call Disconnect on
// the same Manager synchronously, since Disconnect waits for that loop; hand
// such calls off to another goroutine.
type InboundHandler interface {
	HandleFrame(ctx context.Context, frame []byte) (proto.PresenceMessage, error)
}

// Dispatcher validates inbound frames and hands composed display requests to
// the notification sink.
type Dispatcher struct {
	sink notify.Sink
	log  *zerolog.Logger
}

// NewDispatcher builds a dispatcher. A nil sink only decodes. The sink is
// called from the Manager's event loop, see InboundHandler.
func NewDispatcher(sink notify.Sink, logger *zerolog.Logger) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dispatcher{sink: sink, log: logger}
}

// HandleFrame decodes frame and notifies the sink. Sink failures are logged,
// the message still counts as delivered.
func (d *Dispatcher) HandleFrame(ctx context.Context, frame []byte) (msg proto.PresenceMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			msg = proto.PresenceMessage{}
			err = fmt.Errorf("dispatch panic: %v", r)
		}
	}()

	msg, err = proto.Decode(frame)
	if err != nil {
		return proto.PresenceMessage{}, err
	}
	if d.sink == nil {
		return msg, nil
	}

	req, err := Compose(msg)
	if err != nil {
		return proto.PresenceMessage{}, err
	}
	if notifyErr := d.sink.Notify(ctx, req); notifyErr != nil {
		d.log.Error().Err(notifyErr).Str("operation", msg.Operation).Str("username", msg.Username).Msg("notification sink failed")
	}
	return msg, nil
}

// Compose builds the display request for a validated message.
func Compose(msg proto.PresenceMessage) (notify.Request, error) {
	switch msg.Operation {
	case proto.OperationSleepStatus:
		status, err := msg.SleepStatus()
		if err != nil {
			return notify.Request{}, err
		}
		return notify.Request{
			Title: NotificationTitle,
			Body:  fmt.Sprintf("%s %s!", msg.Username, SleepAction(status.IsAsleep)),
			Sound: true,
			Data: map[string]any{
				"username":  msg.Username,
				"is_asleep": status.IsAsleep,
			},
		}, nil
	case proto.OperationSnooze:
		snooze, err := msg.Snooze()
		if err != nil {
			return notify.Request{}, err
		}
		return notify.Request{
			Title: NotificationTitle,
			Body:  fmt.Sprintf("%s hit snooze!", msg.Username),
			Sound: true,
			Data: map[string]any{
				"username": msg.Username,
				"count":    snooze.Count,
			},
		}, nil
	default:
		return notify.Request{}, fmt.Errorf("%w: %q", proto.ErrUnknownOperation, msg.Operation)
	}
}

// SleepAction is the human readable verb phrase for a sleep state.
func SleepAction(asleep bool) string {
	if asleep {
		return "went to sleep"
	}
	return "woke up"
}
