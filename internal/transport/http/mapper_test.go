package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/snuz/internal/core"
	"github.com/vovakirdan/snuz/internal/proto"
)

func TestInboundToCommand(t *testing.T) {
	client := core.NewClient("c1", "alice", "g1")

	cmd, err := inboundToCommand(client, []byte(`{"operation":"snooze","username":"alice","data":{"count":3},"extra":1}`))
	require.NoError(t, err)
	assert.Equal(t, core.CommandPublish, cmd.Kind)
	assert.Equal(t, "alice", cmd.Message.From)
	assert.Equal(t, proto.OperationSnooze, cmd.Message.Operation)
	assert.JSONEq(t, `{"operation":"snooze","username":"alice","data":{"count":3}}`, string(cmd.Message.Payload))

	_, err = inboundToCommand(client, []byte(`{"operation":"snooze","username":"bob","data":{"count":3}}`))
	assert.ErrorIs(t, err, errForeignSubject)

	_, err = inboundToCommand(client, []byte(`{`))
	assert.ErrorIs(t, err, proto.ErrMalformed)
}

func TestOutboundFromEvent(t *testing.T) {
	payload, ok := outboundFromEvent(&core.Event{Kind: core.EventPresence, Message: core.Message{Payload: []byte(`{}`)}})
	assert.True(t, ok)
	assert.Equal(t, `{}`, string(payload))

	_, ok = outboundFromEvent(&core.Event{Kind: core.EventPresence})
	assert.False(t, ok)
}

func TestRateLimiter(t *testing.T) {
	unlimited := newRateLimiter(0)
	for i := 0; i < 100; i++ {
		require.True(t, unlimited.Allow())
	}

	limited := newRateLimiter(2)
	assert.True(t, limited.Allow())
	assert.True(t, limited.Allow())
	assert.False(t, limited.Allow())
}
