package presence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/snuz/internal/notify"
	"github.com/vovakirdan/snuz/internal/proto"
)

func TestComposeSleepStatus(t *testing.T) {
	cases := []struct {
		name   string
		asleep bool
		body   string
	}{
		{"asleep", true, "bob went to sleep!"},
		{"awake", false, "bob woke up!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := proto.NewSleepStatus("bob", tc.asleep)
			require.NoError(t, err)

			req, err := Compose(msg)
			require.NoError(t, err)
			assert.Equal(t, NotificationTitle, req.Title)
			assert.Equal(t, tc.body, req.Body)
			assert.True(t, req.Sound)
			assert.Equal(t, map[string]any{"username": "bob", "is_asleep": tc.asleep}, req.Data)
		})
	}
}

func TestComposeSnooze(t *testing.T) {
	msg, err := proto.NewSnooze("carol", 3)
	require.NoError(t, err)

	req, err := Compose(msg)
	require.NoError(t, err)
	assert.Equal(t, "carol hit snooze!", req.Body)
	assert.Equal(t, 3, req.Data["count"])
}

func TestDispatcherDiscardsInvalidFrames(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, nil)

	_, err := d.HandleFrame(context.Background(), []byte(`{"operation":"sleep_status","username":"bob"}`))
	assert.ErrorIs(t, err, proto.ErrMissingData)

	_, err = d.HandleFrame(context.Background(), []byte(`{{`))
	assert.ErrorIs(t, err, proto.ErrMalformed)

	assert.Empty(t, sink.requests())
}

func TestDispatcherSinkFailureStillDelivers(t *testing.T) {
	calls := 0
	sink := notify.SinkFunc(func(context.Context, notify.Request) error {
		calls++
		return errors.New("permission denied")
	})
	d := NewDispatcher(sink, nil)

	msg, err := d.HandleFrame(context.Background(), []byte(`{"operation":"sleep_status","username":"bob","data":{"is_asleep":true}}`))
	require.NoError(t, err)
	assert.Equal(t, "bob", msg.Username)
	assert.Equal(t, 1, calls)
}

func TestDispatcherRecoversFromSinkPanic(t *testing.T) {
	d := NewDispatcher(notify.SinkFunc(func(context.Context, notify.Request) error {
		panic("boom")
	}), nil)

	_, err := d.HandleFrame(context.Background(), []byte(`{"operation":"snooze","username":"bob","data":{"count":1}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestDispatcherWithoutSinkOnlyDecodes(t *testing.T) {
	d := NewDispatcher(nil, nil)

	msg, err := d.HandleFrame(context.Background(), []byte(`{"operation":"snooze","username":"bob","data":{"count":2}}`))
	require.NoError(t, err)
	snooze, err := msg.Snooze()
	require.NoError(t, err)
	assert.Equal(t, 2, snooze.Count)
}
