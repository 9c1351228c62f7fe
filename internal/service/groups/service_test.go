package groups

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/snuz/internal/store"
	"github.com/vovakirdan/snuz/internal/store/sqlite"
)

var now = time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, users ...string) *Service {
	t.Helper()
	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	for _, u := range users {
		_, err := st.CreateUser(context.Background(), u)
		require.NoError(t, err)
	}
	return New(st, func() time.Time { return now })
}

func validInput() CreateInput {
	return CreateInput{
		Owner:        "alice",
		Members:      []string{"bob"},
		ToSleepTime:  time.Date(2030, 5, 1, 23, 0, 0, 0, time.UTC),
		ToWakeUpTime: time.Date(2030, 5, 2, 7, 0, 0, 0, time.UTC),
		DurationDays: 5,
		StartDate:    time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateAddsOwnerAndSchedules(t *testing.T) {
	svc := newService(t, "alice", "bob")

	g, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, g.ID)
	assert.Equal(t, "alice", g.OwnerUsername)
	assert.ElementsMatch(t, []string{"alice", "bob"}, g.Members)
	assert.Equal(t, 5, g.DaysRemaining)
	assert.True(t, g.ToSleepTime.Equal(time.Date(2030, 5, 1, 23, 0, 0, 0, time.UTC)))
	assert.True(t, g.ToWakeUpTime.Equal(time.Date(2030, 5, 2, 7, 0, 0, 0, time.UTC)))

	mine, err := svc.ForUser(context.Background(), "bob")
	require.NoError(t, err)
	require.NotNil(t, mine)
	assert.Equal(t, g.ID, mine.ID)
}

func TestCreateValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CreateInput)
		want   error
	}{
		{"unknown owner", func(in *CreateInput) { in.Owner = "ghost" }, store.ErrNotFound},
		{"unknown member", func(in *CreateInput) { in.Members = []string{"ghost"} }, store.ErrNotFound},
		{"zero duration", func(in *CreateInput) { in.DurationDays = 0 }, ErrInvalidDuration},
		{"start in the past", func(in *CreateInput) { in.StartDate = now.AddDate(0, 0, -1) }, ErrStartInPast},
		{"sleep in the past", func(in *CreateInput) { in.ToSleepTime = now.Add(-time.Hour) }, ErrSleepInPast},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newService(t, "alice", "bob")
			in := validInput()
			tc.mutate(&in)

			_, err := svc.Create(context.Background(), in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateRejectsMembersOfAnotherGroup(t *testing.T) {
	svc := newService(t, "alice", "bob", "carol")
	_, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	in := validInput()
	in.Owner = "carol"
	_, err = svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, store.ErrAlreadyInGroup)

	in.Members = nil
	in.Owner = "bob"
	_, err = svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, store.ErrAlreadyInGroup)
}

func TestForUserWithoutGroup(t *testing.T) {
	svc := newService(t, "alice")

	g, err := svc.ForUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Nil(t, g)

	_, err = svc.ForUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
