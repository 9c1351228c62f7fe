package groupstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return New(Options{
		BaseURL:      ts.URL + "/",
		Timeout:      2 * time.Second,
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	})
}

func TestPostFormSendsUsername(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/to-sleep", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "alice", r.PostForm.Get("username"))
		_, _ = w.Write([]byte(`{"message":"alice went to sleep"}`))
	}))

	res, err := c.ToSleep(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice went to sleep", res.Message)
}

func TestAllUsers(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/all-user-data", r.URL.Path)
		_, _ = w.Write([]byte(`{"users":[
			{"username":"alice","group_id":"g1","score":90,"is_asleep":true,"last_sleep_time":"2026-01-02T23:00:00Z"},
			{"username":"bob","group_id":null,"score":100,"average_minutes_slept":420}
		]}`))
	}))

	users, err := c.AllUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.True(t, users[0].InGroup())
	assert.True(t, users[0].IsAsleep)
	require.NotNil(t, users[0].LastSleepTime)
	assert.Equal(t, 23, users[0].LastSleepTime.Hour())

	assert.False(t, users[1].InGroup())
	require.NotNil(t, users[1].AverageMinutesSlept)
	assert.Equal(t, 420, *users[1].AverageMinutesSlept)
}

func TestAPIErrorCarriesStatusAndDetail(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		detail string
	}{
		{"error field", `{"error":"alice is already asleep"}`, "alice is already asleep"},
		{"detail field", `{"detail":"User does not exist: alice"}`, "User does not exist: alice"},
		{"plain text", "nope\n", "nope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(tc.body))
			}))

			_, err := c.ToSleep(context.Background(), "alice")
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusConflict, apiErr.Status)
			assert.Equal(t, tc.detail, apiErr.Detail)
			assert.Equal(t, http.StatusConflict, StatusOf(err))
		})
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	err := c.Login(context.Background(), "alice")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGatewayErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"message":"user found","username":"alice"}`))
	}))

	require.NoError(t, c.Login(context.Background(), "alice"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGatewayErrorAfterRetriesSurfacesAsAPIError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	err := c.Login(context.Background(), "alice")
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestMyGroup(t *testing.T) {
	t.Run("not in group", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"message":"alice is not in a group","in_group":false}`))
		}))
		m, err := c.MyGroup(context.Background(), "alice")
		require.NoError(t, err)
		assert.False(t, m.InGroup)
		assert.Nil(t, m.Group)
	})

	t.Run("in group", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"in_group":true,"group_id":"g1","owner_username":"alice",
				"group_members":["alice","bob"],"to_sleep_time":"23:00:00","to_wake_up_time":"07:00:00",
				"duration_days":7,"days_remaining":6,"start_date":"2026-01-02"}`))
		}))
		m, err := c.MyGroup(context.Background(), "alice")
		require.NoError(t, err)
		require.True(t, m.InGroup)
		assert.Equal(t, "g1", m.Group.GroupID)
		assert.Equal(t, []string{"alice", "bob"}, m.Group.Members)
		assert.Equal(t, 6, m.Group.DaysRemaining)
	})
}

func TestCreateGroupSendsJSON(t *testing.T) {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/create-group", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in CreateGroupRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "alice", in.OwnerUsername)
		assert.Equal(t, []string{"bob"}, in.Members)
		assert.True(t, in.StartDate.Equal(start))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"group_id":"g1","owner_username":"alice","group_members":["bob","alice"],"duration_days":3,"days_remaining":3}`))
	}))

	g, err := c.CreateGroup(context.Background(), CreateGroupRequest{
		OwnerUsername: "alice",
		Members:       []string{"bob"},
		ToSleepTime:   start.Add(23 * time.Hour),
		ToWakeUpTime:  start.Add(31 * time.Hour),
		DurationDays:  3,
		StartDate:     start,
	})
	require.NoError(t, err)
	assert.Equal(t, "g1", g.GroupID)
	assert.ElementsMatch(t, []string{"alice", "bob"}, g.Members)
}

func TestTransportErrorIsWrapped(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	base := ts.URL
	ts.Close()

	c := New(Options{BaseURL: base, RetryMax: 0})
	err := c.Login(context.Background(), "alice")
	require.Error(t, err)
	assert.Zero(t, StatusOf(err))
}
