package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/snuz/internal/config"
	"github.com/vovakirdan/snuz/internal/core"
	"github.com/vovakirdan/snuz/internal/service/groups"
	"github.com/vovakirdan/snuz/internal/service/sleep"
	"github.com/vovakirdan/snuz/internal/service/users"
	"github.com/vovakirdan/snuz/internal/store/sqlite"
)

var testNow = time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	*httptest.Server
	hub *core.Hub
}

func startTestServer(t *testing.T, tweak ...func(*config.Config)) *testServer {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	clock := func() time.Time { return testNow }

	hub := core.NewHub(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	cfg := config.Default()
	cfg.WSRateLimit = 0
	for _, fn := range tweak {
		fn(&cfg)
	}

	svc := Services{
		Users:  users.New(st),
		Sleep:  sleep.New(st, &logger, sleep.WithClock(clock), sleep.WithDissolveHook(hub.CloseGroup)),
		Groups: groups.New(st, clock),
	}
	ts := httptest.NewServer(NewRouter(hub, svc, &cfg, &logger))
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, hub: hub}
}

func (s *testServer) wsURL(username string) string {
	return strings.Replace(s.URL, "http", "ws", 1) + "/ws/" + username
}

func (s *testServer) postForm(t *testing.T, path, username string) (int, map[string]any) {
	t.Helper()
	resp, err := s.Client().PostForm(s.URL+path, url.Values{"username": {username}})
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp)
}

func (s *testServer) postJSON(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := s.Client().Post(s.URL+path, "application/json", strings.NewReader(string(raw)))
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (s *testServer) createUsers(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		status, body := s.postForm(t, "/create-user", name)
		require.Equal(t, http.StatusCreated, status, "create %s: %v", name, body)
	}
}

func groupRequest(owner string, members ...string) CreateGroupRequest {
	return CreateGroupRequest{
		OwnerUsername: owner,
		GroupMembers:  members,
		ToSleepTime:   "2030-05-01T23:00:00Z",
		ToWakeUpTime:  "2030-05-02T07:00:00Z",
		DurationDays:  3,
		StartDate:     "2030-05-01",
	}
}

func (s *testServer) createGroup(t *testing.T, owner string, members ...string) string {
	t.Helper()
	status, body := s.postJSON(t, "/create-group", groupRequest(owner, members...))
	require.Equal(t, http.StatusCreated, status, "create group: %v", body)
	id, _ := body["group_id"].(string)
	require.NotEmpty(t, id)
	return id
}
