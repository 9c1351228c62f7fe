// Package groupstore is the HTTP client for the snuz REST API, the durable
// source of truth for users and sleep groups.
package groupstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const maxErrorBody = 4 << 10

// Options configures a Client.
type Options struct {
	BaseURL  string
	Timeout  time.Duration
	RetryMax int
	// RetryWaitMin and RetryWaitMax bound the backoff between retries.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       *zerolog.Logger
}

// Client talks to the REST API.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	log     *zerolog.Logger
}

// New builds a client. Only transport failures and gateway errors are
// retried; mutations are not idempotent.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	if opts.Timeout > 0 {
		rc.HTTPClient.Timeout = opts.Timeout
	}
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{log: logger}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    rc,
		log:     logger,
	}
}

func checkRetry(ctx context.Context, resp *stdhttp.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	switch resp.StatusCode {
	case stdhttp.StatusBadGateway, stdhttp.StatusServiceUnavailable, stdhttp.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

// CreateUser registers username. Usernames must be alphanumeric.
func (c *Client) CreateUser(ctx context.Context, username string) error {
	return c.postForm(ctx, "/create-user", username, nil)
}

// Login checks that username exists.
func (c *Client) Login(ctx context.Context, username string) error {
	return c.postForm(ctx, "/login", username, nil)
}

// GetUser returns one user record.
func (c *Client) GetUser(ctx context.Context, username string) (User, error) {
	var u User
	err := c.postForm(ctx, "/get-user-data", username, &u)
	return u, err
}

// AllUsers returns every user record.
func (c *Client) AllUsers(ctx context.Context) ([]User, error) {
	var out struct {
		Users []User `json:"users"`
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, stdhttp.MethodGet, c.baseURL+"/all-user-data", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// ToSleep marks username as asleep.
func (c *Client) ToSleep(ctx context.Context, username string) (MutationResult, error) {
	var res MutationResult
	err := c.postForm(ctx, "/to-sleep", username, &res)
	return res, err
}

// ToAwake marks username as awake and settles the score.
func (c *Client) ToAwake(ctx context.Context, username string) (MutationResult, error) {
	var res MutationResult
	err := c.postForm(ctx, "/to-awake", username, &res)
	return res, err
}

// ToSnooze increments the snooze counter of a sleeping user.
func (c *Client) ToSnooze(ctx context.Context, username string) (MutationResult, error) {
	var res MutationResult
	err := c.postForm(ctx, "/to-snooze", username, &res)
	return res, err
}

// MyGroup returns the group username belongs to, if any.
func (c *Client) MyGroup(ctx context.Context, username string) (Membership, error) {
	var raw struct {
		InGroup *bool `json:"in_group"`
		Group
	}
	if err := c.postForm(ctx, "/my-group", username, &raw); err != nil {
		return Membership{}, err
	}
	if (raw.InGroup != nil && !*raw.InGroup) || raw.GroupID == "" {
		return Membership{}, nil
	}
	g := raw.Group
	return Membership{InGroup: true, Group: &g}, nil
}

// CreateGroup creates a sleep group. The owner is always a member.
func (c *Client) CreateGroup(ctx context.Context, in CreateGroupRequest) (Group, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return Group{}, fmt.Errorf("encode group: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, stdhttp.MethodPost, c.baseURL+"/create-group", body)
	if err != nil {
		return Group{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var g Group
	if err := c.do(req, &g); err != nil {
		return Group{}, err
	}
	return g, nil
}

func (c *Client) postForm(ctx context.Context, path, username string, out any) error {
	form := url.Values{"username": {username}}
	req, err := retryablehttp.NewRequestWithContext(ctx, stdhttp.MethodPost, c.baseURL+path, []byte(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) do(req *retryablehttp.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeAPIError(resp *stdhttp.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode}

	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Detail = payload.Error
		if apiErr.Detail == "" {
			apiErr.Detail = payload.Detail
		}
	}
	if apiErr.Detail == "" {
		apiErr.Detail = string(bytes.TrimSpace(body))
	}
	return apiErr
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// leveledLogger routes retryablehttp logs through zerolog.
type leveledLogger struct {
	log *zerolog.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Error().Fields(kv).Msg(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log.Debug().Fields(kv).Msg(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Trace().Fields(kv).Msg(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log.Warn().Fields(kv).Msg(msg) }
