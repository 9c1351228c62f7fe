package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/snuz/internal/service/groups"
	"github.com/vovakirdan/snuz/internal/service/sleep"
	"github.com/vovakirdan/snuz/internal/service/users"
	"github.com/vovakirdan/snuz/internal/store"
)

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	svc Services
	log *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(svc Services, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		svc: svc,
		log: logger,
	}
}

// UsernameForm is the form body shared by the user endpoints.
type UsernameForm struct {
	Username string `form:"username" binding:"required"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message  string `json:"message"`
	Username string `json:"username,omitempty"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	Username             string     `json:"username"`
	OwnsAGroup           bool       `json:"owns_a_group"`
	GroupID              *string    `json:"group_id"`
	Score                int        `json:"score"`
	AverageMinutesSlept  *int       `json:"average_minutes_slept"`
	IsAsleep             bool       `json:"is_asleep"`
	LastSleepTime        *time.Time `json:"last_sleep_time"`
	LastAwakeTime        *time.Time `json:"last_awake_time"`
	CurrentSnoozeCounter int        `json:"current_snooze_counter"`
}

// UsersResponse wraps the user list.
type UsersResponse struct {
	Users []UserResponse `json:"users"`
}

// MutationResponse is returned by the sleep, awake and snooze endpoints.
type MutationResponse struct {
	Message              string `json:"message"`
	Score                int    `json:"score"`
	CurrentSnoozeCounter int    `json:"current_snooze_counter"`
	GroupAdvanced        bool   `json:"group_advanced,omitempty"`
	GroupDissolved       bool   `json:"group_dissolved,omitempty"`
}

func userResponse(u *store.User) UserResponse {
	return UserResponse{
		Username:             u.Username,
		OwnsAGroup:           u.OwnsAGroup,
		GroupID:              u.GroupID,
		Score:                u.Score,
		AverageMinutesSlept:  u.AverageMinutesSlept,
		IsAsleep:             u.IsAsleep,
		LastSleepTime:        u.LastSleepTime,
		LastAwakeTime:        u.LastAwakeTime,
		CurrentSnoozeCounter: u.CurrentSnoozeCounter,
	}
}

func (h *APIHandlers) bindUsername(c *gin.Context) (string, bool) {
	var form UsernameForm
	if err := c.ShouldBind(&form); err != nil {
		h.log.Debug().Err(err).Str("path", c.FullPath()).Msg("invalid form")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "username is required"})
		return "", false
	}
	return form.Username, true
}

// fail maps domain errors to status codes. Unknown errors are logged and
// reported as 500 without detail.
func (h *APIHandlers) fail(c *gin.Context, err error, msg string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, users.ErrInvalidUsername),
		errors.Is(err, groups.ErrInvalidDuration),
		errors.Is(err, groups.ErrStartInPast),
		errors.Is(err, groups.ErrSleepInPast):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, store.ErrAlreadyInGroup),
		errors.Is(err, sleep.ErrNotInGroup),
		errors.Is(err, sleep.ErrAlreadyAsleep),
		errors.Is(err, sleep.ErrNotAsleep):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		c.JSON(status, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

// CreateUser handles user registration.
// POST /create-user
func (h *APIHandlers) CreateUser(c *gin.Context) {
	username, ok := h.bindUsername(c)
	if !ok {
		return
	}

	if _, err := h.svc.Users.Create(c.Request.Context(), username); err != nil {
		h.fail(c, err, "failed to create user")
		return
	}

	h.log.Info().Str("username", username).Msg("user created")
	c.JSON(http.StatusCreated, MessageResponse{Message: fmt.Sprintf("User created: %s", username), Username: username})
}

// Login checks that a user exists.
// POST /login
func (h *APIHandlers) Login(c *gin.Context) {
	username, ok := h.bindUsername(c)
	if !ok {
		return
	}

	user, err := h.svc.Users.Login(c.Request.Context(), username)
	if err != nil {
		h.fail(c, err, "failed to login user")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "user found", Username: user.Username})
}

// AllUsers lists every user.
// GET /all-user-data
func (h *APIHandlers) AllUsers(c *gin.Context) {
	list, err := h.svc.Users.List(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to list users")
		return
	}

	resp := UsersResponse{Users: make([]UserResponse, 0, len(list))}
	for _, u := range list {
		resp.Users = append(resp.Users, userResponse(u))
	}
	c.JSON(http.StatusOK, resp)
}

// GetUser returns one user.
// POST /get-user-data
func (h *APIHandlers) GetUser(c *gin.Context) {
	username, ok := h.bindUsername(c)
	if !ok {
		return
	}

	user, err := h.svc.Users.Get(c.Request.Context(), username)
	if err != nil {
		h.fail(c, err, "failed to get user")
		return
	}
	c.JSON(http.StatusOK, userResponse(user))
}
