package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/snuz/internal/service/groups"
	"github.com/vovakirdan/snuz/internal/store"
)

// CreateGroupRequest represents the create-group request body. Times are
// ISO-8601.
type CreateGroupRequest struct {
	OwnerUsername string   `json:"owner_username" binding:"required"`
	GroupMembers  []string `json:"group_members"`
	ToSleepTime   string   `json:"to_sleep_time" binding:"required"`
	ToWakeUpTime  string   `json:"to_wake_up_time" binding:"required"`
	DurationDays  int      `json:"duration_days"`
	StartDate     string   `json:"start_date" binding:"required"`
}

// GroupResponse is the public view of a group.
type GroupResponse struct {
	InGroup       bool     `json:"in_group"`
	GroupID       string   `json:"group_id"`
	OwnerUsername string   `json:"owner_username"`
	GroupMembers  []string `json:"group_members"`
	ToSleepTime   string   `json:"to_sleep_time"`
	ToWakeUpTime  string   `json:"to_wake_up_time"`
	DurationDays  int      `json:"duration_days"`
	DaysRemaining int      `json:"days_remaining"`
	StartDate     string   `json:"start_date"`
}

// NoGroupResponse is returned by my-group for users without a group.
type NoGroupResponse struct {
	Message string `json:"message"`
	InGroup bool   `json:"in_group"`
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseISO accepts full timestamps and plain dates. Values without an offset
// are taken as UTC.
func parseISO(s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO 8601 time %q", s)
}

func groupResponse(g *store.Group) GroupResponse {
	return GroupResponse{
		InGroup:       true,
		GroupID:       g.ID,
		OwnerUsername: g.OwnerUsername,
		GroupMembers:  g.Members,
		ToSleepTime:   g.ToSleepTime.UTC().Format(time.TimeOnly),
		ToWakeUpTime:  g.ToWakeUpTime.UTC().Format(time.TimeOnly),
		DurationDays:  g.DurationDays,
		DaysRemaining: g.DaysRemaining,
		StartDate:     g.StartDate.UTC().Format(time.DateOnly),
	}
}

// CreateGroup creates a sleep group.
// POST /create-group
func (h *APIHandlers) CreateGroup(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create group request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	in := groups.CreateInput{
		Owner:        req.OwnerUsername,
		Members:      req.GroupMembers,
		DurationDays: req.DurationDays,
	}
	var err error
	for _, field := range []struct {
		raw string
		dst *time.Time
	}{
		{req.ToSleepTime, &in.ToSleepTime},
		{req.ToWakeUpTime, &in.ToWakeUpTime},
		{req.StartDate, &in.StartDate},
	} {
		if *field.dst, err = parseISO(field.raw); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
	}

	group, err := h.svc.Groups.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err, "failed to create group")
		return
	}

	h.log.Info().Str("group_id", group.ID).Str("owner", group.OwnerUsername).Int("members", len(group.Members)).Msg("group created")
	c.JSON(http.StatusCreated, groupResponse(group))
}

// MyGroup returns the caller's group.
// POST /my-group
func (h *APIHandlers) MyGroup(c *gin.Context) {
	username, ok := h.bindUsername(c)
	if !ok {
		return
	}

	group, err := h.svc.Groups.ForUser(c.Request.Context(), username)
	if err != nil {
		h.fail(c, err, "failed to load group")
		return
	}
	if group == nil {
		c.JSON(http.StatusOK, NoGroupResponse{Message: fmt.Sprintf("%s is not in a group", username), InGroup: false})
		return
	}
	c.JSON(http.StatusOK, groupResponse(group))
}
