package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ToSleep marks a user as asleep.
// POST /to-sleep
func (h *APIHandlers) ToSleep(c *gin.Context) {
	username, ok := h.bindUsername(c)
	if !ok {
		return
	}

	user, err := h.svc.Sleep.ToSleep(c.Request.Context(), username)
	if err != nil {
		h.fail(c, err, "failed to mark user as sleeping")
		return
	}
	c.JSON(http.StatusOK, MutationResponse{
		Message:              fmt.Sprintf("%s went to sleep", username),
		Score:                user.Score,
		CurrentSnoozeCounter: user.CurrentSnoozeCounter,
	})
}

// ToAwake marks a user as awake and settles the score.
// POST /to-awake
func (h *APIHandlers) ToAwake(c *gin.Context) {
	username, ok := h.bindUsername(c)
	if !ok {
		return
	}

	res, err := h.svc.Sleep.ToAwake(c.Request.Context(), username)
	if err != nil {
		h.fail(c, err, "failed to mark user as awake")
		return
	}
	c.JSON(http.StatusOK, MutationResponse{
		Message:              fmt.Sprintf("%s woke up after %d minutes", username, res.MinutesSlept),
		Score:                res.User.Score,
		CurrentSnoozeCounter: res.User.CurrentSnoozeCounter,
		GroupAdvanced:        res.GroupAdvanced,
		GroupDissolved:       res.GroupDissolved,
	})
}

// ToSnooze increments the snooze counter.
// POST /to-snooze
func (h *APIHandlers) ToSnooze(c *gin.Context) {
	username, ok := h.bindUsername(c)
	if !ok {
		return
	}

	user, err := h.svc.Sleep.ToSnooze(c.Request.Context(), username)
	if err != nil {
		h.fail(c, err, "failed to increment snooze counter")
		return
	}
	c.JSON(http.StatusOK, MutationResponse{
		Message:              fmt.Sprintf("%s hit snooze", username),
		Score:                user.Score,
		CurrentSnoozeCounter: user.CurrentSnoozeCounter,
	})
}
