package groupstore

import (
	"fmt"
	"time"
)

// User is the durable per-user record as served by the REST API.
type User struct {
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

// InGroup reports whether the user belongs to a sleep group.
func (u User) InGroup() bool {
	return u.GroupID != nil && *u.GroupID != ""
}

// Group is a sleep group with its schedule. Times are wall clock "HH:MM:SS",
// the start date is "YYYY-MM-DD".
type Group struct {
	GroupID       string   `json:"group_id"`
	OwnerUsername string   `json:"owner_username"`
	Members       []string `json:"group_members"`
	ToSleepTime   string   `json:"to_sleep_time"`
	ToWakeUpTime  string   `json:"to_wake_up_time"`
	DurationDays  int      `json:"duration_days"`
	DaysRemaining int      `json:"days_remaining"`
	StartDate     string   `json:"start_date"`
}

// Membership is the answer to "which group am I in". Group is nil when the
// user is not in one.
type Membership struct {
	InGroup bool
	Group   *Group
}

// CreateGroupRequest is the body of POST /create-group.
type CreateGroupRequest struct {
	OwnerUsername string    `json:"owner_username"`
	Members       []string  `json:"group_members"`
	ToSleepTime   time.Time `json:"to_sleep_time"`
	ToWakeUpTime  time.Time `json:"to_wake_up_time"`
	DurationDays  int       `json:"duration_days"`
	StartDate     time.Time `json:"start_date"`
}

// MutationResult is returned by the sleep, awake and snooze endpoints.
type MutationResult struct {
	Message              string `json:"message"`
	CurrentSnoozeCounter int    `json:"current_snooze_counter"`
}

// APIError is a non-2xx answer from the REST API.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("groupstore: status %d", e.Status)
	}
	return fmt.Sprintf("groupstore: status %d: %s", e.Status, e.Detail)
}
