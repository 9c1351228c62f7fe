package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a user or group does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a user whose name is taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrAlreadyInGroup is returned when a group member already belongs to a group.
	ErrAlreadyInGroup = errors.New("already in a group")
)

// DefaultScore is the score of a new user and the upper bound of every score.
const DefaultScore = 100

// User is a sleeper.
type User struct {
	Username             string
	OwnsAGroup           bool
	Score                int
	AverageMinutesSlept  *int
	IsAsleep             bool
	LastSleepTime        *time.Time
	LastAwakeTime        *time.Time
	CurrentSnoozeCounter int
	GroupID              *string // nil when not in a group
	CreatedAt            time.Time
}

// InGroup reports whether the user belongs to a group.
func (u *User) InGroup() bool {
	return u.GroupID != nil
}

// Group is a sleep group ("squad") following a shared schedule.
type Group struct {
	ID            string // UUID
	OwnerUsername string
	ToSleepTime   time.Time // next sleep goal
	ToWakeUpTime  time.Time // next wake goal
	DurationDays  int
	DaysRemaining int
	StartDate     time.Time // date only, UTC midnight
	Members       []string
	CreatedAt     time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser inserts a user with default score. Returns ErrAlreadyExists
	// if the name is taken.
	CreateUser(ctx context.Context, username string) (*User, error)

	// GetUser retrieves a user with its group membership.
	GetUser(ctx context.Context, username string) (*User, error)

	// ListUsers lists all users ordered by username.
	ListUsers(ctx context.Context) ([]*User, error)

	// UpdateUserSleep persists the sleep related fields of u.
	UpdateUserSleep(ctx context.Context, u *User) error
}

// GroupStore handles sleep group persistence.
type GroupStore interface {
	// CreateGroup inserts g and its members in one transaction. g.ID must be set.
	// Returns ErrAlreadyInGroup if any member already belongs to a group.
	CreateGroup(ctx context.Context, g *Group) error

	// GetGroup retrieves a group with its members.
	GetGroup(ctx context.Context, id string) (*Group, error)

	// UpdateGroupSchedule persists the goals and the remaining day count.
	UpdateGroupSchedule(ctx context.Context, g *Group) error

	// DeleteGroup removes a group and releases its members.
	DeleteGroup(ctx context.Context, id string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	GroupStore

	// Close closes the underlying database connection.
	Close() error
}
