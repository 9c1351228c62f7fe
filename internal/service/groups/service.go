package groups

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/snuz/internal/service/sleep"
	"github.com/vovakirdan/snuz/internal/store"
)

// Common errors for group operations.
var (
	ErrInvalidDuration = errors.New("duration must be at least 1 day")
	ErrStartInPast     = errors.New("start date must not be in the past")
	ErrSleepInPast     = errors.New("cannot schedule a sleeping time in the past")
)

// CreateInput describes a new sleep group. Only the clock part of the sleep
// and wake times is kept; the schedule starts on StartDate.
type CreateInput struct {
	Owner        string
	Members      []string
	ToSleepTime  time.Time
	ToWakeUpTime time.Time
	DurationDays int
	StartDate    time.Time
}

// Service provides group management business logic.
type Service struct {
	store store.Store
	now   func() time.Time
}

// New creates a new group service. A nil now uses time.Now.
func New(st store.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: st, now: now}
}

// Create validates and stores a new group. The owner is always a member.
func (s *Service) Create(ctx context.Context, in CreateInput) (*store.Group, error) {
	owner, err := s.store.GetUser(ctx, in.Owner)
	if err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	if owner.InGroup() {
		return nil, fmt.Errorf("owner %s: %w", in.Owner, store.ErrAlreadyInGroup)
	}

	members := make([]string, 0, len(in.Members)+1)
	seen := make(map[string]struct{}, len(in.Members)+1)
	for _, name := range append(append([]string(nil), in.Members...), in.Owner) {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		u, err := s.store.GetUser(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("member: %w", err)
		}
		if u.InGroup() {
			return nil, fmt.Errorf("%s: %w", name, store.ErrAlreadyInGroup)
		}
		members = append(members, name)
	}

	if in.DurationDays < 1 {
		return nil, ErrInvalidDuration
	}

	now := s.now().UTC()
	startDate := dateOf(in.StartDate)
	if startDate.Before(dateOf(now)) {
		return nil, ErrStartInPast
	}
	if in.ToSleepTime.Before(now) {
		return nil, ErrSleepInPast
	}

	sleepGoal, wakeGoal := sleep.Goals(startDate, in.ToSleepTime, in.ToWakeUpTime)
	g := &store.Group{
		ID:            uuid.NewString(),
		OwnerUsername: in.Owner,
		ToSleepTime:   sleepGoal,
		ToWakeUpTime:  wakeGoal,
		DurationDays:  in.DurationDays,
		DaysRemaining: in.DurationDays,
		StartDate:     startDate,
		Members:       members,
	}
	if err := s.store.CreateGroup(ctx, g); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return s.store.GetGroup(ctx, g.ID)
}

// ForUser returns the group username belongs to, or nil when it has none.
func (s *Service) ForUser(ctx context.Context, username string) (*store.Group, error) {
	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if !user.InGroup() {
		return nil, nil
	}
	return s.store.GetGroup(ctx, *user.GroupID)
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
