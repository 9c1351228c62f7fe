// Package sleep implements the sleep, wake and snooze mutations and the
// group's day-by-day schedule.
package sleep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/snuz/internal/store"
)

// Common errors for sleep operations.
var (
	ErrNotInGroup    = errors.New("not in a group")
	ErrAlreadyAsleep = errors.New("already asleep")
	ErrNotAsleep     = errors.New("not asleep yet")
)

// Service provides sleep tracking business logic.
type Service struct {
	store store.Store
	now   func() time.Time
	log   *zerolog.Logger

	// dissolved is called after a group finished its last day.
	dissolved func(groupID string)

	// mu serializes mutations so that the "everyone is awake" check and the
	// day advance happen once per group day.
	mu sync.Mutex
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDissolveHook registers fn to run after a group is dissolved.
func WithDissolveHook(fn func(groupID string)) Option {
	return func(s *Service) { s.dissolved = fn }
}

// New creates a new sleep service.
func New(st store.Store, logger *zerolog.Logger, opts ...Option) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Service{store: st, now: time.Now, log: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WakeResult describes what a wake-up changed.
type WakeResult struct {
	User           *store.User
	MinutesSlept   int
	GroupAdvanced  bool
	GroupDissolved bool
}

// ToSleep marks the user as asleep now and resets the snooze counter.
func (s *Service) ToSleep(ctx context.Context, username string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if !user.InGroup() {
		return nil, fmt.Errorf("%s: %w", username, ErrNotInGroup)
	}
	if user.IsAsleep {
		return nil, fmt.Errorf("%s: %w", username, ErrAlreadyAsleep)
	}

	now := s.now().UTC()
	user.IsAsleep = true
	user.LastSleepTime = &now
	user.LastAwakeTime = nil
	user.CurrentSnoozeCounter = 0

	if err := s.store.UpdateUserSleep(ctx, user); err != nil {
		return nil, fmt.Errorf("mark asleep: %w", err)
	}
	s.log.Info().Str("username", username).Time("at", now).Msg("user went to sleep")
	return user, nil
}

// ToAwake marks the user as awake, settles the night's score and, once every
// member of the group is awake, moves the group to its next day.
func (s *Service) ToAwake(ctx context.Context, username string) (*WakeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if !user.InGroup() {
		return nil, fmt.Errorf("%s: %w", username, ErrNotInGroup)
	}
	if !user.IsAsleep || user.LastSleepTime == nil {
		return nil, fmt.Errorf("%s: %w", username, ErrNotAsleep)
	}

	group, err := s.store.GetGroup(ctx, *user.GroupID)
	if err != nil {
		return nil, fmt.Errorf("load group: %w", err)
	}

	now := s.now().UTC()
	res := Score(ScoreInput{
		Score:               user.Score,
		AverageMinutesSlept: user.AverageMinutesSlept,
		Snoozes:             user.CurrentSnoozeCounter,
		SleptAt:             *user.LastSleepTime,
		AwokeAt:             now,
		SleepGoal:           group.ToSleepTime,
		WakeGoal:            group.ToWakeUpTime,
	})

	user.IsAsleep = false
	user.LastAwakeTime = &now
	user.Score = res.Score
	user.AverageMinutesSlept = &res.AverageMinutesSlept
	user.CurrentSnoozeCounter = 0
	if err := s.store.UpdateUserSleep(ctx, user); err != nil {
		return nil, fmt.Errorf("mark awake: %w", err)
	}
	s.log.Info().
		Str("username", username).
		Int("minutes_slept", res.MinutesSlept).
		Int("score", res.Score).
		Msg("user woke up")

	out := &WakeResult{User: user, MinutesSlept: res.MinutesSlept}

	allAwake, err := s.everyoneAwake(ctx, group)
	if err != nil {
		return nil, err
	}
	if !allAwake {
		return out, nil
	}

	if Advance(group) {
		if err := s.store.UpdateGroupSchedule(ctx, group); err != nil {
			return nil, fmt.Errorf("advance group: %w", err)
		}
		out.GroupAdvanced = true
		s.log.Info().Str("group_id", group.ID).Int("days_remaining", group.DaysRemaining).Msg("group day advanced")
		return out, nil
	}

	if err := s.store.DeleteGroup(ctx, group.ID); err != nil {
		return nil, fmt.Errorf("dissolve group: %w", err)
	}
	out.GroupDissolved = true
	user.GroupID = nil
	s.log.Info().Str("group_id", group.ID).Msg("group finished its last day")
	if s.dissolved != nil {
		s.dissolved(group.ID)
	}
	return out, nil
}

// ToSnooze increments the snooze counter of a sleeping user.
func (s *Service) ToSnooze(ctx context.Context, username string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if !user.IsAsleep {
		return nil, fmt.Errorf("%s: %w", username, ErrNotAsleep)
	}

	user.CurrentSnoozeCounter++
	if err := s.store.UpdateUserSleep(ctx, user); err != nil {
		return nil, fmt.Errorf("increment snooze counter: %w", err)
	}
	s.log.Info().Str("username", username).Int("snoozes", user.CurrentSnoozeCounter).Msg("user hit snooze")
	return user, nil
}

func (s *Service) everyoneAwake(ctx context.Context, group *store.Group) (bool, error) {
	for _, member := range group.Members {
		u, err := s.store.GetUser(ctx, member)
		if err != nil {
			return false, fmt.Errorf("load member: %w", err)
		}
		if u.IsAsleep {
			return false, nil
		}
	}
	return true, nil
}
