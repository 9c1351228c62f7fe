// Package session ties a logged-in identity to the presence channel and the
// REST mutations that announce sleep changes to the group.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/snuz/internal/groupstore"
	"github.com/vovakirdan/snuz/internal/proto"
)

// ErrNotLoggedIn is returned by mutations without an identity.
var ErrNotLoggedIn = errors.New("not logged in")

// Presence is the part of the connection manager a session drives.
type Presence interface {
	Connect(identity string)
	Disconnect()
	Send(msg proto.PresenceMessage) error
}

// Store is the Group State Store as seen by a session.
type Store interface {
	CreateUser(ctx context.Context, username string) error
	Login(ctx context.Context, username string) error
	AllUsers(ctx context.Context) ([]groupstore.User, error)
	ToSleep(ctx context.Context, username string) (groupstore.MutationResult, error)
	ToAwake(ctx context.Context, username string) (groupstore.MutationResult, error)
	ToSnooze(ctx context.Context, username string) (groupstore.MutationResult, error)
	MyGroup(ctx context.Context, username string) (groupstore.Membership, error)
}

// Session is one client's login state.
type Session struct {
	store    Store
	presence Presence
	log      *zerolog.Logger

	mu       sync.RWMutex
	identity string
	users    []groupstore.User
	group    groupstore.Membership
}

// New builds a logged-out session.
func New(store Store, presence Presence, logger *zerolog.Logger) *Session {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Session{store: store, presence: presence, log: logger}
}

// Login signs in as username, creating the account on first use, and opens
// the presence channel for it.
func (s *Session) Login(ctx context.Context, username string) error {
	if username == "" {
		return errors.New("username is required")
	}
	if err := s.store.Login(ctx, username); err != nil {
		s.log.Info().Err(err).Str("username", username).Msg("login failed, creating user")
		if err := s.store.CreateUser(ctx, username); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		if err := s.store.Login(ctx, username); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	s.mu.Lock()
	s.identity = username
	s.mu.Unlock()

	s.presence.Connect(username)
	s.log.Info().Str("username", username).Msg("logged in")

	if err := s.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("refresh after login")
	}
	return nil
}

// Logout clears the identity and closes the presence channel.
func (s *Session) Logout() {
	s.mu.Lock()
	s.identity = ""
	s.users = nil
	s.group = groupstore.Membership{}
	s.mu.Unlock()

	s.presence.Disconnect()
}

// Identity returns the logged-in username or "".
func (s *Session) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// ToSleep records that the user went to sleep and tells the group.
func (s *Session) ToSleep(ctx context.Context) error {
	return s.setAsleep(ctx, true)
}

// ToAwake records that the user woke up and tells the group.
func (s *Session) ToAwake(ctx context.Context) error {
	return s.setAsleep(ctx, false)
}

func (s *Session) setAsleep(ctx context.Context, asleep bool) error {
	username := s.Identity()
	if username == "" {
		return ErrNotLoggedIn
	}

	mutate := s.store.ToAwake
	if asleep {
		mutate = s.store.ToSleep
	}
	if _, err := mutate(ctx, username); err != nil {
		return fmt.Errorf("update sleep status: %w", err)
	}

	msg, err := proto.NewSleepStatus(username, asleep)
	if err != nil {
		return err
	}
	s.send(msg)
	s.refreshQuietly(ctx)
	return nil
}

// ToSnooze records a snooze and tells the group.
func (s *Session) ToSnooze(ctx context.Context) error {
	username := s.Identity()
	if username == "" {
		return ErrNotLoggedIn
	}

	res, err := s.store.ToSnooze(ctx, username)
	if err != nil {
		return fmt.Errorf("snooze: %w", err)
	}

	msg, err := proto.NewSnooze(username, res.CurrentSnoozeCounter)
	if err != nil {
		return err
	}
	s.send(msg)
	s.refreshQuietly(ctx)
	return nil
}

// Refresh reloads the user list and the caller's group.
func (s *Session) Refresh(ctx context.Context) error {
	username := s.Identity()

	users, err := s.store.AllUsers(ctx)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}

	var group groupstore.Membership
	if username != "" {
		group, err = s.store.MyGroup(ctx, username)
		if err != nil {
			return fmt.Errorf("load group: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity != username {
		// Identity changed while loading.
		return nil
	}
	s.users = users
	s.group = group
	return nil
}

// Users returns the cached user list.
func (s *Session) Users() []groupstore.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]groupstore.User(nil), s.users...)
}

// Group returns the cached group membership.
func (s *Session) Group() groupstore.Membership {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.group
}

func (s *Session) send(msg proto.PresenceMessage) {
	if err := s.presence.Send(msg); err != nil {
		s.log.Error().Err(err).Str("operation", msg.Operation).Msg("send presence message")
	}
}

func (s *Session) refreshQuietly(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("refresh users")
	}
}
