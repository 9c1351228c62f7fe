package users

import (
	"context"
	"errors"
	"fmt"
	"unicode"

	"github.com/vovakirdan/snuz/internal/store"
)

// ErrInvalidUsername is returned for empty or non alphanumeric usernames.
var ErrInvalidUsername = errors.New("username can only contain letters and numbers")

// Service provides user registration and lookup.
type Service struct {
	store store.UserStore
}

// New creates a new user service.
func New(st store.UserStore) *Service {
	return &Service{store: st}
}

// ValidUsername reports whether name is a non-empty run of letters and digits.
func ValidUsername(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Create registers a new user.
func (s *Service) Create(ctx context.Context, username string) (*store.User, error) {
	if !ValidUsername(username) {
		return nil, ErrInvalidUsername
	}
	user, err := s.store.CreateUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login checks that the user exists. Identity is the bare username.
func (s *Service) Login(ctx context.Context, username string) (*store.User, error) {
	return s.Get(ctx, username)
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, username string) (*store.User, error) {
	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]*store.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
