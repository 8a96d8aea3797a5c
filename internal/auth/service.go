// Package auth handles password hashing, access tokens and the account
// operations built on them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/battlebrief/bulwark/internal/logger"
	"github.com/battlebrief/bulwark/internal/store"
)

var (
	// ErrUnauthorized covers every token failure so callers cannot tell them apart.
	ErrUnauthorized       = errors.New("could not validate credentials")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrWrongPassword      = errors.New("current password is incorrect")
)

type UserStore interface {
	CreateUser(ctx context.Context, username string, fullName *string, email, hashedPassword string) (*store.User, error)
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
	UpdateUserProfile(ctx context.Context, id int64, username string, fullName *string, email string) (*store.User, error)
	UpdateUserPassword(ctx context.Context, id int64, hashedPassword string) error
}

type Service struct {
	users  UserStore
	tokens *TokenIssuer
	log    *logger.Logger
}

func NewService(users UserStore, tokens *TokenIssuer, log *logger.Logger) *Service {
	return &Service{users: users, tokens: tokens, log: log.With("component", "AuthService")}
}

type SignupInput struct {
	Username string
	FullName *string
	Email    string
	Password string
}

// Signup returns store.ErrUserExists when the username is taken.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*store.User, error) {
	hashed, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user, err := s.users.CreateUser(ctx, strings.TrimSpace(in.Username), in.FullName, in.Email, hashed)
	if err != nil {
		return nil, err
	}
	s.log.Info("User created", "username", user.Username)
	return user, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if user.Disabled || !CheckPasswordHash(password, user.HashedPassword) {
		return "", ErrInvalidCredentials
	}
	return s.tokens.Issue(user.Username)
}

// Authenticate resolves a bearer token to an active user.
func (s *Service) Authenticate(ctx context.Context, token string) (*store.User, error) {
	username, err := s.tokens.Parse(token)
	if err != nil {
		s.log.Debug("Token rejected", "error", err)
		return nil, ErrUnauthorized
	}
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Error("Failed to load token subject", "username", username, "error", err)
		}
		return nil, ErrUnauthorized
	}
	if user.Disabled {
		return nil, ErrUnauthorized
	}
	return user, nil
}

type ProfileUpdate struct {
	Username        string
	FullName        *string
	Email           string
	CurrentPassword string
}

// UpdateProfile re-verifies the current password, stores the new profile and
// issues a token for the possibly renamed user.
func (s *Service) UpdateProfile(ctx context.Context, user *store.User, in ProfileUpdate) (*store.User, string, error) {
	if !CheckPasswordHash(in.CurrentPassword, user.HashedPassword) {
		return nil, "", ErrWrongPassword
	}
	updated, err := s.users.UpdateUserProfile(ctx, user.ID, strings.TrimSpace(in.Username), in.FullName, in.Email)
	if err != nil {
		return nil, "", err
	}
	token, err := s.tokens.Issue(updated.Username)
	if err != nil {
		return nil, "", err
	}
	if updated.Username != user.Username {
		s.log.Info("User renamed", "from", user.Username, "to", updated.Username)
	}
	return updated, token, nil
}

func (s *Service) ChangePassword(ctx context.Context, user *store.User, current, next string) error {
	if !CheckPasswordHash(current, user.HashedPassword) {
		return ErrWrongPassword
	}
	hashed, err := HashPassword(next)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdateUserPassword(ctx, user.ID, hashed); err != nil {
		return err
	}
	s.log.Info("Password changed", "username", user.Username)
	return nil
}
