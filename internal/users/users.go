// Package users is the user directory: who receives a morning notification,
// where they are, and which device token to push to.
//
// Two stores implement Store. PostgresStore keeps users in a table;
// FileStore keeps the legacy single-document JSON format on local disk or
// in a GCS bucket.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already exists")
	ErrInvalidUser   = errors.New("invalid user")
)

// User is one directory entry.
type User struct {
	ID        int64     `json:"user_id"`
	Username  string    `json:"username"`
	Location  string    `json:"location"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// Eligible reports whether the user can receive a notification at all:
// a device token and a non-blank location.
func (u User) Eligible() bool {
	return strings.TrimSpace(u.Token) != "" && strings.TrimSpace(u.Location) != ""
}

// Directory is the read side used by the notification pipeline.
type Directory interface {
	ListUsers(ctx context.Context) ([]User, error)
}

// Store is the full directory used by the API and CLI.
type Store interface {
	Directory
	GetByUsername(ctx context.Context, username string) (User, error)
	CreateUser(ctx context.Context, username, location string) (User, error)
	SetToken(ctx context.Context, id int64, token string) error
	ClearToken(ctx context.Context, id int64) error
	UpdateLocation(ctx context.Context, id int64, location string) error
}

// ValidateNew checks the fields required to create a user.
func ValidateNew(username, location string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("username is required: %w", ErrInvalidUser)
	}
	if strings.TrimSpace(location) == "" {
		return fmt.Errorf("location is required: %w", ErrInvalidUser)
	}
	return nil
}
