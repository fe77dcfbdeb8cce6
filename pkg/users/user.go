// Package users defines user accounts and their storage contract.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned by Create when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
)

// User is an account. PasswordHash is empty for accounts created through Google sign-in.
type User struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"`
	GoogleID     string        `json:"googleId,omitempty"`
	GoogleToken  *oauth2.Token `json:"-"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// GoogleLinked reports whether the user has stored Google credentials.
func (u *User) GoogleLinked() bool {
	return u.GoogleToken != nil && (u.GoogleToken.AccessToken != "" || u.GoogleToken.RefreshToken != "")
}

// Store persists users.
type Store interface {
	// Create assigns an ID and timestamps and stores u.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// SaveGoogleToken links a Google account and stores its OAuth token.
	SaveGoogleToken(ctx context.Context, id, googleID string, token *oauth2.Token) error
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
