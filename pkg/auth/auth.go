// Package auth issues and verifies credentials: bcrypt password hashes,
// HS256 session tokens carrying a userId claim, and short-lived signed
// state values for linking a Google account.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/harun/notemate/pkg/toolexecutor"
	"github.com/harun/notemate/pkg/users"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("Invalid credentials")
	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("invalid token")
)

const (
	minPasswordLength = 6
	linkStateTTL      = 10 * time.Minute
	linkPurpose       = "google-link"
)

// ValidationError reports bad registration input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Claims are the JWT claims of a session token.
type Claims struct {
	UserID  string `json:"userId"`
	Email   string `json:"email,omitempty"`
	Purpose string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// Service issues and checks credentials against a user store.
type Service struct {
	users      users.Store
	secret     []byte
	ttl        time.Duration
	bcryptCost int
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost overrides the bcrypt cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service. ttl <= 0 issues tokens without expiry.
func NewService(store users.Store, secret string, ttl time.Duration, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	s := &Service{
		users:      store,
		secret:     []byte(secret),
		ttl:        ttl,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates a password account and returns it with a session token.
func (s *Service) Register(ctx context.Context, name, email, password string) (*users.User, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", &ValidationError{Field: "name", Message: "name is required"}
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(email)); err != nil {
		return nil, "", &ValidationError{Field: "email", Message: "a valid email is required"}
	}
	if len(password) < minPasswordLength {
		return nil, "", &ValidationError{Field: "password", Message: fmt.Sprintf("password must be at least %d characters", minPasswordLength)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	u := &users.User{Name: name, Email: email, PasswordHash: string(hash)}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, "", err
	}

	token, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Login checks a password and returns the user with a session token.
func (s *Service) Login(ctx context.Context, email, password string) (*users.User, string, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if u.PasswordHash == "" {
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Profile loads the user a principal refers to.
func (s *Service) Profile(ctx context.Context, p toolexecutor.Principal) (*users.User, error) {
	return s.users.GetByID(ctx, p.ID)
}

// IssueToken signs a session token for u.
func (s *Service) IssueToken(u *users.User) (string, error) {
	return s.sign(Claims{UserID: u.ID, Email: u.Email}, s.ttl)
}

// Authenticate verifies a bearer token and resolves the principal it names.
func (s *Service) Authenticate(token string) (toolexecutor.Principal, error) {
	claims, err := s.verify(token)
	if err != nil {
		return toolexecutor.Principal{}, err
	}
	if claims.Purpose != "" {
		return toolexecutor.Principal{}, ErrInvalidToken
	}
	return toolexecutor.Principal{ID: claims.UserID, Email: claims.Email}, nil
}

// IssueLinkState returns an OAuth state value binding a Google sign-in to userID.
func (s *Service) IssueLinkState(userID string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate state nonce: %w", err)
	}
	claims := Claims{UserID: userID, Purpose: linkPurpose}
	claims.ID = hex.EncodeToString(nonce)
	return s.sign(claims, linkStateTTL)
}

// VerifyLinkState returns the user ID bound into a state value.
func (s *Service) VerifyLinkState(state string) (string, error) {
	claims, err := s.verify(state)
	if err != nil {
		return "", err
	}
	if claims.Purpose != linkPurpose {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

func (s *Service) sign(claims Claims, ttl time.Duration) (string, error) {
	now := s.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) verify(token string) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
