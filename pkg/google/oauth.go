// Package google connects notemate to a user's Google account: the OAuth
// consent flow, the primary Google Calendar as a calendar.Store, and a
// read-only view of recent Gmail messages.
package google

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// Scopes requested during consent.
var Scopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/calendar.readonly",
	"https://www.googleapis.com/auth/calendar.events",
	"https://www.googleapis.com/auth/gmail.readonly",
}

// ErrNotConfigured is returned when OAuth client credentials are missing.
var ErrNotConfigured = errors.New("google oauth is not configured")

// Config holds OAuth client credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether client credentials are present.
func (c Config) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// UserInfo is the Google profile of the signed-in account.
type UserInfo struct {
	ID    string
	Email string
	Name  string
}

// Client wraps the OAuth configuration and builds API services from tokens.
type Client struct {
	oauth   *oauth2.Config
	apiOpts []option.ClientOption
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIOptions appends options passed to every Google API service the
// client builds, e.g. option.WithEndpoint for tests.
func WithAPIOptions(opts ...option.ClientOption) ClientOption {
	return func(c *Client) { c.apiOpts = append(c.apiOpts, opts...) }
}

// WithEndpoint overrides the OAuth endpoint.
func WithEndpoint(ep oauth2.Endpoint) ClientOption {
	return func(c *Client) { c.oauth.Endpoint = ep }
}

// NewClient creates a Client.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint:     googleoauth.Endpoint,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AuthURL returns the consent URL. Offline access and a forced consent
// prompt make Google return a refresh token every time.
func (c *Client) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("authorization code is required")
	}
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}
	return tok, nil
}

// UserInfo reads the profile of the account tok belongs to.
func (c *Client) UserInfo(ctx context.Context, tok *oauth2.Token) (*UserInfo, error) {
	svc, err := oauth2api.NewService(ctx, c.serviceOptions(c.oauth.TokenSource(ctx, tok))...)
	if err != nil {
		return nil, fmt.Errorf("creating userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetching userinfo: %w", err)
	}
	return &UserInfo{ID: info.Id, Email: info.Email, Name: info.Name}, nil
}

func (c *Client) serviceOptions(ts oauth2.TokenSource) []option.ClientOption {
	opts := []option.ClientOption{option.WithTokenSource(ts)}
	return append(opts, c.apiOpts...)
}
