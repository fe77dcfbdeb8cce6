package google

import (
	"context"
	"sync"

	"github.com/harun/notemate/pkg/calendar"
	"github.com/harun/notemate/pkg/users"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// userTokenSource hands out the stored token of one user and writes back
// any refreshed token so the next request starts from it.
type userTokenSource struct {
	ctx      context.Context
	base     oauth2.TokenSource
	store    users.Store
	userID   string
	googleID string
	logger   zerolog.Logger

	mu     sync.Mutex
	access string
}

func (s *userTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	changed := tok.AccessToken != s.access
	s.access = tok.AccessToken
	s.mu.Unlock()

	if changed {
		if err := s.store.SaveGoogleToken(s.ctx, s.userID, s.googleID, tok); err != nil {
			s.logger.Warn().Err(err).Str("user_id", s.userID).Msg("Failed to persist refreshed google token")
		}
	}
	return tok, nil
}

// tokenSourceFor loads the user's stored token. Users without one get
// calendar.ErrNotLinked.
func (c *Client) tokenSourceFor(ctx context.Context, store users.Store, userID string, logger zerolog.Logger) (oauth2.TokenSource, error) {
	u, err := store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.GoogleLinked() {
		return nil, calendar.ErrNotLinked
	}

	return &userTokenSource{
		ctx:      ctx,
		base:     c.oauth.TokenSource(ctx, u.GoogleToken),
		store:    store,
		userID:   u.ID,
		googleID: u.GoogleID,
		logger:   logger,
		access:   u.GoogleToken.AccessToken,
	}, nil
}
