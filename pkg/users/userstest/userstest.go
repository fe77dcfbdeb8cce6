// Package userstest holds behavioural tests shared by every users.Store backend.
package userstest

import (
	"context"
	"testing"
	"time"

	"github.com/harun/notemate/pkg/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// RunStoreTests exercises a users.Store implementation.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) users.Store) {
	ctx := context.Background()

	t.Run("should create and look up users", func(t *testing.T) {
		store := newStore(t)

		u := &users.User{Name: "Ada", Email: " Ada@Example.com ", PasswordHash: "hash"}
		require.NoError(t, store.Create(ctx, u))
		assert.NotEmpty(t, u.ID)
		assert.Equal(t, "ada@example.com", u.Email)

		byID, err := store.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada", byID.Name)
		assert.Equal(t, "hash", byID.PasswordHash)

		byEmail, err := store.GetByEmail(ctx, "ADA@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)
	})

	t.Run("should reject duplicate emails", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Create(ctx, &users.User{Name: "A", Email: "a@example.com"}))
		err := store.Create(ctx, &users.User{Name: "B", Email: "A@example.com"})
		assert.ErrorIs(t, err, users.ErrEmailTaken)
	})

	t.Run("should report missing users", func(t *testing.T) {
		store := newStore(t)

		_, err := store.GetByID(ctx, "nope")
		assert.ErrorIs(t, err, users.ErrNotFound)
		_, err = store.GetByEmail(ctx, "nope@example.com")
		assert.ErrorIs(t, err, users.ErrNotFound)
		assert.ErrorIs(t, store.SaveGoogleToken(ctx, "nope", "g", &oauth2.Token{AccessToken: "x"}), users.ErrNotFound)
	})

	t.Run("should store google tokens and keep refresh token on re-consent", func(t *testing.T) {
		store := newStore(t)

		u := &users.User{Name: "G", Email: "g@example.com"}
		require.NoError(t, store.Create(ctx, u))

		expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		require.NoError(t, store.SaveGoogleToken(ctx, u.ID, "google-123", &oauth2.Token{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			TokenType:    "Bearer",
			Expiry:       expiry,
		}))

		got, err := store.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, got.GoogleLinked())
		assert.Equal(t, "google-123", got.GoogleID)
		assert.Equal(t, "refresh-1", got.GoogleToken.RefreshToken)
		assert.True(t, expiry.Equal(got.GoogleToken.Expiry))

		require.NoError(t, store.SaveGoogleToken(ctx, u.ID, "google-123", &oauth2.Token{AccessToken: "access-2"}))

		got, err = store.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "access-2", got.GoogleToken.AccessToken)
		assert.Equal(t, "refresh-1", got.GoogleToken.RefreshToken)
	})
}
