package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harun/notemate/pkg/users"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/oauth2"
)

// UserStore implements users.Store.
type UserStore struct {
	db *sql.DB
}

var _ users.Store = (*UserStore)(nil)

const userColumns = "id, name, email, password_hash, google_id, google_token, created_at, updated_at"

func (s *UserStore) Create(ctx context.Context, u *users.User) error {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to generate user id: %w", err)
	}

	token, err := encodeToken(u.GoogleToken)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	email := users.NormalizeEmail(u.Email)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, u.Name, email, u.PasswordHash, u.GoogleID, token, toMillis(now), toMillis(now),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return users.ErrEmailTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	u.ID = id
	u.Email = email
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*users.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return s.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, users.NormalizeEmail(email))
}

func (s *UserStore) SaveGoogleToken(ctx context.Context, id, googleID string, token *oauth2.Token) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var stored string
	err = tx.QueryRowContext(ctx, `SELECT google_token FROM users WHERE id = ?`, id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return users.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	if token != nil && token.RefreshToken == "" {
		if prev, err := decodeToken(stored); err == nil && prev != nil {
			tok := *token
			tok.RefreshToken = prev.RefreshToken
			token = &tok
		}
	}

	encoded, err := encodeToken(token)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET google_id = ?, google_token = ?, updated_at = ? WHERE id = ?`,
		googleID, encoded, toMillis(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to save google token: %w", err)
	}
	return tx.Commit()
}

func (s *UserStore) getOne(ctx context.Context, query string, arg interface{}) (*users.User, error) {
	var (
		u                users.User
		token            string
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.GoogleID, &token, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, users.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	u.GoogleToken, err = decodeToken(token)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return &u, nil
}

func encodeToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", nil
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return "", fmt.Errorf("failed to encode oauth token: %w", err)
	}
	return string(data), nil
}

func decodeToken(s string) (*oauth2.Token, error) {
	if s == "" {
		return nil, nil
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(s), &tok); err != nil {
		return nil, fmt.Errorf("failed to decode oauth token: %w", err)
	}
	return &tok, nil
}
