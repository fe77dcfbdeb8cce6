package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harun/notemate/pkg/notes"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NoteStore implements notes.Store.
type NoteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ notes.Store = (*NoteStore)(nil)

const noteColumns = "id, owner_id, content, status, created_at, updated_at"

func (s *NoteStore) Create(ctx context.Context, ownerID, content string, status notes.Status) (*notes.Note, error) {
	content, err := notes.NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	if status == "" {
		status = notes.StatusActive
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate note id: %w", err)
	}

	// Millisecond precision so the returned note matches what a later read sees.
	now := s.now().UTC().Truncate(time.Millisecond)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		id, ownerID, content, string(status), toMillis(now), toMillis(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert note: %w", err)
	}

	return &notes.Note{
		ID:        id,
		OwnerID:   ownerID,
		Content:   content,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *NoteStore) ListByOwner(ctx context.Context, ownerID string) ([]*notes.Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE owner_id = ? ORDER BY created_at, rowid`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	out := []*notes.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *NoteStore) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to delete note: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *NoteStore) UpdateStatus(ctx context.Context, id, ownerID string, status notes.Status) (*notes.Note, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notes SET status = ?, updated_at = ? WHERE id = ? AND owner_id = ?`,
		string(status), toMillis(s.now()), id, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update note: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, notes.ErrNotFound
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = ? AND owner_id = ?`, id, ownerID)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notes.ErrNotFound
	}
	return n, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNote(row scanner) (*notes.Note, error) {
	var (
		n                notes.Note
		status           string
		created, updated int64
	)
	if err := row.Scan(&n.ID, &n.OwnerID, &n.Content, &status, &created, &updated); err != nil {
		return nil, err
	}
	n.Status = notes.Status(status)
	n.CreatedAt = fromMillis(created)
	n.UpdatedAt = fromMillis(updated)
	return &n, nil
}
