// Package notes defines the note model and the storage contract every note
// backend implements. All store operations are scoped by owner.
package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a note.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Statuses lists every valid status.
var Statuses = []Status{StatusActive, StatusCompleted}

// ParseStatus validates s. An empty string yields StatusActive.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case "", StatusActive:
		return StatusActive, nil
	case StatusCompleted:
		return StatusCompleted, nil
	}
	return "", fmt.Errorf("invalid note status %q (want active or completed)", s)
}

// ErrNotFound is returned when a note does not exist or belongs to another owner.
// Callers cannot distinguish the two cases.
var ErrNotFound = errors.New("Note not found or unauthorized")

// ErrEmptyContent is returned by Create for blank content.
var ErrEmptyContent = errors.New("note content is required")

// Note is a user's note.
type Note struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"user"`
	Content   string    `json:"content"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists notes.
type Store interface {
	// Create stores a new note owned by ownerID.
	Create(ctx context.Context, ownerID, content string, status Status) (*Note, error)
	// ListByOwner returns ownerID's notes, oldest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*Note, error)
	// Delete removes the note if ownerID owns it and reports whether it did.
	Delete(ctx context.Context, id, ownerID string) (bool, error)
	// UpdateStatus changes the status of ownerID's note, or returns ErrNotFound.
	UpdateStatus(ctx context.Context, id, ownerID string, status Status) (*Note, error)
}

// NormalizeContent trims content and rejects blank input.
func NormalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}
