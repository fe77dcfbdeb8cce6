// Package calendar defines calendar events and the per-principal calendar contract.
package calendar

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotLinked is returned by a Provider when the principal has no calendar credentials.
	ErrNotLinked = errors.New("google account not linked")
	// ErrEventNotFound is returned when an event does not exist in the principal's calendar.
	ErrEventNotFound = errors.New("event not found")
	// ErrInvalidRange is returned when an event ends before it starts.
	ErrInvalidRange = errors.New("event end must not be before start")
)

// Event is a calendar entry.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	TimeZone    string    `json:"timeZone,omitempty"`
	Link        string    `json:"htmlLink,omitempty"`
}

// EventInput describes a new event.
type EventInput struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
}

// EventPatch holds the fields to change on an existing event. Nil fields are left untouched.
type EventPatch struct {
	Summary     *string
	Description *string
	Start       *time.Time
	End         *time.Time
	TimeZone    *string
}

// Empty reports whether the patch changes nothing.
func (p EventPatch) Empty() bool {
	return p.Summary == nil && p.Description == nil && p.Start == nil && p.End == nil && p.TimeZone == nil
}

// Store is one principal's calendar.
type Store interface {
	CreateEvent(ctx context.Context, in EventInput) (*Event, error)
	// ListEvents returns at most max events starting in [timeMin, timeMax), ordered by start.
	ListEvents(ctx context.Context, timeMin, timeMax time.Time, max int) ([]*Event, error)
	UpdateEvent(ctx context.Context, id string, patch EventPatch) (*Event, error)
}

// Provider resolves the calendar belonging to a principal.
type Provider interface {
	ForPrincipal(ctx context.Context, principalID string) (Store, error)
}

// EndOfDay returns the last instant of t's day in t's location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
