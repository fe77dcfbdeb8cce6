package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProvider_ForPrincipal(t *testing.T) {
	p := NewMemoryProvider()

	_, err := p.ForPrincipal(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrNotLinked)

	linked := p.Link("alice")
	store, err := p.ForPrincipal(context.Background(), "alice")
	require.NoError(t, err)
	assert.Same(t, linked, store)

	_, err = p.ForPrincipal(context.Background(), "bob")
	assert.ErrorIs(t, err, ErrNotLinked)
}

func TestMemoryStore_Events(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	late, err := s.CreateEvent(ctx, EventInput{Summary: "Lab", Start: base.Add(4 * time.Hour), End: base.Add(5 * time.Hour)})
	require.NoError(t, err)
	early, err := s.CreateEvent(ctx, EventInput{Summary: "Lecture", Start: base, End: base.Add(time.Hour)})
	require.NoError(t, err)
	_, err = s.CreateEvent(ctx, EventInput{Summary: "Tomorrow", Start: base.Add(24 * time.Hour), End: base.Add(25 * time.Hour)})
	require.NoError(t, err)

	t.Run("should list events in range ordered by start", func(t *testing.T) {
		events, err := s.ListEvents(ctx, base, EndOfDay(base), 10)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, early.ID, events[0].ID)
		assert.Equal(t, late.ID, events[1].ID)
	})

	t.Run("should honour max", func(t *testing.T) {
		events, err := s.ListEvents(ctx, base, base.Add(48*time.Hour), 1)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("should patch only given fields", func(t *testing.T) {
		summary := "Chemistry lab"
		updated, err := s.UpdateEvent(ctx, late.ID, EventPatch{Summary: &summary})
		require.NoError(t, err)
		assert.Equal(t, "Chemistry lab", updated.Summary)
		assert.Equal(t, late.Start, updated.Start)
	})

	t.Run("should reject inverted ranges", func(t *testing.T) {
		end := base.Add(-time.Hour)
		_, err := s.UpdateEvent(ctx, early.ID, EventPatch{End: &end})
		assert.ErrorIs(t, err, ErrInvalidRange)

		_, err = s.CreateEvent(ctx, EventInput{Summary: "x", Start: base, End: end})
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("should report unknown events", func(t *testing.T) {
		_, err := s.UpdateEvent(ctx, "missing", EventPatch{})
		assert.ErrorIs(t, err, ErrEventNotFound)
	})
}

func TestEndOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	got := EndOfDay(time.Date(2026, 1, 5, 8, 30, 0, 0, loc))

	assert.Equal(t, 2026, got.Year())
	assert.Equal(t, 5, got.Day())
	assert.Equal(t, 23, got.Hour())
	assert.Equal(t, 59, got.Second())
	assert.Equal(t, loc, got.Location())
}
