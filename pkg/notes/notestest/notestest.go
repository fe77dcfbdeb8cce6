// Package notestest holds behavioural tests shared by every notes.Store backend.
package notestest

import (
	"context"
	"testing"

	"github.com/harun/notemate/pkg/notes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreTests exercises a notes.Store implementation. newStore must return
// an empty store on every call.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) notes.Store) {
	ctx := context.Background()

	t.Run("should list a created note exactly once", func(t *testing.T) {
		store := newStore(t)

		created, err := store.Create(ctx, "alice", "buy milk", notes.StatusActive)
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "alice", created.OwnerID)
		assert.Equal(t, notes.StatusActive, created.Status)
		assert.False(t, created.CreatedAt.IsZero())

		list, err := store.ListByOwner(ctx, "alice")
		require.NoError(t, err)

		count := 0
		for _, n := range list {
			if n.Content == "buy milk" {
				count++
				assert.Equal(t, created.ID, n.ID)
			}
		}
		assert.Equal(t, 1, count)
	})

	t.Run("should default status to active", func(t *testing.T) {
		store := newStore(t)

		created, err := store.Create(ctx, "alice", "water plants", "")
		require.NoError(t, err)
		assert.Equal(t, notes.StatusActive, created.Status)
	})

	t.Run("should reject blank content", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Create(ctx, "alice", "   ", notes.StatusActive)
		assert.ErrorIs(t, err, notes.ErrEmptyContent)
	})

	t.Run("should scope listing to the owner", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Create(ctx, "alice", "alice's note", notes.StatusActive)
		require.NoError(t, err)
		_, err = store.Create(ctx, "bob", "bob's note", notes.StatusActive)
		require.NoError(t, err)

		list, err := store.ListByOwner(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "bob's note", list[0].Content)

		empty, err := store.ListByOwner(ctx, "carol")
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)
	})

	t.Run("should never delete another owner's note", func(t *testing.T) {
		store := newStore(t)

		note, err := store.Create(ctx, "alice", "secret", notes.StatusActive)
		require.NoError(t, err)

		deleted, err := store.Delete(ctx, note.ID, "bob")
		require.NoError(t, err)
		assert.False(t, deleted)

		list, err := store.ListByOwner(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, list, 1)

		deleted, err = store.Delete(ctx, note.ID, "alice")
		require.NoError(t, err)
		assert.True(t, deleted)

		list, err = store.ListByOwner(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("should report unknown IDs as not deleted", func(t *testing.T) {
		store := newStore(t)

		deleted, err := store.Delete(ctx, "does-not-exist", "alice")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("should update status only for the owner", func(t *testing.T) {
		store := newStore(t)

		note, err := store.Create(ctx, "alice", "finish essay", notes.StatusActive)
		require.NoError(t, err)

		_, err = store.UpdateStatus(ctx, note.ID, "bob", notes.StatusCompleted)
		assert.ErrorIs(t, err, notes.ErrNotFound)

		updated, err := store.UpdateStatus(ctx, note.ID, "alice", notes.StatusCompleted)
		require.NoError(t, err)
		assert.Equal(t, notes.StatusCompleted, updated.Status)
		assert.Equal(t, "finish essay", updated.Content)
		assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))

		_, err = store.UpdateStatus(ctx, "missing", "alice", notes.StatusActive)
		assert.ErrorIs(t, err, notes.ErrNotFound)
	})
}
