package actions

import (
	"context"

	"github.com/harun/notemate/pkg/notes"
	"github.com/harun/notemate/pkg/toolexecutor"
)

// Note action names.
const (
	ViewNotes        = "viewNotes"
	CreateNote       = "createNote"
	DeleteNote       = "deleteNote"
	UpdateNoteStatus = "updateNoteStatus"
)

type createNoteParams struct {
	Content string `json:"content"`
}

type noteIDParams struct {
	NoteID string `json:"noteId"`
	Status string `json:"status"`
}

// RegisterNoteActions registers viewNotes, createNote, deleteNote and updateNoteStatus.
func RegisterNoteActions(reg Registrar, store notes.Store) error {
	statuses := make([]string, len(notes.Statuses))
	for i, s := range notes.Statuses {
		statuses[i] = string(s)
	}

	return registerAll(reg, []toolexecutor.ToolDefinition{
		{
			Name:        ViewNotes,
			Description: "Retrieves all notes for the authenticated user. No parameters needed as it uses the current user's context.",
			Handler: func(ctx context.Context, params map[string]interface{}, p toolexecutor.Principal) (interface{}, error) {
				return store.ListByOwner(ctx, p.ID)
			},
		},
		{
			Name:        CreateNote,
			Description: "Creates a new note for the authenticated user",
			Parameters: []toolexecutor.ToolParameter{
				{
					Name:        "content",
					Type:        "string",
					Description: "The content of the note to be created for the current user",
					Required:    true,
				},
			},
			Handler: func(ctx context.Context, params map[string]interface{}, p toolexecutor.Principal) (interface{}, error) {
				var in createNoteParams
				if err := decodeParams(params, &in); err != nil {
					return nil, err
				}
				return store.Create(ctx, p.ID, in.Content, notes.StatusActive)
			},
		},
		{
			Name:        DeleteNote,
			Description: "Deletes a note by ID for the authenticated user",
			Parameters: []toolexecutor.ToolParameter{
				{
					Name:        "noteId",
					Type:        "string",
					Description: "The ID of the note to delete for the current user",
					Required:    true,
				},
			},
			Handler: func(ctx context.Context, params map[string]interface{}, p toolexecutor.Principal) (interface{}, error) {
				var in noteIDParams
				if err := decodeParams(params, &in); err != nil {
					return nil, err
				}
				deleted, err := store.Delete(ctx, in.NoteID, p.ID)
				if err != nil {
					return nil, err
				}
				if !deleted {
					return nil, notes.ErrNotFound
				}
				return map[string]interface{}{"message": "Note deleted", "noteId": in.NoteID}, nil
			},
		},
		{
			Name:        UpdateNoteStatus,
			Description: "Updates a note's status for the authenticated user",
			Parameters: []toolexecutor.ToolParameter{
				{
					Name:        "noteId",
					Type:        "string",
					Description: "The ID of the note to update for the current user",
					Required:    true,
				},
				{
					Name:        "status",
					Type:        "string",
					Description: "The new status (active or completed)",
					Required:    true,
					Enum:        statuses,
				},
			},
			Handler: func(ctx context.Context, params map[string]interface{}, p toolexecutor.Principal) (interface{}, error) {
				var in noteIDParams
				if err := decodeParams(params, &in); err != nil {
					return nil, err
				}
				status, err := notes.ParseStatus(in.Status)
				if err != nil {
					return nil, err
				}
				return store.UpdateStatus(ctx, in.NoteID, p.ID, status)
			},
		},
	})
}
