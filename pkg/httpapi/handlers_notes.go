package httpapi

import (
	"errors"
	"net/http"

	"github.com/harun/notemate/pkg/notes"
	"github.com/harun/notemate/pkg/toolexecutor"
)

type createNoteRequest struct {
	Content string `json:"content"`
	Status  string `json:"status,omitempty"`
}

type updateNoteRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request, p toolexecutor.Principal) {
	list, err := s.deps.Notes.ListByOwner(r.Context(), p.ID)
	if err != nil {
		s.writeFailure(w, http.StatusInternalServerError, "Internal Server Error", err)
		return
	}
	if list == nil {
		list = []*notes.Note{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request, p toolexecutor.Principal) {
	var req createNoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	content, err := notes.NormalizeContent(req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := notes.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	note, err := s.deps.Notes.Create(r.Context(), p.ID, content, status)
	if err != nil {
		s.writeFailure(w, http.StatusInternalServerError, "Internal Server Error", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request, p toolexecutor.Principal) {
	id := r.PathValue("id")
	deleted, err := s.deps.Notes.Delete(r.Context(), id, p.ID)
	if err != nil {
		s.writeFailure(w, http.StatusInternalServerError, "Internal Server Error", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, notes.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Note deleted"})
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request, p toolexecutor.Principal) {
	var req updateNoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}
	status, err := notes.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	note, err := s.deps.Notes.UpdateStatus(r.Context(), r.PathValue("id"), p.ID, status)
	if errors.Is(err, notes.ErrNotFound) {
		writeError(w, http.StatusNotFound, notes.ErrNotFound.Error())
		return
	}
	if err != nil {
		s.writeFailure(w, http.StatusInternalServerError, "Internal Server Error", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}
