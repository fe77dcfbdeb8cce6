package httpapi

import (
	"errors"
	"net/http"

	"github.com/harun/notemate/pkg/agent"
	"github.com/harun/notemate/pkg/calendar"
	"github.com/harun/notemate/pkg/google"
	"github.com/harun/notemate/pkg/toolexecutor"
)

const maxTodayEvents = 10

func (s *Server) handleCalendarEvents(w http.ResponseWriter, r *http.Request, p toolexecutor.Principal) {
	if s.deps.Calendar == nil {
		writeError(w, http.StatusServiceUnavailable, "Google Calendar is not configured")
		return
	}

	store, err := s.deps.Calendar.ForPrincipal(r.Context(), p.ID)
	if errors.Is(err, calendar.ErrNotLinked) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.writeFailure(w, http.StatusInternalServerError, "Failed to fetch calendar events", err)
		return
	}

	now := s.now()
	events, err := store.ListEvents(r.Context(), now, calendar.EndOfDay(now), maxTodayEvents)
	if err != nil {
		s.writeFailure(w, http.StatusInternalServerError, "Failed to fetch calendar events", err)
		return
	}
	if events == nil {
		events = []*calendar.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleGmailMessages(w http.ResponseWriter, r *http.Request, p toolexecutor.Principal) {
	if s.deps.Mail == nil {
		writeError(w, http.StatusServiceUnavailable, "Gmail is not configured")
		return
	}

	messages, err := s.deps.Mail.Recent(r.Context(), p.ID)
	if errors.Is(err, calendar.ErrNotLinked) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.writeFailure(w, http.StatusInternalServerError, "Failed to fetch messages", err)
		return
	}
	if messages == nil {
		messages = []google.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// handleChat runs an agent turn. The token may come from the Authorization
// header or the body's authToken.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)

	var req agent.Request
	if err := decodeJSON(r, &req); err != nil {
		// Without a readable authToken only the header can identify the caller.
		if _, authErr := s.deps.Auth.Authenticate(token); authErr != nil {
			writeError(w, http.StatusUnauthorized, "Authentication failed")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if token == "" {
		token = req.AuthToken
	}
	// An unresolved principal is rejected by the handler as unauthenticated.
	principal, _ := s.deps.Auth.Authenticate(token)

	resp, err := s.deps.Chat.Handle(r.Context(), principal, req)
	if err != nil {
		s.writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
