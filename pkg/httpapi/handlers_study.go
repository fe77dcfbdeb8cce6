package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/harun/notemate/pkg/study"
	"github.com/harun/notemate/pkg/toolexecutor"
)

const (
	actionCreateFlashCards = "createFlashCards"
	actionChatWithAI       = "chatWithAI"
)

type cardsRequest struct {
	Action  string `json:"action"`
	Topic   string `json:"topic,omitempty"`
	Message string `json:"message,omitempty"`
	Context string `json:"context,omitempty"`
}

type adventRequest struct {
	Topic   string          `json:"topic"`
	Input   string          `json:"input,omitempty"`
	History json.RawMessage `json:"history,omitempty"`
}

func (s *Server) handleCards(w http.ResponseWriter, r *http.Request, p toolexecutor.Principal) {
	var req cardsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch req.Action {
	case actionCreateFlashCards:
		cards, err := s.deps.Study.FlashCards(r.Context(), req.Topic)
		if errors.Is(err, study.ErrTopicRequired) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			s.writeFailure(w, http.StatusInternalServerError, "Internal Server Error", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"flashCards": cards})

	case actionChatWithAI:
		reply, err := s.deps.Study.Chat(r.Context(), req.Message, req.Context)
		if err != nil {
			s.requestLogger(r).Error().Err(err).Msg("Study chat failed")
			s.writeFailure(w, http.StatusInternalServerError, "Internal Server Error", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"response": reply})

	default:
		writeError(w, http.StatusBadRequest, "Invalid action")
	}
}

func (s *Server) handleAdvent(w http.ResponseWriter, r *http.Request, p toolexecutor.Principal) {
	var req adventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		result interface{}
		err    error
	)
	if hasHistory(req.History) {
		result, err = s.deps.Study.Review(r.Context(), req.Topic, req.History)
	} else {
		result, err = s.deps.Study.Story(r.Context(), req.Topic, req.Input)
	}

	if errors.Is(err, study.ErrTopicRequired) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.writeFailure(w, http.StatusInternalServerError, "Internal Server Error", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// hasHistory reports whether the history field was sent with a value.
func hasHistory(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
