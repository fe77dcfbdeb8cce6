package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/harun/notemate/pkg/agent"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeFailure writes an error with internal detail, which is dropped unless
// the server exposes error details.
func (s *Server) writeFailure(w http.ResponseWriter, status int, msg string, err error) {
	body := ErrorResponse{Error: msg}
	if s.options.ExposeErrorDetails && err != nil {
		body.Details = err.Error()
	}
	writeJSON(w, status, body)
}

// writeAgentError maps the agent error taxonomy onto the error envelope.
func (s *Server) writeAgentError(w http.ResponseWriter, err error) {
	var ae *agent.Error
	if !errors.As(err, &ae) {
		s.writeFailure(w, http.StatusInternalServerError, "Internal Server Error", err)
		return
	}

	body := ErrorResponse{Error: ae.Message}
	if s.options.ExposeErrorDetails {
		body.Details = ae.Detail
	}
	writeJSON(w, ae.StatusCode(), body)
}

var errEmptyBody = errors.New("request body is required")

// decodeJSON reads a JSON body into out. The body is already size-capped by
// the server middleware.
func decodeJSON(r *http.Request, out interface{}) error {
	err := json.NewDecoder(r.Body).Decode(out)
	if errors.Is(err, io.EOF) {
		return errEmptyBody
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
	}
	if err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// bearerToken returns the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
