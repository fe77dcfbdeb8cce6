package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/harun/notemate/internal/observability"
	"github.com/harun/notemate/internal/tracing"
	"github.com/harun/notemate/pkg/auth"
	"github.com/harun/notemate/pkg/toolexecutor"
	"github.com/harun/notemate/pkg/users"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User  *users.User `json:"user"`
	Token string      `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, token, err := s.deps.Auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		var verr *auth.ValidationError
		switch {
		case errors.As(err, &verr), errors.Is(err, users.ErrEmailTaken):
			observability.RecordSecurityAudit(r.Context(), "register", users.NormalizeEmail(req.Email), "failure",
				map[string]interface{}{"reason": err.Error()})
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.requestLogger(r).Error().Err(err).Msg("Registration failed")
			s.writeFailure(w, http.StatusInternalServerError, "Internal Server Error", err)
		}
		return
	}

	observability.RecordSecurityAudit(r.Context(), "register", u.ID, "success", nil)
	writeJSON(w, http.StatusCreated, authResponse{User: u, Token: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, token, err := s.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		observability.RecordSecurityAudit(r.Context(), "login", users.NormalizeEmail(req.Email), "failure", nil)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.requestLogger(r).Error().Err(err).Msg("Login failed")
		s.writeFailure(w, http.StatusInternalServerError, "Internal Server Error", err)
		return
	}

	observability.RecordSecurityAudit(r.Context(), "login", u.ID, "success", nil)
	writeJSON(w, http.StatusOK, authResponse{User: u, Token: token})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, p toolexecutor.Principal) {
	u, err := s.deps.Auth.Profile(r.Context(), p)
	if errors.Is(err, users.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "Authentication failed")
		return
	}
	if err != nil {
		s.writeFailure(w, http.StatusInternalServerError, "Internal Server Error", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleGoogleAuthURL returns the consent URL. A signed-in caller gets a
// state that links the Google account to them in the callback.
func (s *Server) handleGoogleAuthURL(w http.ResponseWriter, r *http.Request) {
	if s.deps.Google == nil {
		writeError(w, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return
	}

	var state string
	if token := bearerToken(r); token != "" {
		p, err := s.deps.Auth.Authenticate(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Authentication failed")
			return
		}
		state, err = s.deps.Auth.IssueLinkState(p.ID)
		if err != nil {
			s.writeFailure(w, http.StatusInternalServerError, "Internal Server Error", err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": s.deps.Google.AuthURL(state)})
}

// handleGoogleCallback finishes the OAuth flow and redirects to the frontend
// with a session token.
func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if s.deps.Google == nil {
		writeError(w, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return
	}

	u, err := s.completeGoogleSignIn(r)
	if err != nil {
		s.requestLogger(r).Error().Err(err).Msg("Google sign-in failed")
		observability.RecordSecurityAudit(r.Context(), "google_signin", "", "failure",
			map[string]interface{}{"reason": err.Error()})
		s.writeFailure(w, http.StatusInternalServerError, "Authentication failed", err)
		return
	}

	token, err := s.deps.Auth.IssueToken(u)
	if err != nil {
		s.writeFailure(w, http.StatusInternalServerError, "Authentication failed", err)
		return
	}

	observability.RecordSecurityAudit(r.Context(), "google_signin", u.ID, "success", nil)
	target := strings.TrimRight(s.options.FrontendURL, "/") + "/googlecallback?googleAuthToken=" + url.QueryEscape(token)
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) completeGoogleSignIn(r *http.Request) (*users.User, error) {
	ctx := r.Context()
	q := r.URL.Query()

	tok, err := s.deps.Google.Exchange(ctx, q.Get("code"))
	if err != nil {
		return nil, err
	}
	info, err := s.deps.Google.UserInfo(ctx, tok)
	if err != nil {
		return nil, err
	}

	var userID string
	if state := q.Get("state"); state != "" {
		if userID, err = s.deps.Auth.VerifyLinkState(state); err != nil {
			return nil, fmt.Errorf("invalid oauth state: %w", err)
		}
	} else {
		u, err := s.findOrCreateGoogleUser(r, info.Email, info.Name)
		if err != nil {
			return nil, err
		}
		userID = u.ID
	}

	// The code is already spent, so the token is stored even if the client goes away.
	if err := s.deps.Users.SaveGoogleToken(tracing.Detach(ctx), userID, info.ID, tok); err != nil {
		return nil, fmt.Errorf("failed to store google token: %w", err)
	}
	return s.deps.Users.GetByID(ctx, userID)
}

func (s *Server) findOrCreateGoogleUser(r *http.Request, email, name string) (*users.User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, errors.New("google account has no email")
	}

	u, err := s.deps.Users.GetByEmail(r.Context(), email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, users.ErrNotFound) {
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		name = email
	}
	u = &users.User{Name: name, Email: email}
	if err := s.deps.Users.Create(r.Context(), u); err != nil {
		return nil, err
	}
	return u, nil
}
