package httpapi

import (
	"net/http"
	"strings"
	"sync"
)

const (
	corsAllowMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization"
)

// originList is the CORS allow-list. It can be replaced while serving.
type originList struct {
	mu      sync.RWMutex
	allowed map[string]bool
}

func newOriginList(origins []string) *originList {
	l := &originList{}
	l.Set(origins)
	return l
}

// Set replaces the allow-list. Trailing slashes are ignored.
func (l *originList) Set(origins []string) {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			allowed[o] = true
		}
	}

	l.mu.Lock()
	l.allowed = allowed
	l.mu.Unlock()
}

func (l *originList) Allowed(origin string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowed[origin] || l.allowed["*"]
}

// withCORS sets CORS headers for allow-listed origins and answers preflight
// requests on any route.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.origins.Allowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
