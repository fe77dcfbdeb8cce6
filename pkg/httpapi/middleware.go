package httpapi

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/harun/notemate/internal/observability"
	"github.com/harun/notemate/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "notemate/httpapi"

// statusRecorder captures the response status for logs and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// middleware wraps the router, outermost first: request context, panic
// recovery, CORS, shutdown gate, rate limiting and the body cap.
func (s *Server) middleware(next http.Handler) http.Handler {
	h := s.withBodyLimit(next)
	h = s.withRateLimit(h)
	h = s.withShutdownGate(h)
	h = s.withCORS(h)
	h = s.withRecovery(h)
	return s.withRequestContext(h)
}

// withRequestContext attaches trace and request IDs, opens the request span
// and records the access log line and metrics.
func (s *Server) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()

		ctx := tracing.ExtractHTTP(r.Context(), r.Header)
		if traceID := r.Header.Get("X-Trace-Id"); traceID != "" {
			ctx = tracing.WithTraceID(ctx, traceID)
		}
		ctx = tracing.NewRequestContext(ctx, r.Header.Get("X-Request-Id"))
		ctx, span := tracing.StartSpan(ctx, tracerName, "http.request",
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		)
		defer span.End()

		r = r.WithContext(ctx)
		w.Header().Set("X-Request-Id", tracing.GetRequestID(ctx))

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(start)

		span.SetAttributes(attribute.Int("http.status_code", status), attribute.String("http.route", route))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		observability.RecordHTTPRequest(route, r.Method, status, duration)

		logger := s.requestLogger(r)
		event := logger.Info()
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("ip", s.clientIP(r)).
			Int("status", status).
			Dur("duration", duration).
			Msg("HTTP request completed")
	})
}

// withRecovery turns a handler panic into a 500.
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.requestLogger(r).Error().Interface("panic", rec).Msg("Panic in HTTP handler")
				s.writeFailure(w, http.StatusInternalServerError, "Internal Server Error", fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withShutdownGate rejects requests once shutdown started and tracks the
// in-flight ones.
func (s *Server) withShutdownGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
			return
		}
		s.inFlightReqs.Add(1)
		s.shutdownMu.RUnlock()
		defer s.inFlightReqs.Done()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := s.clientIP(r)
		ok, retryAfter := s.rateLimiter.Allow(ip)
		if !ok {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			s.requestLogger(r).Warn().
				Str("ip", ip).
				Str("path", r.URL.Path).
				Int("retry_after", seconds).
				Msg("Rate limit exceeded")
			observability.RecordRateLimited()

			w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
			writeError(w, http.StatusTooManyRequests, "Too Many Requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withBodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.options.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the caller's address. Proxy headers are only honored
// with TrustProxy.
func (s *Server) clientIP(r *http.Request) string {
	if s.options.TrustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			return strings.TrimSpace(strings.Split(xff, ",")[0])
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) requestLogger(r *http.Request) *zerolog.Logger {
	l := tracing.LoggerFromContext(r.Context(), s.logger)
	return &l
}
