package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RequestIDKey is the context key for the inbound HTTP request ID
	RequestIDKey ContextKey = "request_id"
	// PrincipalIDKey is the context key for the authenticated principal
	PrincipalIDKey ContextKey = "principal_id"
	// PersonaKey is the context key for the conversation persona
	PersonaKey ContextKey = "persona"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID     string
	RequestID   string
	PrincipalID string
	Persona     string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRequestID generates a new request ID
func NewRequestID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithPrincipalID adds the principal ID to the context
func WithPrincipalID(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, PrincipalIDKey, principalID)
}

// WithPersona adds the persona name to the context
func WithPersona(ctx context.Context, persona string) context.Context {
	return context.WithValue(ctx, PersonaKey, persona)
}

func getString(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	return getString(ctx, TraceIDKey)
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

// GetPrincipalID retrieves the principal ID from the context
func GetPrincipalID(ctx context.Context) string {
	return getString(ctx, PrincipalIDKey)
}

// GetPersona retrieves the persona from the context
func GetPersona(ctx context.Context) string {
	return getString(ctx, PersonaKey)
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:     GetTraceID(ctx),
		RequestID:   GetRequestID(ctx),
		PrincipalID: GetPrincipalID(ctx),
		Persona:     GetPersona(ctx),
	}
}

// NewRequestContext returns a context carrying fresh trace and request IDs.
// An existing trace ID (e.g. from an upstream header) is kept.
func NewRequestContext(ctx context.Context, requestID string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	if requestID == "" {
		requestID = NewRequestID()
	}
	return WithRequestID(ctx, requestID)
}
