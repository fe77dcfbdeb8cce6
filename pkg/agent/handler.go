package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/notemate/internal/tracing"
	"github.com/harun/notemate/pkg/toolexecutor"
	"github.com/rs/zerolog"
)

// DefaultMaxHistory caps the history entries accepted per request.
const DefaultMaxHistory = 100

// Request is the chat request body.
type Request struct {
	Message       string    `json:"message"`
	History       []Message `json:"history"`
	AssistantType string    `json:"assistantType,omitempty"`
	AuthToken     string    `json:"authToken,omitempty"`
}

// FunctionCall summarizes the last action of a turn.
type FunctionCall struct {
	Name   string                    `json:"name"`
	Result toolexecutor.ActionResult `json:"result"`
}

// Response is the chat response body.
type Response struct {
	Response     string        `json:"response"`
	FunctionCall *FunctionCall `json:"functionCall,omitempty"`
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Personas   Personas
	Session    SessionConfig
	MaxHistory int
}

// Handler turns an authenticated chat request into one Session and maps its
// outcome to a Response or an *Error.
type Handler struct {
	model    Model
	executor *toolexecutor.Executor
	cfg      HandlerConfig
	logger   zerolog.Logger
}

// NewHandler creates a Handler. The model and executor are shared by every
// request; the executor's registry should be sealed before serving.
func NewHandler(model Model, executor *toolexecutor.Executor, cfg HandlerConfig, logger zerolog.Logger) (*Handler, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Personas.Tutor.Model == "" || cfg.Personas.Casual.Model == "" {
		cfg.Personas = NewPersonas(cfg.Personas.Tutor.Model, cfg.Personas.Casual.Model)
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}

	return &Handler{
		model:    model,
		executor: executor,
		cfg:      cfg,
		logger:   logger.With().Str("component", "agent").Logger(),
	}, nil
}

// Handle runs one chat turn for principal.
func (h *Handler) Handle(ctx context.Context, principal toolexecutor.Principal, req Request) (resp *Response, err error) {
	if !principal.Valid() {
		return nil, unauthenticated()
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, validation("Message is required")
	}
	if len(req.History) > h.cfg.MaxHistory {
		return nil, validation(fmt.Sprintf("History exceeds %d entries", h.cfg.MaxHistory))
	}

	persona := h.cfg.Personas.Resolve(req.AssistantType)
	ctx = tracing.WithPrincipalID(ctx, principal.ID)
	ctx = tracing.WithPersona(ctx, persona.Name)
	ctx = toolexecutor.ContextWithPrincipal(ctx, principal)
	logger := tracing.LoggerFromContext(ctx, h.logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Agent pipeline panicked")
			resp, err = nil, upstream(fmt.Errorf("panic: %v", r))
		}
	}()

	session := NewSession(h.model, h.executor, persona, principal, HistoryTurns(req.History), h.cfg.Session, h.logger)
	out, err := session.Submit(ctx, req.Message)
	if err != nil {
		logger.Error().Err(err).Msg("Chat turn failed")
		return nil, upstream(err)
	}

	logger.Info().
		Int("rounds", out.Rounds).
		Int("actions", len(out.Actions)).
		Int("input_tokens", out.Usage.InputTokens).
		Int("output_tokens", out.Usage.OutputTokens).
		Msg("Chat turn completed")

	resp = &Response{Response: out.Text}
	if last := out.LastAction(); last != nil {
		resp.FunctionCall = &FunctionCall{Name: last.Name, Result: last.Result}
	}
	return resp, nil
}
