package agent

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/harun/notemate/internal/observability"
	"github.com/harun/notemate/internal/tracing"
	"github.com/harun/notemate/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SessionState is the position of a Session in its lifecycle.
type SessionState int

const (
	StateIdle SessionState = iota
	StateAwaitingModel
	StateExecutingActions
	StateFinal
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateExecutingActions:
		return "executing_actions"
	case StateFinal:
		return "final"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session defaults.
const (
	DefaultMaxRounds    = 3
	DefaultModelTimeout = 60 * time.Second
	DefaultModelRetries = 2
)

// SessionConfig bounds the work of one session.
type SessionConfig struct {
	// MaxRounds caps the action-execution rounds. Once reached, the model is
	// called one last time with function calling disabled.
	MaxRounds    int
	ModelTimeout time.Duration
	// ModelRetries is the number of attempts for a retryable model error.
	ModelRetries int
	RetryBackoff time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.MaxRounds <= 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = DefaultModelTimeout
	}
	if c.ModelRetries <= 0 {
		c.ModelRetries = DefaultModelRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	return c
}

// SessionOutput is the terminal output of a session.
type SessionOutput struct {
	Text string
	// Actions holds every executed action in execution order.
	Actions []toolexecutor.ActionOutcome
	Rounds  int
	Usage   TokenUsage
}

// LastAction returns the last executed action, or nil when none ran.
func (o *SessionOutput) LastAction() *toolexecutor.ActionOutcome {
	if len(o.Actions) == 0 {
		return nil
	}
	return &o.Actions[len(o.Actions)-1]
}

// Session owns one exchange with the model: persona, history and the
// call, execute, resubmit loop. A Session serves one request and is not
// safe for concurrent use.
type Session struct {
	model     Model
	executor  *toolexecutor.Executor
	persona   Persona
	principal toolexecutor.Principal
	cfg       SessionConfig
	logger    zerolog.Logger

	state   SessionState
	turns   []Turn
	rounds  int
	actions []toolexecutor.ActionOutcome
	usage   TokenUsage
}

// NewSession creates an idle session seeded with history.
func NewSession(model Model, executor *toolexecutor.Executor, persona Persona, principal toolexecutor.Principal, history []Turn, cfg SessionConfig, logger zerolog.Logger) *Session {
	turns := make([]Turn, len(history), len(history)+1)
	copy(turns, history)
	return &Session{
		model:     model,
		executor:  executor,
		persona:   persona,
		principal: principal,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		state:     StateIdle,
		turns:     turns,
	}
}

// State returns the current state.
func (s *Session) State() SessionState {
	return s.state
}

// Turns returns the conversation so far.
func (s *Session) Turns() []Turn {
	return s.turns
}

// Submit sends message and drives the session to a terminal state.
func (s *Session) Submit(ctx context.Context, message string) (*SessionOutput, error) {
	if s.state != StateIdle {
		return nil, fmt.Errorf("session already submitted (state %s)", s.state)
	}

	ctx, span := tracing.StartSpan(ctx, "notemate.agent", "session.submit",
		attribute.String("persona", s.persona.Name),
		attribute.String("model", s.persona.Model),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger).With().Str("persona", s.persona.Name).Logger()

	s.turns = append(s.turns, Turn{Role: RoleUser, Text: message})

	out, err := s.run(ctx, logger)
	if err != nil {
		s.state = StateFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordSession(s.persona.Name, "error", s.rounds)
		return nil, err
	}

	s.state = StateFinal
	span.SetAttributes(attribute.Int("rounds", s.rounds), attribute.Int("actions", len(s.actions)))
	observability.RecordSession(s.persona.Name, "success", s.rounds)
	return out, nil
}

func (s *Session) run(ctx context.Context, logger zerolog.Logger) (*SessionOutput, error) {
	tools := s.executor.Registry().Definitions()

	for {
		capped := s.rounds >= s.cfg.MaxRounds
		s.state = StateAwaitingModel

		reply, err := s.generate(ctx, tools, capped, logger)
		if err != nil {
			return nil, err
		}

		if len(reply.ToolCalls) == 0 || capped {
			if capped && len(reply.ToolCalls) > 0 {
				logger.Warn().Int("rounds", s.rounds).Msg("Ignoring tool calls after round cap")
			}
			return &SessionOutput{
				Text:    reply.Text,
				Actions: s.actions,
				Rounds:  s.rounds,
				Usage:   s.usage,
			}, nil
		}

		s.state = StateExecutingActions
		calls := assignCallIDs(reply.ToolCalls, s.rounds)
		s.turns = append(s.turns, Turn{Role: RoleModel, Text: reply.Text, ToolCalls: calls})

		responses := make([]ToolResponse, 0, len(calls))
		for _, call := range calls {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("request cancelled before %s: %w", call.Name, err)
			}

			result := s.executor.Execute(ctx, toolexecutor.ActionRequest{
				ID:        call.ID,
				Name:      call.Name,
				Arguments: call.Arguments,
			}, s.principal)

			responses = append(responses, ToolResponse{ID: call.ID, Name: call.Name, Result: result})
			s.actions = append(s.actions, toolexecutor.ActionOutcome{Name: call.Name, Result: result})
		}
		s.turns = append(s.turns, Turn{Role: RoleUser, ToolResponses: responses})
		s.rounds++

		logger.Debug().Int("round", s.rounds).Int("actions", len(calls)).Msg("Resubmitting action results")
	}
}

// generate makes one model round-trip, retrying retryable errors with
// exponential backoff.
func (s *Session) generate(ctx context.Context, tools []toolexecutor.ToolDefinition, disableTools bool, logger zerolog.Logger) (*ModelReply, error) {
	req := ModelRequest{
		Model:             s.persona.Model,
		SystemInstruction: s.persona.SystemInstruction,
		Turns:             append([]Turn(nil), s.turns...),
		Tools:             tools,
		Generation:        s.persona.Generation,
		DisableTools:      disableTools,
	}

	var lastErr error
	for attempt := 0; attempt < s.cfg.ModelRetries; attempt++ {
		reply, err := s.generateOnce(ctx, req)
		if err == nil {
			s.usage.Add(reply.Usage)
			return reply, nil
		}
		lastErr = err

		if !IsRetryableError(err) || attempt == s.cfg.ModelRetries-1 {
			break
		}

		delay := s.cfg.RetryBackoff * time.Duration(1<<attempt)
		logger.Info().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("Retrying model call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("model call failed: %w", lastErr)
}

func (s *Session) generateOnce(ctx context.Context, req ModelRequest) (*ModelReply, error) {
	ctx, span := tracing.StartSpan(ctx, "notemate.agent", "model.generate",
		attribute.String("provider", s.model.Provider()),
		attribute.Bool("tools_disabled", req.DisableTools),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ModelTimeout)
	defer cancel()

	start := time.Now()
	reply, err := s.model.Generate(ctx, req)
	observability.RecordModelCall(s.model.Provider(), time.Since(start), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if reply == nil {
		return nil, fmt.Errorf("model returned no reply")
	}
	return reply, nil
}

// assignCallIDs fills missing call IDs so tool responses can reference them.
func assignCallIDs(calls []ToolCall, round int) []ToolCall {
	out := make([]ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = fmt.Sprintf("call_%d_%d", round, i)
		}
		out[i] = c
	}
	return out
}

var localCallID = regexp.MustCompile(`^call_\d+_\d+$`)

// isLocalCallID reports whether id was filled in by assignCallIDs rather
// than supplied by the model.
func isLocalCallID(id string) bool {
	return localCallID.MatchString(id)
}
