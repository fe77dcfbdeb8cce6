package toolexecutor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harun/notemate/internal/observability"
	"github.com/harun/notemate/internal/tracing"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultTimeout bounds a single action invocation.
	DefaultTimeout = 15 * time.Second

	// DefaultGracePeriod is how long a handler may keep running past its
	// deadline before the executor stops waiting for it.
	DefaultGracePeriod = 2 * time.Second
)

// Executor runs registered actions for a principal and normalizes every
// outcome into an ActionResult.
type Executor struct {
	registry    *Registry
	timeout     time.Duration
	gracePeriod time.Duration
	logger      zerolog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout sets the per-action timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithGracePeriod sets how long to wait for a handler that overran its timeout.
func WithGracePeriod(d time.Duration) Option {
	return func(e *Executor) {
		if d >= 0 {
			e.gracePeriod = d
		}
	}
}

// WithLogger sets the executor's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// New creates an Executor over registry.
func New(registry *Registry, opts ...Option) *Executor {
	e := &Executor{
		registry:    registry,
		timeout:     DefaultTimeout,
		gracePeriod: DefaultGracePeriod,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry the executor resolves actions against.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs one action request for principal. It never panics and never
// returns an error: every failure is a Failure result.
func (e *Executor) Execute(ctx context.Context, req ActionRequest, principal Principal) ActionResult {
	ctx, span := tracing.StartSpan(ctx, "notemate.toolexecutor", "action.execute",
		attribute.String("action.name", req.Name),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, e.logger).With().Str("action", req.Name).Logger()
	startTime := time.Now()

	result := e.execute(ctx, req, principal, logger)
	duration := time.Since(startTime)

	span.SetAttributes(attribute.Bool("action.success", result.Success))
	if !result.Success {
		span.SetStatus(codes.Error, result.Reason)
	}

	observability.RecordActionExecution(req.Name, duration, result.Success)
	observability.RecordActionAudit(ctx, req.Name, principal.ID, result.Success, result.Reason)

	if result.Success {
		logger.Debug().Dur("duration", duration).Msg("Action completed")
	} else {
		logger.Warn().Dur("duration", duration).Str("reason", result.Reason).Msg("Action failed")
	}

	return result
}

func (e *Executor) execute(ctx context.Context, req ActionRequest, principal Principal, logger zerolog.Logger) ActionResult {
	if err := ctx.Err(); err != nil {
		return Failed(ReasonCancelled)
	}
	if !principal.Valid() {
		return Failed(ReasonUnauthorized)
	}

	tool, err := e.registry.Resolve(req.Name)
	if err != nil {
		return Failed(ReasonUnknownAction)
	}

	params := req.Arguments
	if params == nil {
		params = map[string]interface{}{}
	}

	if missing := missingRequired(tool, params); len(missing) > 0 {
		return Failedf("%s: %s", reasonMissingArgs, strings.Join(missing, ", "))
	}

	if err := validateParameters(e.registry.schema(tool.Name), params); err != nil {
		return Failedf("%s: %v", reasonInvalidArgs, err)
	}

	logger.Debug().Msg("Executing action")

	return e.invoke(ctx, tool, params, principal)
}

// invoke calls the handler under the per-action timeout, recovering panics.
func (e *Executor) invoke(ctx context.Context, tool *ToolDefinition, params map[string]interface{}, principal Principal) ActionResult {
	timeoutCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan handlerOutcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error().Str("action", tool.Name).Interface("panic", r).Msg("Action handler panicked")
				done <- handlerOutcome{err: errPanic}
			}
		}()

		result, err := tool.Handler(timeoutCtx, params, principal)
		done <- handlerOutcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return e.outcome(ctx, out)

	case <-timeoutCtx.Done():
	}

	// The handler saw the deadline. Give it a bounded window to return so a
	// write that already committed is reported as one.
	grace := time.NewTimer(e.gracePeriod)
	defer grace.Stop()

	select {
	case out := <-done:
		return e.outcome(ctx, out)
	case <-grace.C:
		e.logger.Warn().Str("action", tool.Name).Dur("grace_period", e.gracePeriod).Msg("Action handler still running after deadline")
		if ctx.Err() != nil {
			return Failed(ReasonCancelled)
		}
		return Failed(ReasonTimeout)
	}
}

type handlerOutcome struct {
	result interface{}
	err    error
}

// outcome maps what a handler returned to an ActionResult.
func (e *Executor) outcome(ctx context.Context, out handlerOutcome) ActionResult {
	switch {
	case out.err == nil:
		return Succeeded(out.result)
	case errors.Is(out.err, errPanic):
		return Failed(ReasonPanic)
	case ctx.Err() != nil && errors.Is(out.err, ctx.Err()):
		return Failed(ReasonCancelled)
	case errors.Is(out.err, context.DeadlineExceeded):
		return Failed(ReasonTimeout)
	default:
		return Failed(out.err.Error())
	}
}

var errPanic = errors.New(ReasonPanic)

// missingRequired lists required parameters that are absent, null or blank strings.
func missingRequired(tool *ToolDefinition, params map[string]interface{}) []string {
	var missing []string
	for _, name := range tool.RequiredParameters() {
		v, ok := params[name]
		if !ok || v == nil {
			missing = append(missing, name)
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// validateParameters validates parameters against a JSON Schema
func validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		sort.Strings(msgs)
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}

	return nil
}
