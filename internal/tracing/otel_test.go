package tracing

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestInitOpenTelemetry(t *testing.T) {
	require.NoError(t, InitOpenTelemetry(Config{ServiceName: "notemate-test", ServiceVersion: "test", SampleRatio: 5}))
	t.Cleanup(func() { _ = ShutdownOpenTelemetry(context.Background()) })

	t.Run("should be idempotent", func(t *testing.T) {
		assert.NoError(t, InitOpenTelemetry(Config{ServiceName: "other"}))
	})

	t.Run("should sample spans and set the trace id", func(t *testing.T) {
		ctx, span := StartSpan(context.Background(), "test", "op")
		defer span.End()

		assert.True(t, span.SpanContext().IsSampled())
		assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))
	})

	t.Run("should continue an incoming traceparent", func(t *testing.T) {
		header := http.Header{}
		header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

		ctx := ExtractHTTP(context.Background(), header)
		ctx, span := StartSpan(ctx, "test", "child")
		defer span.End()

		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", span.SpanContext().TraceID().String())
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", GetTraceID(ctx))
		assert.Equal(t, span.SpanContext().SpanID(), trace.SpanContextFromContext(ctx).SpanID())
	})
}

func TestShutdownOpenTelemetryWithoutInit(t *testing.T) {
	assert.NoError(t, ShutdownOpenTelemetry(context.Background()))
}
