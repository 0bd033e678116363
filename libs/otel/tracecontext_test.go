package otelx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestCaptureAndRestore(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "reservation.Create")
	defer span.End()

	tc := CaptureTraceContext(ctx)
	require.False(t, tc.Empty())
	assert.Contains(t, tc.Parent, span.SpanContext().TraceID().String())

	restored := TraceContext{Parent: tc.Parent}.Restore(context.Background())
	got := trace.SpanContextFromContext(restored)
	assert.Equal(t, span.SpanContext().TraceID(), got.TraceID())
	assert.True(t, got.IsRemote())
}

func TestRestoreEmptyKeepsContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), struct{}{}, "marker")
	assert.Equal(t, ctx, TraceContext{}.Restore(ctx))
	assert.True(t, CaptureTraceContext(context.Background()).Empty())
}
