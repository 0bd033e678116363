package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
	if SplitBrokers("") != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestEventMetaHeadersRoundTrip(t *testing.T) {
	meta := EventMeta{EventID: "7d0c", EventType: "booking.appointment.booked.v1"}
	got := ExtractEventMeta(kafka.Message{Topic: "ignored", Headers: meta.Headers()})
	if got != meta {
		t.Fatalf("expected %+v, got %+v", meta, got)
	}

	fallback := ExtractEventMeta(kafka.Message{Topic: "booking.appointment.rescheduled.v1", Key: []byte("42")})
	if fallback.EventID != "42" || fallback.EventType != "booking.appointment.rescheduled.v1" {
		t.Fatalf("unexpected fallback meta %+v", fallback)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := InjectTraceHeaders(ctx, EventMeta{EventID: "1", EventType: "t"}.Headers())
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatal("expected traceparent header")
	}

	extracted := ExtractTraceContext(context.Background(), kafka.Message{Headers: headers})
	if trace.SpanContextFromContext(extracted).TraceID() != span.SpanContext().TraceID() {
		t.Fatal("trace id not preserved through headers")
	}
}
