package telemetry

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetup_Disabled(t *testing.T) {
	tp, shutdown, err := Setup(context.Background(), Config{}, nil)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	_, span := tp.Tracer("test").Start(context.Background(), "op")
	if span.SpanContext().IsSampled() {
		t.Error("noop provider should not sample")
	}
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSetup_OTLP(t *testing.T) {
	tp, shutdown, err := Setup(context.Background(), Config{Endpoint: "http://127.0.0.1:4318", Insecure: true}, nil)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if _, ok := tp.(*sdktrace.TracerProvider); !ok {
		t.Fatalf("provider = %T, want SDK provider", tp)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}

func TestNewProvider_Resource(t *testing.T) {
	t.Parallel()
	rec := tracetest.NewSpanRecorder()
	tp := NewProvider(Config{ServiceName: "shop", Version: "1.2.3"}, sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "module.install")
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	got := map[string]string{}
	for _, kv := range spans[0].Resource().Attributes() {
		got[string(kv.Key)] = kv.Value.AsString()
	}
	if got["service.name"] != "shop" || got["service.version"] != "1.2.3" {
		t.Errorf("resource = %v", got)
	}
}
