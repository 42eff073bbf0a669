package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/wudi/urlforward/internal/config"
)

func newTestTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewWithExporter(config.TracingConfig{
		Enabled:     true,
		ServiceName: "urlforward-test",
		SampleRate:  1.0,
	}, exporter)
	if err != nil {
		t.Fatalf("NewWithExporter: %v", err)
	}
	t.Cleanup(func() { tracer.Close(context.Background()) })
	return tracer, exporter
}

func flush(t *testing.T, tracer *Tracer) {
	t.Helper()
	if err := tracer.provider.ForceFlush(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestTracerMiddleware(t *testing.T) {
	tracer, exporter := newTestTracer(t)

	var inner trace.SpanContext
	handler := tracer.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = trace.SpanContextFromContext(r.Context())
		w.WriteHeader(http.StatusBadGateway)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/hook", nil))

	if !inner.IsValid() {
		t.Fatal("handler should run inside a span")
	}
	if w.Header().Get("X-Trace-ID") != inner.TraceID().String() {
		t.Errorf("X-Trace-ID = %q, want %s", w.Header().Get("X-Trace-ID"), inner.TraceID())
	}

	flush(t, tracer)
	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "POST /hook" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("5xx response should mark the span as error, got %v", spans[0].Status.Code)
	}
}

func TestTracerMiddlewarePropagation(t *testing.T) {
	tracer, _ := newTestTracer(t)

	existing := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	var traceID string
	handler := tracer.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = trace.SpanContextFromContext(r.Context()).TraceID().String()
	}))

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("traceparent", existing)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if traceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("incoming trace should be continued, got %s", traceID)
	}
}

func TestForwardSpanAndInject(t *testing.T) {
	tracer, exporter := newTestTracer(t)

	ctx, span := tracer.StartForward(context.Background(), "/hook#0", "GET", "http://a.example")
	header := http.Header{}
	Inject(ctx, header)
	if header.Get("traceparent") == "" {
		t.Error("expected traceparent header to be injected")
	}
	EndForward(span, 0, errors.New("connection refused"))

	flush(t, tracer)
	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].SpanKind != trace.SpanKindClient {
		t.Errorf("span kind = %v", spans[0].SpanKind)
	}
	if spans[0].Status.Code != codes.Error {
		t.Error("transport failure should mark the span as error")
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected the error to be recorded as an event")
	}
}

func TestTracerDisabled(t *testing.T) {
	tracer, err := New(config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	if tracer.IsEnabled() {
		t.Fatal("tracer should be disabled")
	}

	called := false
	handler := tracer.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if !called {
		t.Error("handler not called")
	}
	if w.Header().Get("X-Trace-ID") != "" {
		t.Error("disabled tracer should not set X-Trace-ID")
	}

	ctx := context.Background()
	got, span := tracer.StartForward(ctx, "x", "GET", "http://a.example")
	if got != ctx || span.SpanContext().IsValid() {
		t.Error("disabled tracer should not start spans")
	}
	EndForward(span, 200, nil)

	var nilTracer *Tracer
	if nilTracer.IsEnabled() {
		t.Error("nil tracer should be disabled")
	}
	if err := nilTracer.Close(ctx); err != nil {
		t.Error(err)
	}
}
