package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/relay/pkg/config"
)

func newTestTracerProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

func TestNew_Disabled(t *testing.T) {
	tr, err := New(&config.TracingConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if tr.Enabled() {
		t.Error("Enabled() = true for disabled config")
	}

	_, span := tr.Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("disabled tracer produced a valid span context")
	}
	span.End()

	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() failed: %v", err)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(nil, "test"); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := New(&config.TracingConfig{Enabled: true}, "test"); err == nil {
		t.Error("expected error for missing endpoint")
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		got := NewSampler(tt.ratio).Description()
		want := "ParentBased{root:" + tt.want
		if len(got) < len(want) || got[:len(want)] != want {
			t.Errorf("NewSampler(%v) = %q, want prefix %q", tt.ratio, got, want)
		}
	}
}

func TestSetError(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	_, span := tp.Tracer("test").Start(context.Background(), "op")
	SetError(span, errors.New("boom"), "provider_transient")
	SetError(span, nil, "ignored")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Status.Code != codes.Error || s.Status.Description != "boom" {
		t.Errorf("status = %+v", s.Status)
	}
	if len(s.Events) != 1 || s.Events[0].Name != "exception" {
		t.Errorf("events = %+v, want one exception", s.Events)
	}
	found := false
	for _, a := range s.Attributes {
		if a.Key == AttrErrorCategory && a.Value.AsString() == "provider_transient" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing %s attribute: %v", AttrErrorCategory, s.Attributes)
	}
}

func TestHTTPMiddleware(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	handler := HTTPMiddleware(tp.Tracer("test"))(mux)

	req := httptest.NewRequest(http.MethodGet, "/v1/items/42", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Trace-ID"); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("X-Trace-ID = %q, want continued trace id", got)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Parent.SpanID().String() != "00f067aa0ba902b7" {
		t.Errorf("parent span = %s, want remote parent", s.Parent.SpanID())
	}
	if s.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error for 503", s.Status.Code)
	}
}
