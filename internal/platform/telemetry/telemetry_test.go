package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingProvider() (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return tp, sr
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	if cfg.ServiceName != "availability-server" {
		t.Errorf("expected default service name, got %q", cfg.ServiceName)
	}
	if cfg.SampleRatio != 1.0 {
		t.Errorf("expected sample ratio 1.0, got %f", cfg.SampleRatio)
	}
	if cfg.Environment != "development" {
		t.Errorf("expected development, got %q", cfg.Environment)
	}
}

func TestSetup_DisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestTraceContext_RoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp, _ := newRecordingProvider()
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "outer")
	defer span.End()

	traceparent, _ := TraceContextStrings(ctx)
	if traceparent == "" {
		t.Fatal("expected traceparent to be injected")
	}

	restored := ContextWithTraceContext(context.Background(), traceparent, "")
	_, child := tp.Tracer("test").Start(restored, "inner")
	defer child.End()

	if child.SpanContext().TraceID() != span.SpanContext().TraceID() {
		t.Error("expected restored context to continue the trace")
	}
}

func TestContextWithTraceContext_EmptyIsIdentity(t *testing.T) {
	ctx := context.Background()
	if got := ContextWithTraceContext(ctx, "", ""); got != ctx {
		t.Error("expected the same context back")
	}
}

func TestTracingMiddleware_CreatesSpan(t *testing.T) {
	tp, sr := newRecordingProvider()
	defer tp.Shutdown(context.Background())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/occurrences", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/occurrences")
	c.Set("provider_id", "prov-1")

	h := TracingMiddleware(tp)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "HTTP GET /api/v1/occurrences" {
		t.Errorf("unexpected span name %q", spans[0].Name())
	}
	if v, ok := attrValue(spans[0].Attributes(), "http.status_code"); !ok || v.AsInt64() != 200 {
		t.Errorf("expected status 200 attribute, got %v", v)
	}
	if v, ok := attrValue(spans[0].Attributes(), "provider.id"); !ok || v.AsString() != "prov-1" {
		t.Errorf("expected provider.id attribute, got %v", v)
	}
}

func TestTracingMiddleware_ServerErrorMarksSpan(t *testing.T) {
	tp, sr := newRecordingProvider()
	defer tp.Shutdown(context.Background())

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/time-blocks", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := TracingMiddleware(tp)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusInternalServerError, "boom")
	})
	_ = h(c)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status().Code)
	}
}

func TestTracingMiddleware_PropagatesContextToHandler(t *testing.T) {
	tp, _ := newRecordingProvider()
	defer tp.Shutdown(context.Background())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := TracingMiddleware(tp)(func(c echo.Context) error {
		if traceparent, _ := TraceContextStrings(c.Request().Context()); traceparent == "" {
			t.Error("expected handler context to carry the span")
		}
		return nil
	})
	otel.SetTextMapPropagator(propagation.TraceContext{})
	_ = h(c)
}
