package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNormalizedPath(t *testing.T) {
	got := normalizedPath("/api/v1/attempts/123/check/9")
	want := "/api/v1/attempts/{id}/check/{id}"
	if got != want {
		t.Fatalf("normalizedPath mismatch got=%s want=%s", got, want)
	}
}

func TestExtractAttemptID(t *testing.T) {
	if id := extractAttemptID("/api/v1/attempts/456/complete"); id != 456 {
		t.Fatalf("expected 456, got %d", id)
	}
	if id := extractAttemptID("/api/v1/answers/1/result"); id != 0 {
		t.Fatalf("expected 0 for non-attempt path, got %d", id)
	}
}

func TestMiddlewareRecordsRouteAndLogs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := NewCollector(zap.New(core))

	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/api/v1/attempts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", c.MetricsHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attempts/42", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}
	ctx := logs.All()[0].ContextMap()
	if ctx["attempt_id"] != int64(42) || ctx["status"] != int64(http.StatusTeapot) {
		t.Fatalf("unexpected log fields: %#v", ctx)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	want := `quizengine_http_requests_total{method="GET",path="/api/v1/attempts/{id}",status="418"} 1`
	if !strings.Contains(string(body), want) {
		t.Fatalf("metrics output missing %q", want)
	}
}

func TestTracingInjectsSpanContext(t *testing.T) {
	shutdown, err := InitTracer("test", "")
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	var called bool
	h := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_ = trace.SpanFromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if !called {
		t.Fatalf("next handler not called")
	}
}
