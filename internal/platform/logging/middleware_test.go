package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func withProjectID(t *testing.T, id string) {
	t.Helper()
	orig := cachedProjectID
	cachedProjectID = id
	projectIDOnce = sync.Once{}
	projectIDOnce.Do(func() {})
	t.Cleanup(func() {
		cachedProjectID = orig
		projectIDOnce = sync.Once{}
	})
}

func withRequestID(id string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), chimiddleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func TestAccessLoggerUsesRequestLogger(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	access := AccessLogger()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithLogger(req.Context(), zap.New(core)))
	access.ServeHTTP(httptest.NewRecorder(), req)

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Message != "request completed" {
		t.Fatalf("unexpected log message: %s", entries[0].Message)
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Fatalf("expected status 418, got %v", fields["status"])
	}
	if fields["path"] != "/" || fields["method"] != http.MethodGet {
		t.Fatalf("unexpected request fields: %v", fields)
	}
	if fields["bytes"] != int64(len("short and stout")) {
		t.Fatalf("unexpected bytes: %v", fields["bytes"])
	}
	if _, ok := fields["duration"]; !ok {
		t.Fatalf("expected duration field, got %v", fields)
	}
}

func TestRequestLoggerFallsBackToRequestID(t *testing.T) {
	withProjectID(t, "")

	var traceID string
	handler := withRequestID("test-request-id", RequestLogger()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = TraceIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if traceID != "test-request-id" {
		t.Fatalf("expected trace id to be the request id, got %q", traceID)
	}
}

func TestRequestLoggerPrefersTraceparent(t *testing.T) {
	withProjectID(t, "test-project")

	var traceID string
	handler := withRequestID("req-1", RequestLogger()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = TraceIDFromContext(r.Context())
		if LoggerFromContext(r.Context()) == Logger() {
			t.Error("expected a request-scoped logger")
		}
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", sampleTraceparent)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if traceID != "projects/test-project/traces/3d23d071b5bfd6579171efce907685cb" {
		t.Fatalf("unexpected trace id %q", traceID)
	}
}
