package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityMiddlewareSetsHeaders(t *testing.T) {
	resp := httptest.NewRecorder()
	Security()(okHandler()).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	tests := []struct {
		header string
		want   string
	}{
		{"Cache-Control", "no-store"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
		{"Cross-Origin-Opener-Policy", "same-origin"},
		{"Cross-Origin-Resource-Policy", "same-origin"},
		{"Referrer-Policy", "no-referrer"},
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
	}
	for _, tt := range tests {
		if got := resp.Header().Get(tt.header); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.header, tt.want, got)
		}
	}
}

func TestVaryMiddlewarePreservesDownstreamResponse(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Add("Vary", "Origin")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("body"))
	})

	resp := httptest.NewRecorder()
	Vary()(handler).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	if resp.Code != http.StatusAccepted || resp.Body.String() != "body" {
		t.Fatalf("downstream response altered: %d %q", resp.Code, resp.Body.String())
	}
	if got := strings.Join(resp.Header().Values("Vary"), ","); got != "Accept,Origin" {
		t.Fatalf("expected Vary Accept,Origin, got %q", got)
	}
}

func TestCORSAllowsSimpleGET(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://localhost/", nil)
	req.Header.Set("Origin", "http://example.com")
	resp := httptest.NewRecorder()
	CORS()(okHandler()).ServeHTTP(resp, req)

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected Access-Control-Allow-Origin '*', got %q", got)
	}
	if got := resp.Header().Get("Access-Control-Expose-Headers"); !strings.EqualFold(got, chimiddleware.RequestIDHeader) {
		t.Fatalf("expected X-Request-Id to be exposed, got %q", got)
	}
}

func TestCORSPreflightRejectsPost(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodOptions, "http://localhost/", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp := httptest.NewRecorder()
	CORS()(next).ServeHTTP(resp, req)

	if called {
		t.Fatal("expected preflight to be answered without calling next")
	}
	if got := resp.Header().Get("Access-Control-Allow-Methods"); got != "" {
		t.Fatalf("expected POST preflight to be refused, got Allow-Methods %q", got)
	}
}

func TestRequestIDGeneratesUUID(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = chimiddleware.GetReqID(r.Context())
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected generated UUID, got %q: %v", seen, err)
	}
	if got := resp.Header().Get(chimiddleware.RequestIDHeader); got != seen {
		t.Fatalf("expected response header %q, got %q", seen, got)
	}
}

func TestRequestIDReusesValidHeader(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = chimiddleware.GetReqID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(chimiddleware.RequestIDHeader, "client-id-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "client-id-42" {
		t.Fatalf("expected client id to be reused, got %q", seen)
	}
}

func TestIsValidRequestID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"empty", "", false},
		{"simple", "abc-123", true},
		{"space", "a b", true},
		{"newline", "a\nb", false},
		{"del", "a\x7fb", false},
		{"high byte", "caf\xc3\xa9", false},
		{"max length", strings.Repeat("a", maxRequestIDLength), true},
		{"too long", strings.Repeat("a", maxRequestIDLength+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidRequestID(tt.id); got != tt.want {
				t.Fatalf("isValidRequestID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestCORSPreflightAdvertisesOnlyServedMethods(t *testing.T) {
	for _, method := range []string{http.MethodHead, http.MethodPut} {
		req := httptest.NewRequest(http.MethodOptions, "http://localhost/", nil)
		req.Header.Set("Origin", "http://example.com")
		req.Header.Set("Access-Control-Request-Method", method)
		resp := httptest.NewRecorder()
		CORS()(okHandler()).ServeHTTP(resp, req)

		if got := resp.Header().Get("Access-Control-Allow-Methods"); got != "" {
			t.Fatalf("%s: expected preflight to be refused, got Allow-Methods %q", method, got)
		}
	}

	req := httptest.NewRequest(http.MethodOptions, "http://localhost/", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp := httptest.NewRecorder()
	CORS()(okHandler()).ServeHTTP(resp, req)

	if got := resp.Header().Get("Access-Control-Allow-Methods"); got != http.MethodGet {
		t.Fatalf("expected GET preflight to be allowed, got %q", got)
	}
}
