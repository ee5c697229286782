package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCORSDefaultsToWildcard(t *testing.T) {
	handler := CORS("", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("origin = %q, want *", got)
	}
}

func TestCORSAllowsTokenHeaders(t *testing.T) {
	handler := CORS("https://app.example.com", []string{"X-Custom"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	allowed := w.Header().Get("Access-Control-Allow-Headers")
	for _, h := range []string{"token", "user-token", "service-token", "X-Custom"} {
		if !strings.Contains(allowed, h) {
			t.Errorf("allow-headers %q missing %q", allowed, h)
		}
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("origin = %q", got)
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	called := false
	handler := CORS("", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("OPTIONS", "/", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if called {
		t.Error("preflight must not reach the next handler")
	}
}

func TestMergeHeadersDedupes(t *testing.T) {
	merged := mergeHeaders([]string{"TOKEN", "x-extra", "X-Extra"})
	count := 0
	for _, h := range merged {
		if strings.EqualFold(h, "token") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("token appears %d times, want 1", count)
	}
}
