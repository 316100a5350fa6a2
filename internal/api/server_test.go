package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sain-invites/sibc-dashboard/internal/testutil"
)

func TestHandleHealth(t *testing.T) {
	t.Run("database reachable", func(t *testing.T) {
		handler := newTestServer(t, &fakeStore{}, fakePinger{}, Config{}).SetupRoutes()

		w := get(handler, "/api/health", nil)
		testutil.AssertStatus(t, w, http.StatusOK)

		var resp healthResponse
		testutil.ParseJSONResponse(t, w, &resp)
		if resp.Status != "ok" || resp.Database != "connected" {
			t.Errorf("health = %+v", resp)
		}
		if resp.ServerTime != "2025-03-09T16:00:00Z" {
			t.Errorf("serverTime = %q", resp.ServerTime)
		}
		if resp.Uptime < 0 {
			t.Errorf("uptime = %v", resp.Uptime)
		}
	})

	t.Run("database unreachable", func(t *testing.T) {
		handler := newTestServer(t, &fakeStore{}, fakePinger{err: errConnRefused}, Config{}).SetupRoutes()

		w := get(handler, "/api/health", nil)
		testutil.AssertStatus(t, w, http.StatusServiceUnavailable)

		var resp healthResponse
		testutil.ParseJSONResponse(t, w, &resp)
		if resp.Database != "disconnected" {
			t.Errorf("database = %q", resp.Database)
		}
	})
}

func TestUnknownAPIRoute(t *testing.T) {
	handler := newTestServer(t, &fakeStore{}, fakePinger{}, Config{}).SetupRoutes()

	w := get(handler, "/api/nope", nil)
	testutil.AssertStatus(t, w, http.StatusNotFound)
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestRateLimit(t *testing.T) {
	store := &fakeStore{}
	handler := newTestServer(t, store, fakePinger{}, Config{
		RateLimitRequests: 3,
		RateLimitWindow:   time.Minute,
	}).SetupRoutes()

	for i := range 3 {
		w := get(handler, "/api/overview", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, w.Code)
		}
	}

	w := get(handler, "/api/overview", nil)
	testutil.AssertStatus(t, w, http.StatusTooManyRequests)

	var resp map[string]string
	testutil.ParseJSONResponse(t, w, &resp)
	if resp["error"] != "Too many requests" {
		t.Errorf("error = %q", resp["error"])
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// A different client has its own bucket.
	w = get(handler, "/api/overview", map[string]string{"X-Real-IP": "198.51.100.9"})
	testutil.AssertStatus(t, w, http.StatusOK)

	if n := len(store.overviewCalls); n != 4 {
		t.Errorf("store saw %d calls, want 4", n)
	}
}

func TestCORS(t *testing.T) {
	handler := newTestServer(t, &fakeStore{}, fakePinger{}, Config{
		AllowedOrigins: []string{"https://dash.example.com"},
	}).SetupRoutes()

	t.Run("preflight from an allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/overview", nil)
		req.Header.Set("Origin", "https://dash.example.com")
		req.Header.Set("Access-Control-Request-Method", "GET")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
			t.Errorf("Access-Control-Allow-Origin = %q", got)
		}
	})

	t.Run("other origins get no grant", func(t *testing.T) {
		w := get(handler, "/api/health", map[string]string{"Origin": "https://evil.example.com"})
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want none", got)
		}
	})
}

func TestStaticFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>dashboard</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}

	handler := newTestServer(t, &fakeStore{}, fakePinger{}, Config{StaticDir: dir}).SetupRoutes()

	tests := []struct {
		name     string
		path     string
		status   int
		contains string
	}{
		{"root", "/", http.StatusOK, "dashboard"},
		{"client route", "/users/u1", http.StatusOK, "dashboard"},
		{"asset", "/assets/app.js", http.StatusOK, "console.log"},
		{"missing asset", "/assets/missing.js", http.StatusNotFound, ""},
		{"api stays json", "/api/missing", http.StatusNotFound, "Not found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := get(handler, tc.path, nil)
			testutil.AssertStatus(t, w, tc.status)
			if tc.contains != "" && !strings.Contains(w.Body.String(), tc.contains) {
				t.Errorf("body %q does not contain %q", w.Body.String(), tc.contains)
			}
		})
	}
}

func TestNoStaticDir(t *testing.T) {
	handler := newTestServer(t, &fakeStore{}, fakePinger{}, Config{}).SetupRoutes()

	w := get(handler, "/users/u1", nil)
	testutil.AssertStatus(t, w, http.StatusNotFound)
}
