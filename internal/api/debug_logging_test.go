package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sain-invites/sibc-dashboard/internal/logger"
)

func TestDebugLoggingMiddleware(t *testing.T) {
	cleanup := logger.SetDebugForTest(true)
	defer cleanup()

	t.Run("passes the full response through", func(t *testing.T) {
		large := strings.Repeat("x", maxDebugBodySize*2)
		handler := debugLoggingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(large))
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users?q=kim", nil))

		if w.Code != http.StatusAccepted {
			t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
		}
		if w.Body.Len() != len(large) {
			t.Errorf("client received %d bytes, want %d", w.Body.Len(), len(large))
		}
	})
}

func TestDebugLoggingMiddlewareDisabled(t *testing.T) {
	cleanup := logger.SetDebugForTest(false)
	defer cleanup()

	var sawCapture bool
	handler := debugLoggingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawCapture = w.(*responseCapture)
		w.Write([]byte("ok"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if sawCapture {
		t.Error("response writer should not be wrapped when debug is off")
	}
	if w.Body.String() != "ok" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestResponseCapture(t *testing.T) {
	tests := []struct {
		name          string
		writes        []string
		maxSize       int
		wantCaptured  string
		wantTruncated bool
	}{
		{"under limit", []string{"hello"}, 10, "hello", false},
		{"exactly at limit", []string{"0123456789"}, 10, "0123456789", false},
		{"single write over limit", []string{"0123456789abc"}, 10, "0123456789", true},
		{"second write over limit", []string{"01234", "56789", "x"}, 10, "0123456789", true},
		{"split across limit", []string{"0123456", "789abc"}, 10, "0123456789", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			rc := &responseCapture{
				ResponseWriter: rec,
				body:           &bytes.Buffer{},
				status:         http.StatusOK,
				maxSize:        tc.maxSize,
			}
			for _, s := range tc.writes {
				if _, err := rc.Write([]byte(s)); err != nil {
					t.Fatalf("write: %v", err)
				}
			}

			if got := rc.body.String(); got != tc.wantCaptured {
				t.Errorf("captured %q, want %q", got, tc.wantCaptured)
			}
			if rc.truncated != tc.wantTruncated {
				t.Errorf("truncated = %v, want %v", rc.truncated, tc.wantTruncated)
			}
			if got, want := rec.Body.String(), strings.Join(tc.writes, ""); got != want {
				t.Errorf("client received %q, want %q", got, want)
			}
		})
	}
}
