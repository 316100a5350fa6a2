package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sain-invites/sibc-dashboard/internal/clientip"
	"github.com/sain-invites/sibc-dashboard/internal/logger"
)

// withAccessLog wraps h the way SetupRoutes does and captures the log lines.
func withAccessLog(t *testing.T, h http.Handler) (http.Handler, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	t.Cleanup(logger.SetOutputForTest(&buf))
	return middleware.RequestID(clientip.Middleware(logger.Middleware(AccessLogger(h)))), &buf
}

// accessEntries returns the decoded request.completed lines.
func accessEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q", sc.Text())
		}
		if entry["msg"] == "request.completed" {
			entries = append(entries, entry)
		}
	}
	return entries
}

func singleEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	entries := accessEntries(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected one access log entry, got %d: %s", len(entries), buf.String())
	}
	return entries[0]
}

func TestAccessLogger_Fields(t *testing.T) {
	handler, buf := withAccessLog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/overview?start=2025-01-01", nil)
	req.RemoteAddr = "10.0.0.5:54686"
	req.Header.Set("X-Real-IP", "203.0.113.45")
	req.Header.Set("User-Agent", "dashboard-test/1.0")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := singleEntry(t, buf)
	checks := map[string]any{
		"level":     "INFO",
		"method":    "GET",
		"path":      "/api/overview",
		"query":     "start=2025-01-01",
		"status":    float64(200),
		"bytes":     float64(len(`{"ok":true}`)),
		"client_ip": "203.0.113.45",
		"ua":        "dashboard-test/1.0",
	}
	for key, want := range checks {
		if entry[key] != want {
			t.Errorf("%s = %v, want %v", key, entry[key], want)
		}
	}
	if _, ok := entry["durationMs"]; !ok {
		t.Error("missing durationMs")
	}
	if id, _ := entry["req_id"].(string); id == "" {
		t.Error("missing req_id from the request logger")
	}
	if _, ok := entry["err"]; ok {
		t.Error("2xx responses should not log err")
	}
}

func TestAccessLogger_DefaultStatus(t *testing.T) {
	handler, buf := withAccessLog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := singleEntry(t, buf)["status"]; got != float64(200) {
		t.Errorf("status = %v, want 200", got)
	}
}

func TestAccessLogger_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		level   string
	}{
		{
			name:    "field error",
			status:  http.StatusBadRequest,
			body:    `{"error":"Invalid parameter","message":"Date must be in YYYY-MM-DD format","field":"start"}`,
			wantErr: "start: Date must be in YYYY-MM-DD format",
			level:   "INFO",
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{"error":"Too many requests","message":"Rate limit exceeded. Please try again later."}`,
			wantErr: "Rate limit exceeded. Please try again later.",
			level:   "INFO",
		},
		{
			name:    "plain text",
			status:  http.StatusNotFound,
			body:    "404 page not found\n",
			wantErr: "404 page not found",
			level:   "INFO",
		},
		{
			name:   "server errors are not echoed",
			status: http.StatusInternalServerError,
			body:   `{"error":"Internal server error","message":"pq: password authentication failed"}`,
			level:  "ERROR",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler, buf := withAccessLog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/x", nil))

			entry := singleEntry(t, buf)
			got, _ := entry["err"].(string)
			if got != tc.wantErr {
				t.Errorf("err = %q, want %q", got, tc.wantErr)
			}
			if entry["level"] != tc.level {
				t.Errorf("level = %v, want %s", entry["level"], tc.level)
			}
		})
	}
}

func TestAccessLogger_TruncatesLongErrorMessage(t *testing.T) {
	long := strings.Repeat("가", maxErrorMessageLength+50)
	handler, buf := withAccessLog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, long, http.StatusBadRequest)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	got, _ := singleEntry(t, buf)["err"].(string)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected truncated message, got %q", got)
	}
	if n := len([]rune(strings.TrimSuffix(got, "..."))); n > maxErrorMessageLength {
		t.Errorf("message has %d runes, limit is %d", n, maxErrorMessageLength)
	}
}

func TestSanitizeLogValue(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"line1\nline2", "line1 line2"},
		{"a\r\nb", "a  b"},
		{"tab\there", "tab here"},
		{"del\x7f", "del "},
		{"한글 그대로", "한글 그대로"},
	}
	for _, tc := range tests {
		if got := sanitizeLogValue(tc.in); got != tc.want {
			t.Errorf("sanitizeLogValue(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

type flushRecorder struct {
	*httptest.ResponseRecorder
	flushed bool
}

func (f *flushRecorder) Flush() {
	f.flushed = true
}

func TestAccessLogger_SupportsFlush(t *testing.T) {
	handler, _ := withAccessLog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer does not implement http.Flusher")
		}
		f.Flush()
	}))

	rec := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !rec.flushed {
		t.Error("Flush was not passed through")
	}
}
