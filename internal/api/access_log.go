package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sain-invites/sibc-dashboard/internal/clientip"
	"github.com/sain-invites/sibc-dashboard/internal/logger"
)

// Maximum length for error messages in logs
const maxErrorMessageLength = 200

// maxUserAgentLength bounds the logged User-Agent, in runes.
const maxUserAgentLength = 100

// AccessLogger logs one structured "request.completed" line per request.
// Requires clientip.Middleware and logger.Middleware to run first; the
// request id comes from the request-scoped logger.
//
// Attributes: method, path, status, bytes, durationMs, client_ip, and when
// present query, err (4xx only) and ua.
func AccessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &loggingResponseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK, // Default if WriteHeader is never called
		}

		next.ServeHTTP(lrw, r)

		duration := time.Since(start)

		clientIP := clientip.FromRequest(r).Primary
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		attrs := []any{
			"method", r.Method,
			"path", sanitizeLogValue(r.URL.Path),
			"status", lrw.statusCode,
			"bytes", lrw.bytesWritten,
			"durationMs", duration.Milliseconds(),
			"client_ip", clientIP,
		}
		if r.URL.RawQuery != "" {
			attrs = append(attrs, "query", sanitizeLogValue(r.URL.RawQuery))
		}

		// 5xx bodies may carry internal detail and are not logged here.
		if lrw.statusCode >= 400 && lrw.statusCode < 500 && len(lrw.body) > 0 {
			if errMsg := extractErrorMessage(lrw.body); errMsg != "" {
				attrs = append(attrs, "err", errMsg)
			}
		}

		if ua := r.Header.Get("User-Agent"); ua != "" {
			ua = sanitizeLogValue(ua)
			if runes := []rune(ua); len(runes) > maxUserAgentLength {
				ua = string(runes[:maxUserAgentLength]) + "..."
			}
			attrs = append(attrs, "ua", ua)
		}

		level := slog.LevelInfo
		if lrw.statusCode >= 500 {
			level = slog.LevelError
		}
		logger.Ctx(r.Context()).Log(r.Context(), level, "request.completed", attrs...)
	})
}

// sanitizeLogValue removes characters that could enable log injection attacks.
// Replaces newlines, carriage returns, and other control characters with spaces.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 32 || r == 127 {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// extractErrorMessage extracts the error message from response body.
// Handles {"error": ..., "message": ...} JSON and plain text. The message is
// preferred since "error" is a fixed label for most responses.
func extractErrorMessage(body []byte) string {
	var msg string

	var jsonErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Field   string `json:"field"`
	}
	if err := json.Unmarshal(body, &jsonErr); err == nil && (jsonErr.Error != "" || jsonErr.Message != "") {
		msg = jsonErr.Error
		if jsonErr.Message != "" {
			msg = jsonErr.Message
		}
		if jsonErr.Field != "" {
			msg = jsonErr.Field + ": " + msg
		}
	} else {
		msg = strings.TrimSpace(string(body))
	}

	msg = sanitizeLogValue(msg)

	// Truncate by runes to avoid splitting UTF-8
	if runes := []rune(msg); len(runes) > maxErrorMessageLength {
		msg = string(runes[:maxErrorMessageLength]) + "..."
	}

	return msg
}

// loggingResponseWriter wraps http.ResponseWriter to capture status code, bytes written,
// and response body for 4xx errors
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
	body         []byte // Captured body for 4xx responses
	wroteHeader  bool
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	if !lrw.wroteHeader {
		lrw.statusCode = code
		lrw.wroteHeader = true
	}
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	lrw.wroteHeader = true
	if lrw.statusCode >= 400 && lrw.statusCode < 500 {
		// Enough bytes for maxErrorMessageLength runes plus the JSON wrapper
		maxCapture := maxErrorMessageLength*utf8.UTFMax + 100
		if len(lrw.body) < maxCapture {
			remaining := maxCapture - len(lrw.body)
			lrw.body = append(lrw.body, b[:min(len(b), remaining)]...)
		}
	}

	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytesWritten += n
	return n, err
}

// Flush implements http.Flusher
func (lrw *loggingResponseWriter) Flush() {
	if f, ok := lrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for middleware compatibility
func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}
