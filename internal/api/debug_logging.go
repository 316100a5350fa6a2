package api

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sain-invites/sibc-dashboard/internal/logger"
)

// maxDebugBodySize is the maximum size of response bodies to log
// Larger bodies are truncated to avoid log bloat
const maxDebugBodySize = 10 * 1024 // 10KB

// debugLoggingMiddleware logs query parameters and response bodies when debug
// logging is enabled. It sits inside the compressor so bodies are logged
// before encoding.
func debugLoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !logger.IsDebug() {
				next.ServeHTTP(w, r)
				return
			}

			requestID := middleware.GetReqID(r.Context())

			logger.Debug("request",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
			)

			ww := &responseCapture{
				ResponseWriter: w,
				body:           &bytes.Buffer{},
				status:         http.StatusOK,
				maxSize:        maxDebugBodySize,
			}

			next.ServeHTTP(ww, r)

			logger.Debug("response body",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.status,
				"body", ww.body.String(),
				"truncated", ww.truncated,
			)
		})
	}
}

// responseCapture wraps http.ResponseWriter to capture the response body
type responseCapture struct {
	http.ResponseWriter
	body      *bytes.Buffer
	status    int
	maxSize   int
	truncated bool
}

func (w *responseCapture) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseCapture) Write(b []byte) (int, error) {
	if remaining := w.maxSize - w.body.Len(); remaining > 0 {
		if len(b) <= remaining {
			w.body.Write(b)
		} else {
			w.body.Write(b[:remaining])
			w.truncated = true
		}
	} else if len(b) > 0 {
		w.truncated = true
	}

	return w.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter for middleware compatibility
func (w *responseCapture) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
