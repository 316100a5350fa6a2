package logger

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey struct{}

// Middleware stores a logger tagged with the chi request id in the request
// context. It must run after middleware.RequestID.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLog := slog.Default()
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			reqLog = reqLog.With("req_id", reqID)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, reqLog)))
	})
}

// Ctx returns the request logger, or the process logger outside a request.
func Ctx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// With returns a context whose logger carries args in addition to whatever
// the current one already has, e.g. the user a handler is serving.
func With(ctx context.Context, args ...any) context.Context {
	return context.WithValue(ctx, ctxKey{}, Ctx(ctx).With(args...))
}
