package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sain-invites/sibc-dashboard/internal/clientip"
)

// SpanEnricher is a middleware that enriches the current span with request metadata.
// The route pattern is only known after routing, so it is added once the
// handler returns.
func SpanEnricher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span := trace.SpanFromContext(r.Context())
		if !span.IsRecording() {
			next.ServeHTTP(w, r)
			return
		}

		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			span.SetAttributes(attribute.String("http.request_id", reqID))
		}
		if ip := clientip.FromRequest(r).Primary; ip != "" {
			span.SetAttributes(attribute.String("client.address", ip))
		}
		if start := r.URL.Query().Get("start"); start != "" {
			span.SetAttributes(attribute.String("dashboard.start", sanitizeLogValue(start)))
		}
		if end := r.URL.Query().Get("end"); end != "" {
			span.SetAttributes(attribute.String("dashboard.end", sanitizeLogValue(end)))
		}

		next.ServeHTTP(w, r)

		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				span.SetAttributes(attribute.String("http.route", pattern))
			}
		}
	})
}
