package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sain-invites/sibc-dashboard/internal/clientip"
	"github.com/sain-invites/sibc-dashboard/internal/logger"
)

// TooManyRequestsMessage is the message returned with every 429.
const TooManyRequestsMessage = "Rate limit exceeded. Please try again later."

// retryAfterer is implemented by limiters that can estimate the wait.
type retryAfterer interface {
	RetryAfter(key string) time.Duration
}

// Middleware rejects requests over the limit with a JSON 429.
// Uses clientip.FromRequest for the key (set by clientip.Middleware)
func Middleware(limiter RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientip.FromRequest(r).RateLimitKey
			if key == "" {
				key = r.RemoteAddr
			}

			if !limiter.Allow(r.Context(), key) {
				logger.Ctx(r.Context()).Warn("rate limit exceeded",
					"client_ip", clientip.FromRequest(r).Primary,
					"path", r.URL.Path)
				if ra, ok := limiter.(retryAfterer); ok {
					if wait := ra.RetryAfter(key); wait > 0 {
						w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
					}
				}
				writeTooManyRequests(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeTooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "Too many requests",
		"message": TooManyRequestsMessage,
	})
}
