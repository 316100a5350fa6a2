// Package clientip resolves the address of the client behind the dashboard's
// reverse proxy and derives a rate limit key that a forged header alone
// cannot change.
package clientip

import (
	"context"
	"maps"
	"net"
	"net/http"
	"slices"
	"strings"
)

type contextKey struct{}

var clientIPKey = contextKey{}

// DefaultHeaders are the single-address headers consulted, highest priority
// first. X-Forwarded-For is always consulted after them.
var DefaultHeaders = []string{
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Real-IP",
}

// Info contains extracted client IP information
type Info struct {
	// Primary is the most trusted single IP, used for logging.
	Primary string

	// RateLimitKey joins every distinct IP seen on the request. RemoteAddr is
	// always part of it.
	RateLimitKey string
}

// Middleware extracts client IPs using DefaultHeaders.
func Middleware(next http.Handler) http.Handler {
	return NewMiddleware(DefaultHeaders...)(next)
}

// NewMiddleware returns middleware that consults headers in order, then the
// first X-Forwarded-For hop, then RemoteAddr. It rewrites r.RemoteAddr to the
// primary IP and stores Info in the request context.
func NewMiddleware(headers ...string) func(http.Handler) http.Handler {
	headers = slices.Clone(headers)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := extract(r, headers)
			r.RemoteAddr = info.Primary
			ctx := context.WithValue(r.Context(), clientIPKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext retrieves Info from context
// Returns zero Info if not present (Primary and RateLimitKey will be empty)
func FromContext(ctx context.Context) Info {
	if info, ok := ctx.Value(clientIPKey).(Info); ok {
		return info
	}
	return Info{}
}

// FromRequest is a convenience wrapper around FromContext
func FromRequest(r *http.Request) Info {
	return FromContext(r.Context())
}

func extract(r *http.Request, headers []string) Info {
	seen := make(map[string]struct{})

	remoteIP := extractIPFromAddr(r.RemoteAddr)
	if remoteIP != "" {
		seen[remoteIP] = struct{}{}
	}

	candidates := make([]string, 0, len(headers)+1)
	for _, h := range headers {
		candidates = append(candidates, strings.TrimSpace(r.Header.Get(h)))
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		candidates = append(candidates, strings.TrimSpace(first))
	}

	var primary string
	for _, ip := range candidates {
		if ip == "" {
			continue
		}
		seen[ip] = struct{}{}
		if primary == "" {
			primary = ip
		}
	}
	if primary == "" {
		primary = remoteIP
	}

	return Info{
		Primary:      primary,
		RateLimitKey: strings.Join(slices.Sorted(maps.Keys(seen)), "|"),
	}
}

// extractIPFromAddr strips the port from "IP:port" and "[IPv6]:port".
// Addresses without a port are returned unbracketed.
func extractIPFromAddr(addr string) string {
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
