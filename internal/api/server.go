package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sain-invites/sibc-dashboard/internal/analytics"
	"github.com/sain-invites/sibc-dashboard/internal/clientip"
	"github.com/sain-invites/sibc-dashboard/internal/db"
	"github.com/sain-invites/sibc-dashboard/internal/logger"
	"github.com/sain-invites/sibc-dashboard/internal/ratelimit"
	"github.com/sain-invites/sibc-dashboard/internal/timeutil"
)

// DashboardStore is the read side the handlers depend on. *analytics.Store
// implements it.
type DashboardStore interface {
	GetOverview(ctx context.Context, r timeutil.Range) (*analytics.OverviewResponse, error)
	ListUsers(ctx context.Context, q analytics.DirectoryQuery) (*analytics.DirectoryResponse, error)
	GetUser360(ctx context.Context, userID string, r timeutil.Range) (*analytics.User360Response, error)
	Location() *time.Location
}

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the HTTP layer settings. Zero values fall back to defaults.
type Config struct {
	Timezone          string
	QueryTimeout      time.Duration
	RateLimitRequests int
	RateLimitWindow   time.Duration
	AllowedOrigins    []string
	StaticDir         string
	AppEnv            string
}

// Server holds dependencies for API handlers
type Server struct {
	db          Pinger
	store       DashboardStore
	rateLimiter *ratelimit.InMemoryRateLimiter
	config      Config
	startedAt   time.Time
	now         func() time.Time
}

// NewServer creates a new API server backed by database.
func NewServer(database *db.DB, cfg Config) *Server {
	store := analytics.NewStore(database.Conn(),
		analytics.WithTimezone(cfg.Timezone),
		analytics.WithQueryTimeout(cfg.QueryTimeout),
	)
	return newServer(database, store, cfg)
}

func newServer(pinger Pinger, store DashboardStore, cfg Config) *Server {
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = ratelimit.DefaultRequests
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = ratelimit.DefaultWindow
	}
	return &Server{
		db:          pinger,
		store:       store,
		rateLimiter: ratelimit.NewWindowLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		config:      cfg,
		startedAt:   time.Now(),
		now:         time.Now,
	}
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

// SetupRoutes configures HTTP routes
func (s *Server) SetupRoutes() http.Handler {
	r := chi.NewRouter()

	// Order matters: request id and client ip feed the request logger and the
	// access log, and compression wraps everything the handlers write.
	r.Use(middleware.RequestID)
	r.Use(clientip.Middleware)
	r.Use(logger.Middleware)
	r.Use(AccessLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions(s.config.AllowedOrigins)))
	r.Use(newCompressor().Handler)
	r.Use(debugLoggingMiddleware())
	r.Use(SpanEnricher)

	r.Route("/api", func(r chi.Router) {
		r.Use(ratelimit.Middleware(s.rateLimiter))

		r.Get("/health", s.handleHealth)
		opts := HandlerOptions{Now: s.clock, Development: s.config.AppEnv == "development"}
		r.Get("/overview", HandleOverview(s.store, opts))
		r.Get("/users", HandleListUsers(s.store, opts))
		r.Get("/user360/{userId}", HandleUser360(s.store, opts))

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, http.StatusNotFound, "Not found")
		})
	})

	if s.config.StaticDir != "" {
		r.Handle("/*", staticHandler(s.config.StaticDir))
	}

	return r
}

func (s *Server) clock() time.Time { return s.now() }

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}
}

// healthResponse mirrors what uptime checks and the dashboard header expect.
type healthResponse struct {
	Status     string  `json:"status"`
	Database   string  `json:"database"`
	ServerTime string  `json:"serverTime"`
	Uptime     float64 `json:"uptime"`
}

// handleHealth reports process uptime and database reachability. A failed
// ping answers 503 so load balancers drain the instance.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	resp := healthResponse{
		Status:     "ok",
		Database:   "connected",
		ServerTime: s.now().UTC().Format(time.RFC3339Nano),
		Uptime:     time.Since(s.startedAt).Seconds(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.db == nil {
		resp.Status = "degraded"
		resp.Database = "disconnected"
		status = http.StatusServiceUnavailable
	} else if err := s.db.Ping(ctx); err != nil {
		logger.Ctx(r.Context()).Warn("health check ping failed", "error", err)
		resp.Status = "degraded"
		resp.Database = "disconnected"
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, resp)
}
