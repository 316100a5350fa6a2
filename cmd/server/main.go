package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // Asia/Seoul must resolve in minimal containers

	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sain-invites/sibc-dashboard/internal/api"
	"github.com/sain-invites/sibc-dashboard/internal/db"
	"github.com/sain-invites/sibc-dashboard/internal/logger"
)

var version string

func main() {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load .env", "error", err)
	}

	// Check for worker mode
	if len(os.Args) > 1 && os.Args[1] == "worker" {
		runWorker()
		return
	}

	config, err := loadConfig(os.Getenv)
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	// Start pprof debug server if enabled (for memory/CPU profiling)
	if config.EnablePprof {
		go startPprofServer()
	}

	// Initialize OpenTelemetry
	// Configured via env vars: OTEL_SERVICE_NAME, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_HEADERS
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry()
	if err != nil {
		logger.Warn("failed to configure OpenTelemetry", "error", err)
		// Non-fatal: continue without tracing if OTEL env vars not set
	} else {
		defer otelShutdown()
	}

	// Migrations are applied separately: sibcctl migrate up
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), time.Minute)
	database, err := db.ConnectWithRetryConfig(connectCtx, config.DatabaseURL, config.Pool)
	cancelConnect()
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()

	server := api.NewServer(database, config.API)
	defer server.Close()

	// Wrap router with OpenTelemetry HTTP instrumentation
	handler := otelhttp.NewHandler(server.SetupRoutes(), "sibc-dashboard")

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server",
			"port", config.Port,
			"version", version,
			"timezone", config.API.Timezone,
			"static_dir", config.API.StaticDir,
			"rate_limit", fmt.Sprintf("%d/%s", config.API.RateLimitRequests, config.API.RateLimitWindow))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}

// startPprofServer starts a pprof debug server on localhost:6060.
// It only listens on 127.0.0.1; reach it through a port forward.
func startPprofServer() {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	for _, name := range []string{"heap", "goroutine", "allocs", "block", "mutex", "threadcreate"} {
		mux.Handle("/debug/pprof/"+name, pprof.Handler(name))
	}

	addr := "127.0.0.1:6060"
	logger.Info("pprof debug server starting", "addr", addr)

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("pprof server failed", "error", err)
	}
}
