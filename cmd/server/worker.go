package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sain-invites/sibc-dashboard/internal/analytics"
	"github.com/sain-invites/sibc-dashboard/internal/db"
	"github.com/sain-invites/sibc-dashboard/internal/logger"
	"github.com/sain-invites/sibc-dashboard/internal/storage"
	"github.com/sain-invites/sibc-dashboard/internal/timeutil"
)

var workerTracer = otel.Tracer("sibc/worker")

// snapshotKindOverview is the archive kind for overview responses.
const snapshotKindOverview = "overview"

type overviewSource interface {
	GetOverview(ctx context.Context, r timeutil.Range) (*analytics.OverviewResponse, error)
	Location() *time.Location
}

type snapshotSink interface {
	PutSnapshot(ctx context.Context, kind, startDate, endDate string, payload []byte) (string, error)
	PruneSnapshots(ctx context.Context, kind string, cutoff time.Time) (int, error)
}

// Worker periodically archives the overview for the trailing window.
type Worker struct {
	source overviewSource
	sink   snapshotSink
	config WorkerConfig
	now    func() time.Time
}

// runWorker is the entry point for the background worker process.
func runWorker() {
	logger.Info("starting snapshot worker")

	otelShutdown, err := otelconfig.ConfigureOpenTelemetry()
	if err != nil {
		logger.Warn("failed to configure OpenTelemetry for worker", "error", err)
	} else {
		defer otelShutdown()
	}

	serverConfig, err := loadConfig(os.Getenv)
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	workerConfig, err := loadWorkerConfig(os.Getenv)
	if err != nil {
		logger.Fatal("invalid worker configuration", "error", err)
	}
	logger.Info("worker configuration loaded",
		"interval", workerConfig.Interval,
		"days", workerConfig.Days,
		"retain", workerConfig.Retain,
		"bucket", workerConfig.S3.BucketName,
		"dry_run", workerConfig.DryRun,
	)
	if workerConfig.DryRun {
		logger.Info("DRY-RUN MODE ENABLED - no snapshots will be written")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutdown signal received, stopping worker")
		cancel()
	}()

	database, err := db.ConnectWithRetryConfig(ctx, serverConfig.DatabaseURL, serverConfig.Pool)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()

	objects, err := storage.NewS3Storage(ctx, workerConfig.S3)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	snapshots, err := storage.NewSnapshotStore(objects)
	if err != nil {
		logger.Fatal("failed to initialize snapshot store", "error", err)
	}
	defer snapshots.Close()

	worker := &Worker{
		source: analytics.NewStore(database.Conn(),
			analytics.WithTimezone(serverConfig.API.Timezone),
			analytics.WithQueryTimeout(serverConfig.API.QueryTimeout),
		),
		sink:   snapshots,
		config: workerConfig,
		now:    time.Now,
	}

	worker.Run(ctx)
	logger.Info("worker stopped")
}

// Run executes the main worker loop until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	// Run immediately on startup
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// window returns the configured number of days ending today.
func (w *Worker) window() (timeutil.Range, error) {
	loc := w.source.Location()
	end := w.now()
	start := timeutil.TruncateToDay(end, loc).AddDate(0, 0, -(w.config.Days - 1))
	return timeutil.NewRange(start, end, loc)
}

// runOnce archives one overview and prunes expired snapshots. Failures are
// logged and retried on the next tick.
func (w *Worker) runOnce(ctx context.Context) {
	ctx, span := workerTracer.Start(ctx, "worker.run_once")
	defer span.End()

	if err := w.archive(ctx); err != nil {
		logger.Error("snapshot cycle failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	cutoff := w.now().Add(-w.config.Retain)
	if w.config.DryRun {
		logger.Info("[DRY-RUN] would prune snapshots", "kind", snapshotKindOverview, "before", cutoff.UTC())
		return
	}
	pruned, err := w.sink.PruneSnapshots(ctx, snapshotKindOverview, cutoff)
	if err != nil {
		logger.Error("failed to prune snapshots", "error", err, "pruned", pruned)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(attribute.Int("snapshots.pruned", pruned))
	if pruned > 0 {
		logger.Info("pruned snapshots", "kind", snapshotKindOverview, "count", pruned)
	}
}

func (w *Worker) archive(ctx context.Context) error {
	r, err := w.window()
	if err != nil {
		return fmt.Errorf("snapshot window: %w", err)
	}

	overview, err := w.source.GetOverview(ctx, r)
	if err != nil {
		return fmt.Errorf("build overview: %w", err)
	}
	payload, err := json.Marshal(overview)
	if err != nil {
		return fmt.Errorf("encode overview: %w", err)
	}

	if w.config.DryRun {
		logger.Info("[DRY-RUN] would archive overview",
			"start", r.StartDate(),
			"end", r.EndDate(),
			"bytes", len(payload),
		)
		return nil
	}

	key, err := w.sink.PutSnapshot(ctx, snapshotKindOverview, r.StartDate(), r.EndDate(), payload)
	if err != nil {
		return fmt.Errorf("store overview: %w", err)
	}
	logger.Info("archived overview", "key", key, "start", r.StartDate(), "end", r.EndDate(), "bytes", len(payload))
	return nil
}
