package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sain-invites/sibc-dashboard/internal/db"
	"github.com/sain-invites/sibc-dashboard/internal/storage"
)

// testTables lists every migrated table, children before parents.
var testTables = []string{
	"weekly_routine_goal",
	"weekly_routine_plan",
	"chat_threads_turns",
	"chat_threads",
	"user_state_validation_logs",
	"send_messages",
	"processing_jobs",
	"daily_routine_activities",
	"llm_usage",
	"user_event_log",
	"user_signature_type",
	"target_calorie",
	"user_guardrail",
	"user_profiles",
}

// TestEnvironment holds test infrastructure. PostgreSQL always runs; MinIO is
// started on first use by Snapshots.
type TestEnvironment struct {
	DB                *db.DB
	DSN               string
	Storage           *storage.S3Storage
	PostgresContainer *postgres.PostgresContainer
	MinioContainer    *minio.MinioContainer
	Ctx               context.Context
}

// SetupTestEnvironment starts a PostgreSQL container, applies the migrations
// and connects with the same search_path the server uses.
func SetupTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()
	ctx := context.Background()

	t.Log("Starting PostgreSQL container...")
	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("invites_loop_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	env := &TestEnvironment{
		PostgresContainer: postgresContainer,
		Ctx:               ctx,
	}
	t.Cleanup(func() {
		env.Cleanup(t)
	})

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get postgres connection string: %v", err)
	}

	t.Log("Running database migrations...")
	if err := db.MigrateUp(connStr); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	env.DSN = db.WithSearchPath(connStr, db.DefaultSearchPath)
	env.DB, err = db.Connect(env.DSN)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	t.Log("Test environment ready!")
	return env
}

// Snapshots returns a snapshot archive backed by a MinIO container, starting
// the container the first time it is called.
func (e *TestEnvironment) Snapshots(t *testing.T) *storage.SnapshotStore {
	t.Helper()
	if e.Storage == nil {
		e.startMinio(t)
	}
	snapshots, err := storage.NewSnapshotStore(e.Storage)
	if err != nil {
		t.Fatalf("Failed to create snapshot store: %v", err)
	}
	t.Cleanup(snapshots.Close)
	return snapshots
}

func (e *TestEnvironment) startMinio(t *testing.T) {
	t.Helper()

	t.Log("Starting MinIO container...")
	minioContainer, err := minio.Run(e.Ctx,
		"minio/minio:latest",
		minio.WithUsername("minioadmin"),
		minio.WithPassword("minioadmin"),
	)
	if err != nil {
		t.Fatalf("Failed to start minio container: %v", err)
	}
	e.MinioContainer = minioContainer

	minioEndpoint, err := minioContainer.ConnectionString(e.Ctx)
	if err != nil {
		t.Fatalf("Failed to get minio endpoint: %v", err)
	}

	// MinIO accepts connections before it serves the S3 API.
	const maxRetries = 10
	for i := range maxRetries {
		e.Storage, err = storage.NewS3Storage(e.Ctx, storage.S3Config{
			Endpoint:        minioEndpoint,
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			BucketName:      "sibc-snapshots-test",
			CreateBucket:    true,
		})
		if err == nil {
			return
		}
		t.Logf("MinIO not ready yet, retrying... (%d/%d)", i+1, maxRetries)
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("Failed to create S3 storage after %d retries: %v", maxRetries, err)
}

// Cleanup stops containers and closes connections
func (e *TestEnvironment) Cleanup(t *testing.T) {
	t.Helper()
	t.Log("Cleaning up test environment...")

	if e.DB != nil {
		if err := e.DB.Close(); err != nil {
			t.Logf("Warning: failed to close database: %v", err)
		}
	}

	if e.PostgresContainer != nil {
		if err := e.PostgresContainer.Terminate(e.Ctx); err != nil {
			t.Logf("Warning: failed to terminate postgres container: %v", err)
		}
	}

	if e.MinioContainer != nil {
		if err := e.MinioContainer.Terminate(e.Ctx); err != nil {
			t.Logf("Warning: failed to terminate minio container: %v", err)
		}
	}

	t.Log("Test environment cleaned up")
}

// CleanDB truncates all tables to provide clean state for each test
// Call this at the beginning of each test function for test isolation
func (e *TestEnvironment) CleanDB(t *testing.T) {
	t.Helper()

	for _, table := range testTables {
		if _, err := e.DB.Exec(e.Ctx, "TRUNCATE TABLE "+table+" RESTART IDENTITY CASCADE"); err != nil {
			t.Fatalf("Failed to truncate table %s: %v", table, err)
		}
	}
}
