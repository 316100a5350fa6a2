package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sain-invites/sibc-dashboard/internal/logger"
)

// DefaultSearchPath lets queries name tables without the schema prefix.
const DefaultSearchPath = "sibc, public"

// PoolConfig bounds the connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig returns the pool limits used when nothing is configured.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxIdleTime: 30 * time.Second,
		ConnMaxLifetime: 20 * time.Minute,
	}
}

// DB wraps a PostgreSQL connection pool. It is created once at startup and
// passed to every component that reads from the database.
type DB struct {
	conn *sql.DB
}

// Connect establishes a connection to PostgreSQL with the default pool limits.
func Connect(dsn string) (*DB, error) {
	return ConnectContext(context.Background(), dsn, DefaultPoolConfig())
}

// ConnectContext opens the pool, applies cfg and verifies the connection.
func ConnectContext(ctx context.Context, dsn string, cfg PoolConfig) (*DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// ConnectWithRetry keeps trying to connect until it succeeds or ctx ends.
// The delay starts at one second and doubles up to ten.
func ConnectWithRetry(ctx context.Context, dsn string) (*DB, error) {
	return ConnectWithRetryConfig(ctx, dsn, DefaultPoolConfig())
}

// ConnectWithRetryConfig is ConnectWithRetry with explicit pool limits.
func ConnectWithRetryConfig(ctx context.Context, dsn string, cfg PoolConfig) (*DB, error) {
	delay := time.Second
	for attempt := 1; ; attempt++ {
		database, err := ConnectContext(ctx, dsn, cfg)
		if err == nil {
			return database, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		logger.Warn("database not ready, retrying", "attempt", attempt, "delay", delay.String(), "error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		case <-time.After(delay):
		}
		delay = min(delay*2, 10*time.Second)
	}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that a connection can be acquired.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Exec executes a query without returning rows (for testing/migrations)
func (db *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, args...)
}

// QueryRow executes a query that returns at most one row (for testing)
func (db *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}

// Conn returns the underlying *sql.DB connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Stats reports pool usage.
func (db *DB) Stats() sql.DBStats {
	return db.conn.Stats()
}

// =============================================================================
// DSN
// =============================================================================

// DSNConfig holds discrete connection settings, used when no DATABASE_URL is given.
type DSNConfig struct {
	Host       string
	Port       string
	Name       string
	User       string
	Password   string
	SSLMode    string
	SearchPath string
}

// DSN renders the settings as a postgres:// URL.
func (c DSNConfig) DSN() string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == "" {
		port = "5432"
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   host + ":" + port,
		Path:   "/" + c.Name,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	if c.SearchPath != "" {
		q.Set("search_path", c.SearchPath)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// WithSearchPath adds a search_path runtime parameter to dsn unless it already
// sets one. Both URL and key=value DSNs are accepted.
func WithSearchPath(dsn, searchPath string) string {
	if searchPath == "" || strings.Contains(dsn, "search_path") {
		return dsn
	}
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return dsn
		}
		q := u.Query()
		q.Set("search_path", searchPath)
		u.RawQuery = q.Encode()
		return u.String()
	}
	return strings.TrimSpace(dsn) + " search_path='" + searchPath + "'"
}

// DSNFromEnv resolves the connection string from DATABASE_URL, or from the
// discrete DB_* variables when it is unset. DB_SSL=true requires TLS.
// DB_SEARCH_PATH overrides DefaultSearchPath.
func DSNFromEnv(getenv func(string) string) string {
	searchPath := getenv("DB_SEARCH_PATH")
	if searchPath == "" {
		searchPath = DefaultSearchPath
	}

	if dsn := getenv("DATABASE_URL"); dsn != "" {
		return WithSearchPath(dsn, searchPath)
	}

	cfg := DSNConfig{
		Host:       getenv("DB_HOST"),
		Port:       getenv("DB_PORT"),
		Name:       getenv("DB_NAME"),
		User:       getenv("DB_USER"),
		Password:   getenv("DB_PASSWORD"),
		SearchPath: searchPath,
	}
	if cfg.Name == "" {
		cfg.Name = "invites_loop"
	}
	if cfg.User == "" {
		cfg.User = "postgres"
	}
	if getenv("DB_SSL") == "true" {
		cfg.SSLMode = "require"
	}
	return cfg.DSN()
}
