package analytics

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sain-invites/sibc-dashboard/internal/timeutil"
)

var tracer = otel.Tracer("sibc/analytics")

// DefaultQueryTimeout bounds a single aggregation query.
const DefaultQueryTimeout = 15 * time.Second

// ErrNilRange is returned when a zero Range reaches the store.
var ErrNilRange = errors.New("analytics: empty date range")

// Store runs the dashboard aggregations. It is read-only over the source
// tables and holds no per-request state.
type Store struct {
	db           *sql.DB
	tz           string
	loc          *time.Location
	queryTimeout time.Duration
	now          func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTimezone sets the IANA zone used for day bucketing, both in SQL and in Go.
func WithTimezone(name string) Option {
	return func(s *Store) {
		if name == "" {
			return
		}
		s.tz = name
		s.loc = timeutil.LoadZone(name)
	}
}

// WithQueryTimeout bounds each individual query. Non-positive values are ignored.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

// WithClock overrides the clock used for generatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a new analytics store.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:           db,
		tz:           timeutil.DefaultZone,
		loc:          timeutil.LoadZone(timeutil.DefaultZone),
		queryTimeout: DefaultQueryTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the zone the store buckets days in.
func (s *Store) Location() *time.Location { return s.loc }

// Timezone returns the IANA name of the bucketing zone.
func (s *Store) Timezone() string { return s.tz }

// queryContext derives the per-query deadline.
func (s *Store) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// queryRows runs one query under its own timeout and hands each row to scan.
// The connection goes back to the pool before queryRows returns.
func (s *Store) queryRows(ctx context.Context, query string, scan func(*sql.Rows) error, args ...any) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// queryRow runs a single-row query under its own timeout.
func (s *Store) queryRow(ctx context.Context, query string, args []any, dest ...any) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()
	return s.db.QueryRowContext(ctx, query, args...).Scan(dest...)
}

// rangeArgs are the $1/$2/$3 parameters shared by every date-bounded query.
func (s *Store) rangeArgs(r timeutil.Range) []any {
	return []any{r.StartDate(), r.EndDate(), s.tz}
}

func rangeAttributes(r timeutil.Range) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String("range.start", r.StartDate()),
		attribute.String("range.end", r.EndDate()),
	)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
