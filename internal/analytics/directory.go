package analytics

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/sain-invites/sibc-dashboard/internal/timeutil"
)

// isoMillis matches the timestamps the dashboard client already parses.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// ListUsers returns one page of the user directory. The roster and the three
// per-user aggregates are fetched in parallel and merged in memory.
func (s *Store) ListUsers(ctx context.Context, q DirectoryQuery) (*DirectoryResponse, error) {
	if q.Range.Start.IsZero() || q.Range.End.IsZero() {
		return nil, ErrNilRange
	}
	if q.Page < 1 || q.Page > MaxPage {
		return nil, ErrInvalidPage
	}
	if q.Limit < 1 || q.Limit > MaxLimit {
		return nil, ErrInvalidLimit
	}
	compare, err := directoryComparator(q.Sort, q.Order)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "analytics.list_users", rangeAttributes(q.Range))
	defer span.End()
	span.SetAttributes(
		attribute.String("directory.sort", string(q.Sort)),
		attribute.String("directory.order", string(q.Order)),
		attribute.Int("directory.page", q.Page),
		attribute.Int("directory.limit", q.Limit),
		attribute.Bool("directory.search", q.Search != ""),
	)

	var (
		mu       sync.Mutex
		roster   []rosterEntry
		events   map[string]eventActivity
		routines map[string]routineActivity
		llm      map[string]llmActivity
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		result, err := s.userRoster(gctx, q.Search)
		if err != nil {
			return fmt.Errorf("roster: %w", err)
		}
		mu.Lock()
		roster = result
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		result, err := s.eventsByUser(gctx, q.Range)
		if err != nil {
			return fmt.Errorf("events_by_user: %w", err)
		}
		mu.Lock()
		events = result
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		result, err := s.routinesByUser(gctx, q.Range)
		if err != nil {
			return fmt.Errorf("routines_by_user: %w", err)
		}
		mu.Lock()
		routines = result
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		result, err := s.llmByUser(gctx, q.Range)
		if err != nil {
			return fmt.Errorf("llm_by_user: %w", err)
		}
		mu.Lock()
		llm = result
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	rows := mergeDirectory(roster, events, routines, llm)
	slices.SortStableFunc(rows, compare)
	span.SetAttributes(attribute.Int("directory.total", len(rows)))

	return &DirectoryResponse{
		Users:      toDirectoryUsers(paginate(rows, q.Offset(), q.Limit)),
		Pagination: newPagination(q.Page, q.Limit, len(rows)),
		Meta: DirectoryMeta{
			StartDate: q.Range.StartDate(),
			EndDate:   q.Range.EndDate(),
			Sort:      q.Sort,
			Order:     q.Order,
		},
	}, nil
}

// =============================================================================
// Queries
// =============================================================================

// escapeLike escapes LIKE metacharacters so the search is a literal substring.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *Store) userRoster(ctx context.Context, search string) ([]rosterEntry, error) {
	query := `
		SELECT user_id, COALESCE(user_name, '')
		FROM user_profiles
		WHERE COALESCE(user_name, '') ILIKE $1
			OR user_id ILIKE $1
	`
	pattern := "%" + escapeLike(strings.TrimSpace(search)) + "%"

	roster := []rosterEntry{}
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var e rosterEntry
		if err := rows.Scan(&e.UserID, &e.UserName); err != nil {
			return err
		}
		roster = append(roster, e)
		return nil
	}, pattern)
	if err != nil {
		return nil, err
	}
	return roster, nil
}

func (s *Store) eventsByUser(ctx context.Context, r timeutil.Range) (map[string]eventActivity, error) {
	query := `
		SELECT user_id, COUNT(*), MAX(created_at)
		FROM user_event_log
		WHERE user_id IS NOT NULL
			AND (created_at AT TIME ZONE $3)::date BETWEEN $1::date AND $2::date
		GROUP BY user_id
	`
	result := make(map[string]eventActivity)
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var userID string
		var a eventActivity
		if err := rows.Scan(&userID, &a.Count, &a.Last); err != nil {
			return err
		}
		result[userID] = a
		return nil
	}, s.rangeArgs(r)...)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// routinesByUser counts routine rows per user. A pending row's activity time is
// midnight of its ymd day; a completed row's is its completion time.
func (s *Store) routinesByUser(ctx context.Context, r timeutil.Range) (map[string]routineActivity, error) {
	query := `
		SELECT
			user_id,
			COUNT(*) FILTER (WHERE completed_at IS NOT NULL),
			COUNT(*),
			MAX(completed_at),
			MAX(ymd) FILTER (WHERE completed_at IS NULL)
		FROM daily_routine_activities
		WHERE user_id IS NOT NULL
			AND ymd BETWEEN $1 AND $2
		GROUP BY user_id
	`
	result := make(map[string]routineActivity)
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var userID string
		var a routineActivity
		var pendingYMD sql.NullInt64
		if err := rows.Scan(&userID, &a.Completed, &a.Total, &a.Last, &pendingYMD); err != nil {
			return err
		}
		if pendingYMD.Valid {
			if day, ok := ymdMidnight(int(pendingYMD.Int64), s.loc); ok {
				if !a.Last.Valid || day.After(a.Last.Time) {
					a.Last = sql.NullTime{Time: day, Valid: true}
				}
			}
		}
		result[userID] = a
		return nil
	}, r.StartYMD(), r.EndYMD())
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) llmByUser(ctx context.Context, r timeutil.Range) (map[string]llmActivity, error) {
	query := `
		SELECT user_id, COALESCE(SUM(cost_usd), 0), MAX(ts)
		FROM llm_usage
		WHERE user_id IS NOT NULL
			AND (ts AT TIME ZONE $3)::date BETWEEN $1::date AND $2::date
		GROUP BY user_id
	`
	result := make(map[string]llmActivity)
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var userID string
		var a llmActivity
		if err := rows.Scan(&userID, &a.Cost, &a.Last); err != nil {
			return err
		}
		result[userID] = a
		return nil
	}, s.rangeArgs(r)...)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func ymdMidnight(ymd int, loc *time.Location) (time.Time, bool) {
	day, ok := timeutil.FormatYMD(ymd, loc)
	if !ok {
		return time.Time{}, false
	}
	t, err := timeutil.ParseDate(day, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// =============================================================================
// Merge, sort, paginate
// =============================================================================

// mergeDirectory left-joins the roster against the per-user aggregates.
// Users absent from an aggregate get zeros; lastActivity is the latest of the
// three sources, or nil when none has a timestamp.
func mergeDirectory(roster []rosterEntry, events map[string]eventActivity, routines map[string]routineActivity, llm map[string]llmActivity) []directoryRow {
	rows := make([]directoryRow, 0, len(roster))
	for _, u := range roster {
		e := events[u.UserID]
		rt := routines[u.UserID]
		l := llm[u.UserID]

		rows = append(rows, directoryRow{
			UserID:       u.UserID,
			UserName:     u.UserName,
			EventCount:   e.Count,
			Completed:    rt.Completed,
			Total:        rt.Total,
			LLMCost:      l.Cost,
			LastActivity: latest(e.Last, rt.Last, l.Last),
		})
	}
	return rows
}

func latest(times ...sql.NullTime) *time.Time {
	var out *time.Time
	for _, t := range times {
		if !t.Valid {
			continue
		}
		if out == nil || t.Time.After(*out) {
			v := t.Time
			out = &v
		}
	}
	return out
}

// completionRate is the displayed rate: percent with one decimal, 0 when total is 0.
// Sorting uses the same value so order and display never disagree.
func completionRate(completed, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(completed)/float64(total)*1000) / 10
}

// directoryComparator orders rows by key in the given order. Missing names and
// timestamps sort last in both orders. Ties fall back to name ascending, then
// most recent activity, then user id.
func directoryComparator(key SortKey, order SortOrder) (func(a, b directoryRow) int, error) {
	dir := 1
	switch order {
	case SortAsc:
	case SortDesc:
		dir = -1
	default:
		return nil, ErrInvalidSortOrder
	}

	var primary func(a, b directoryRow) int
	switch key {
	case SortUserName:
		primary = func(a, b directoryRow) int { return compareNames(a.UserName, b.UserName, dir) }
	case SortEventCount:
		primary = func(a, b directoryRow) int { return dir * cmp.Compare(a.EventCount, b.EventCount) }
	case SortCompletedRoutines:
		primary = func(a, b directoryRow) int { return dir * cmp.Compare(a.Completed, b.Completed) }
	case SortCreatedRoutines:
		primary = func(a, b directoryRow) int { return dir * cmp.Compare(a.Total, b.Total) }
	case SortCompletionRate:
		primary = func(a, b directoryRow) int {
			return dir * cmp.Compare(completionRate(a.Completed, a.Total), completionRate(b.Completed, b.Total))
		}
	case SortLLMCost:
		primary = func(a, b directoryRow) int { return dir * a.LLMCost.Cmp(b.LLMCost) }
	case SortLastActivity:
		primary = func(a, b directoryRow) int { return compareTimes(a.LastActivity, b.LastActivity, dir) }
	default:
		return nil, ErrInvalidSortKey
	}

	return func(a, b directoryRow) int {
		if c := primary(a, b); c != 0 {
			return c
		}
		if c := compareNames(a.UserName, b.UserName, 1); c != 0 {
			return c
		}
		if c := compareTimes(a.LastActivity, b.LastActivity, -1); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	}, nil
}

// compareNames compares trimmed names byte-wise; blank names go last.
func compareNames(a, b string, dir int) int {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}
	return dir * strings.Compare(a, b)
}

// compareTimes compares optional timestamps; nil goes last.
func compareTimes(a, b *time.Time, dir int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return dir * a.Compare(*b)
}

func paginate(rows []directoryRow, offset, limit int) []directoryRow {
	if offset >= len(rows) {
		return nil
	}
	end := min(offset+limit, len(rows))
	return rows[offset:end]
}

func newPagination(page, limit, total int) Pagination {
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}
}

func toDirectoryUsers(rows []directoryRow) []DirectoryUser {
	users := make([]DirectoryUser, 0, len(rows))
	for _, r := range rows {
		name := r.UserName
		if strings.TrimSpace(name) == "" {
			name = UnnamedUser
		}
		var last *string
		if r.LastActivity != nil {
			v := r.LastActivity.UTC().Format(isoMillis)
			last = &v
		}
		users = append(users, DirectoryUser{
			UserID:            r.UserID,
			UserName:          name,
			EventCount:        r.EventCount,
			CompletedRoutines: r.Completed,
			TotalRoutines:     r.Total,
			CreatedRoutines:   r.Total,
			CompletionRate:    completionRate(r.Completed, r.Total),
			LLMCost:           r.LLMCost.InexactFloat64(),
			LastActivity:      last,
		})
	}
	return users
}
