package analytics

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/sain-invites/sibc-dashboard/internal/timeutil"
)

// LLM call types counted by the routine-calls and weekly-plan-calls KPIs.
const (
	CallTypeDailyRoutine = "daily_routine_generation"
	CallTypeWeeklyPlan   = "weekly_plan_generation"
)

// TopN caps cost and error rankings.
const TopN = 10

// Fallback error keys for rows that carry no error text.
const (
	UnknownLLMError = "Unknown LLM Error"
	UnknownJobError = "Unknown Job Error"
)

// Every timestamp filter projects the instant into the dashboard zone ($3)
// before comparing calendar dates, so a row stored at 23:30 UTC lands on the
// next KST day. Routine tables are keyed by ymd integers instead.

func (s *Store) countTotalUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.queryRow(ctx, `SELECT COUNT(DISTINCT user_id) FROM user_profiles`, nil, &count)
	return count, err
}

// dailyActiveUsers returns distinct users per day, zero-filled by generate_series.
func (s *Store) dailyActiveUsers(ctx context.Context, r timeutil.Range) (map[string]int64, error) {
	query := `
		WITH date_series AS (
			SELECT generate_series($1::date, $2::date, interval '1 day')::date AS d
		),
		dau AS (
			SELECT
				(created_at AT TIME ZONE $3)::date AS d,
				COUNT(DISTINCT user_id) AS users
			FROM user_event_log
			WHERE (created_at AT TIME ZONE $3)::date BETWEEN $1::date AND $2::date
			GROUP BY 1
		)
		SELECT
			to_char(ds.d, 'YYYY-MM-DD'),
			COALESCE(dau.users, 0)
		FROM date_series ds
		LEFT JOIN dau ON dau.d = ds.d
		ORDER BY ds.d
	`
	return s.dailyCounts(ctx, query, s.rangeArgs(r)...)
}

// countActiveUsers counts distinct users with at least one event in r. Used for WAU and MAU.
func (s *Store) countActiveUsers(ctx context.Context, r timeutil.Range) (int64, error) {
	query := `
		SELECT COUNT(DISTINCT user_id)
		FROM user_event_log
		WHERE (created_at AT TIME ZONE $3)::date BETWEEN $1::date AND $2::date
	`
	var count int64
	err := s.queryRow(ctx, query, s.rangeArgs(r), &count)
	return count, err
}

func (s *Store) summarizeEvents(ctx context.Context, r timeutil.Range) (eventSummary, error) {
	query := `
		SELECT COUNT(*), COUNT(DISTINCT user_id)
		FROM user_event_log
		WHERE (created_at AT TIME ZONE $3)::date BETWEEN $1::date AND $2::date
	`
	var summary eventSummary
	err := s.queryRow(ctx, query, s.rangeArgs(r), &summary.TotalEvents, &summary.Users)
	return summary, err
}

func (s *Store) dailyEventCounts(ctx context.Context, r timeutil.Range) (map[string]int64, error) {
	query := `
		SELECT
			to_char((created_at AT TIME ZONE $3)::date, 'YYYY-MM-DD') AS day,
			COUNT(*)
		FROM user_event_log
		WHERE (created_at AT TIME ZONE $3)::date BETWEEN $1::date AND $2::date
		GROUP BY 1
		ORDER BY 1
	`
	return s.dailyCounts(ctx, query, s.rangeArgs(r)...)
}

// dailyNewUserCounts counts users whose first-ever event day falls in r.
// The first day is computed over the whole table, not just the range.
func (s *Store) dailyNewUserCounts(ctx context.Context, r timeutil.Range) (map[string]int64, error) {
	query := `
		WITH first_event AS (
			SELECT
				user_id,
				MIN((created_at AT TIME ZONE $3)::date) AS first_day
			FROM user_event_log
			GROUP BY user_id
		)
		SELECT
			to_char(first_day, 'YYYY-MM-DD'),
			COUNT(*)
		FROM first_event
		WHERE first_day BETWEEN $1::date AND $2::date
		GROUP BY first_day
		ORDER BY first_day
	`
	return s.dailyCounts(ctx, query, s.rangeArgs(r)...)
}

// dailyRoutineCompletion groups routine rows by ymd. Rows whose ymd is not a
// real calendar date are dropped.
func (s *Store) dailyRoutineCompletion(ctx context.Context, r timeutil.Range) (map[string]completionCount, error) {
	query := `
		SELECT
			ymd,
			COUNT(*),
			COUNT(*) FILTER (WHERE completed_at IS NOT NULL)
		FROM daily_routine_activities
		WHERE ymd BETWEEN $1 AND $2
		GROUP BY ymd
		ORDER BY ymd
	`
	result := make(map[string]completionCount)
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var ymd int
		var c completionCount
		if err := rows.Scan(&ymd, &c.Total, &c.Completed); err != nil {
			return err
		}
		day, ok := timeutil.FormatYMD(ymd, s.loc)
		if !ok {
			return nil
		}
		prev := result[day]
		result[day] = completionCount{Completed: prev.Completed + c.Completed, Total: prev.Total + c.Total}
		return nil
	}, r.StartYMD(), r.EndYMD())
	if err != nil {
		return nil, err
	}
	return result, nil
}

// dailyLLMUsage returns calls, errors and cost per day. A call is an error
// when its status is 'error' or it carries any error_code.
func (s *Store) dailyLLMUsage(ctx context.Context, r timeutil.Range) (map[string]llmDay, error) {
	query := `
		SELECT
			to_char((ts AT TIME ZONE $3)::date, 'YYYY-MM-DD') AS day,
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'error' OR error_code IS NOT NULL),
			COALESCE(SUM(cost_usd), 0)
		FROM llm_usage
		WHERE (ts AT TIME ZONE $3)::date BETWEEN $1::date AND $2::date
		GROUP BY 1
		ORDER BY 1
	`
	result := make(map[string]llmDay)
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var day string
		var d llmDay
		if err := rows.Scan(&day, &d.Calls, &d.Errors, &d.Cost); err != nil {
			return err
		}
		result[day] = d
		return nil
	}, s.rangeArgs(r)...)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) countCallType(ctx context.Context, r timeutil.Range, callType string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM llm_usage
		WHERE call_type = $4
			AND (ts AT TIME ZONE $3)::date BETWEEN $1::date AND $2::date
	`
	var count int64
	err := s.queryRow(ctx, query, append(s.rangeArgs(r), callType), &count)
	return count, err
}

// dailyJobs buckets processing jobs by the day they started.
func (s *Store) dailyJobs(ctx context.Context, r timeutil.Range) (map[string]jobDay, error) {
	query := `
		SELECT
			to_char((started_at AT TIME ZONE $3)::date, 'YYYY-MM-DD') AS day,
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM processing_jobs
		WHERE (started_at AT TIME ZONE $3)::date BETWEEN $1::date AND $2::date
		GROUP BY 1
		ORDER BY 1
	`
	result := make(map[string]jobDay)
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var day string
		var d jobDay
		if err := rows.Scan(&day, &d.Total, &d.Failed); err != nil {
			return err
		}
		result[day] = d
		return nil
	}, s.rangeArgs(r)...)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// costByCallType ranks call types by summed cost, name ascending on ties.
func (s *Store) costByCallType(ctx context.Context, r timeutil.Range) ([]costGroup, error) {
	query := `
		SELECT call_type, COALESCE(SUM(cost_usd), 0) AS cost
		FROM llm_usage
		WHERE (ts AT TIME ZONE $3)::date BETWEEN $1::date AND $2::date
			AND call_type IS NOT NULL
			AND call_type <> ''
		GROUP BY call_type
		ORDER BY cost DESC, call_type COLLATE "C" ASC
		LIMIT $4
	`
	return s.costGroups(ctx, query, append(s.rangeArgs(r), TopN)...)
}

// costByModel ranks models by summed cost. Blank and 'unknown' models are excluded.
func (s *Store) costByModel(ctx context.Context, r timeutil.Range) ([]costGroup, error) {
	query := `
		SELECT model, COALESCE(SUM(cost_usd), 0) AS cost
		FROM llm_usage
		WHERE (ts AT TIME ZONE $3)::date BETWEEN $1::date AND $2::date
			AND NULLIF(TRIM(model), '') IS NOT NULL
			AND LOWER(TRIM(model)) <> 'unknown'
		GROUP BY model
		ORDER BY cost DESC, model COLLATE "C" ASC
		LIMIT $4
	`
	return s.costGroups(ctx, query, append(s.rangeArgs(r), TopN)...)
}

// llmErrorGroups counts LLM errors by message, falling back to the code.
// Groups are returned untruncated; ranking happens after key truncation.
func (s *Store) llmErrorGroups(ctx context.Context, r timeutil.Range) ([]errorGroup, error) {
	query := `
		SELECT
			COALESCE(NULLIF(error_message, ''), NULLIF(error_code, ''), $4) AS name,
			COUNT(*)
		FROM llm_usage
		WHERE (ts AT TIME ZONE $3)::date BETWEEN $1::date AND $2::date
			AND (status = 'error' OR error_code IS NOT NULL)
		GROUP BY 1
	`
	return s.errorGroups(ctx, query, append(s.rangeArgs(r), UnknownLLMError)...)
}

func (s *Store) jobErrorGroups(ctx context.Context, r timeutil.Range) ([]errorGroup, error) {
	query := `
		SELECT
			COALESCE(NULLIF(error, ''), $4) AS name,
			COUNT(*)
		FROM processing_jobs
		WHERE status = 'failed'
			AND (started_at AT TIME ZONE $3)::date BETWEEN $1::date AND $2::date
		GROUP BY 1
	`
	return s.errorGroups(ctx, query, append(s.rangeArgs(r), UnknownJobError)...)
}

func (s *Store) completionByDomain(ctx context.Context, r timeutil.Range) ([]completionGroup, error) {
	query := `
		SELECT
			domain,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE completed_at IS NOT NULL)
		FROM daily_routine_activities
		WHERE ymd BETWEEN $1 AND $2
			AND domain IS NOT NULL
			AND domain <> ''
		GROUP BY domain
		ORDER BY total DESC, domain COLLATE "C" ASC
	`
	return s.completionGroups(ctx, query, r)
}

func (s *Store) completionByPriority(ctx context.Context, r timeutil.Range) ([]completionGroup, error) {
	query := `
		SELECT
			priority,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE completed_at IS NOT NULL)
		FROM daily_routine_activities
		WHERE ymd BETWEEN $1 AND $2
			AND priority IS NOT NULL
			AND priority <> ''
		GROUP BY priority
		ORDER BY
			CASE priority
				WHEN 'required' THEN 1
				WHEN 'optional' THEN 2
				ELSE 3
			END,
			total DESC,
			priority COLLATE "C" ASC
	`
	return s.completionGroups(ctx, query, r)
}

func (s *Store) completionByPeriod(ctx context.Context, r timeutil.Range) ([]completionGroup, error) {
	query := `
		SELECT
			activity_period,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE completed_at IS NOT NULL)
		FROM daily_routine_activities
		WHERE ymd BETWEEN $1 AND $2
			AND activity_period IS NOT NULL
			AND activity_period <> ''
		GROUP BY activity_period
		ORDER BY
			CASE activity_period
				WHEN 'anytime' THEN 1
				WHEN 'morning' THEN 2
				WHEN 'lunch' THEN 3
				WHEN 'afternoon' THEN 4
				WHEN 'evening' THEN 5
				WHEN 'dinner' THEN 6
				WHEN 'night' THEN 7
				ELSE 99
			END,
			total DESC,
			activity_period COLLATE "C" ASC
	`
	return s.completionGroups(ctx, query, r)
}

// =============================================================================
// Scan helpers
// =============================================================================

func (s *Store) dailyCounts(ctx context.Context, query string, args ...any) (map[string]int64, error) {
	result := make(map[string]int64)
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var day string
		var count int64
		if err := rows.Scan(&day, &count); err != nil {
			return err
		}
		result[day] = count
		return nil
	}, args...)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) costGroups(ctx context.Context, query string, args ...any) ([]costGroup, error) {
	groups := []costGroup{}
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var g costGroup
		var cost decimal.Decimal
		if err := rows.Scan(&g.Name, &cost); err != nil {
			return err
		}
		g.Cost = cost
		groups = append(groups, g)
		return nil
	}, args...)
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *Store) errorGroups(ctx context.Context, query string, args ...any) ([]errorGroup, error) {
	groups := []errorGroup{}
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var g errorGroup
		if err := rows.Scan(&g.Name, &g.Count); err != nil {
			return err
		}
		groups = append(groups, g)
		return nil
	}, args...)
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *Store) completionGroups(ctx context.Context, query string, r timeutil.Range) ([]completionGroup, error) {
	groups := []completionGroup{}
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var g completionGroup
		if err := rows.Scan(&g.Name, &g.Total, &g.Completed); err != nil {
			return err
		}
		groups = append(groups, g)
		return nil
	}, r.StartYMD(), r.EndYMD())
	if err != nil {
		return nil, err
	}
	return groups, nil
}
