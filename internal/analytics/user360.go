package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/sain-invites/sibc-dashboard/internal/metrics"
	"github.com/sain-invites/sibc-dashboard/internal/timeutil"
)

// GetUser360 assembles the detail view for one user over r. Unknown users are
// not an error: every section comes back empty.
func (s *Store) GetUser360(ctx context.Context, userID string, r timeutil.Range) (*User360Response, error) {
	if r.Start.IsZero() || r.End.IsZero() {
		return nil, ErrNilRange
	}
	ctx, span := tracer.Start(ctx, "analytics.get_user360", rangeAttributes(r))
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	data, err := s.loadUser360Data(ctx, userID, r)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return assembleUser360(userID, r, data, s.tz, s.now()), nil
}

func (s *Store) loadUser360Data(ctx context.Context, userID string, r timeutil.Range) (*user360Data, error) {
	data := &user360Data{}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	run := func(name string, fn func(ctx context.Context) error) {
		g.Go(func() error {
			if err := fn(gctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}

	run("profile", func(ctx context.Context) error {
		p, err := s.userProfile(ctx, userID)
		if err != nil {
			return err
		}
		mu.Lock()
		data.Profile = p
		mu.Unlock()
		return nil
	})
	run("availability", func(ctx context.Context) error {
		a, err := s.dataAvailability(ctx, userID)
		if err != nil {
			return err
		}
		mu.Lock()
		data.Availability = a
		mu.Unlock()
		return nil
	})
	run("week_plan", func(ctx context.Context) error {
		plan, err := s.currentWeekPlan(ctx, userID)
		if err != nil {
			return err
		}
		var goals []goalRow
		if plan != nil {
			if goals, err = s.weeklyGoals(ctx, plan.ID); err != nil {
				return err
			}
		}
		mu.Lock()
		data.WeekPlan = plan
		data.Goals = goals
		mu.Unlock()
		return nil
	})
	run("daily_completion", func(ctx context.Context) error {
		rows, err := s.userDailyCompletion(ctx, userID, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.DailyCompletion = rows
		mu.Unlock()
		return nil
	})
	run("incomplete_domains", func(ctx context.Context) error {
		rows, err := s.userIncompleteDomains(ctx, userID, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.IncompleteByArea = rows
		mu.Unlock()
		return nil
	})
	run("recent_messages", func(ctx context.Context) error {
		rows, err := s.recentMessages(ctx, userID)
		if err != nil {
			return err
		}
		mu.Lock()
		data.Messages = rows
		mu.Unlock()
		return nil
	})
	run("message_stats", func(ctx context.Context) error {
		stats, err := s.messageStats(ctx, userID, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.MessageStats = stats
		mu.Unlock()
		return nil
	})
	run("chat_threads", func(ctx context.Context) error {
		threads, err := s.chatThreads(ctx, userID)
		if err != nil {
			return err
		}
		ids := make([]string, len(threads))
		for i, t := range threads {
			ids[i] = t.ThreadID
		}
		var turns []turnRow
		if len(ids) > 0 {
			if turns, err = s.threadTurns(ctx, ids); err != nil {
				return err
			}
		}
		mu.Lock()
		data.Threads = threads
		data.Turns = turns
		mu.Unlock()
		return nil
	})
	run("llm_by_call_type", func(ctx context.Context) error {
		rows, err := s.userLLMByCallType(ctx, userID, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.CallTypes = rows
		mu.Unlock()
		return nil
	})
	run("llm_totals", func(ctx context.Context) error {
		totals, err := s.userLLMTotals(ctx, userID, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.LLMTotals = totals
		mu.Unlock()
		return nil
	})
	run("recent_failures", func(ctx context.Context) error {
		rows, err := s.recentJobFailures(ctx, userID, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.Failures = rows
		mu.Unlock()
		return nil
	})
	run("validation_failures", func(ctx context.Context) error {
		rows, err := s.validationFailures(ctx, userID, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.Validations = rows
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

// =============================================================================
// Queries
// =============================================================================

func (s *Store) userProfile(ctx context.Context, userID string) (*profileRow, error) {
	query := `
		SELECT
			up.user_id,
			up.user_name,
			up.age,
			up.biological_age,
			up.updated_at,
			up.top_risks::text,
			st.signature_type,
			st.signature_type_name,
			st.signature_type_desc,
			st.signature_type_explain_summary,
			tc.target_daily_calorie,
			tc.calorie_calculation_basis::text,
			tc.health_status_summary,
			ug.patient_summary,
			COALESCE(ug.lifestyle_guide_json IS NOT NULL, false)
		FROM user_profiles up
		LEFT JOIN LATERAL (
			SELECT signature_type, signature_type_name, signature_type_desc, signature_type_explain_summary
			FROM user_signature_type
			WHERE user_id = up.user_id
			ORDER BY created_at DESC NULLS LAST
			LIMIT 1
		) st ON true
		LEFT JOIN LATERAL (
			SELECT target_daily_calorie, calorie_calculation_basis, health_status_summary
			FROM target_calorie
			WHERE user_id = up.user_id
			ORDER BY updated_at DESC NULLS LAST
			LIMIT 1
		) tc ON true
		LEFT JOIN LATERAL (
			SELECT patient_summary, lifestyle_guide_json
			FROM user_guardrail
			WHERE user_id = up.user_id
			ORDER BY updated_at DESC NULLS LAST
			LIMIT 1
		) ug ON true
		WHERE up.user_id = $1
	`
	var p profileRow
	err := s.queryRow(ctx, query, []any{userID},
		&p.UserID, &p.UserName, &p.Age, &p.BiologicalAge, &p.LastUpdate, &p.TopRisks,
		&p.SignatureType, &p.SignatureTypeName, &p.SignatureTypeDesc, &p.SignatureTypeExplainSummary,
		&p.TargetCalorie, &p.CalorieBasis, &p.HealthStatusSummary,
		&p.PatientSummary, &p.HasLifestyleGuide,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) dataAvailability(ctx context.Context, userID string) (DataAvailability, error) {
	query := `
		SELECT
			EXISTS(SELECT 1 FROM user_profiles WHERE user_id = $1),
			EXISTS(SELECT 1 FROM user_signature_type WHERE user_id = $1),
			EXISTS(SELECT 1 FROM weekly_routine_plan WHERE user_id = $1),
			EXISTS(SELECT 1 FROM chat_threads WHERE user_id = $1 OR split_part(thread_id, ':', 2) = $1),
			EXISTS(SELECT 1 FROM user_event_log WHERE user_id = $1)
	`
	var a DataAvailability
	err := s.queryRow(ctx, query, []any{userID},
		&a.HasProfile, &a.HasSignature, &a.HasWeeklyPlan, &a.HasChat, &a.HasEvent)
	return a, err
}

func (s *Store) currentWeekPlan(ctx context.Context, userID string) (*weekPlanRow, error) {
	query := `
		SELECT
			id,
			to_char(week_start_date, 'YYYY-MM-DD'),
			to_char(week_end_date, 'YYYY-MM-DD'),
			weekly_theme,
			domain
		FROM weekly_routine_plan
		WHERE user_id = $1
		ORDER BY week_start_date DESC
		LIMIT 1
	`
	var p weekPlanRow
	err := s.queryRow(ctx, query, []any{userID},
		&p.ID, &p.WeekStartDate, &p.WeekEndDate, &p.WeeklyTheme, &p.Domain)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) weeklyGoals(ctx context.Context, planID int64) ([]goalRow, error) {
	query := `
		SELECT
			domain,
			title,
			description,
			weekly_target_count,
			weekly_completed_count,
			completion_ratio
		FROM weekly_routine_goal
		WHERE weekly_routine_plan_id = $1
		ORDER BY domain, id
	`
	var goals []goalRow
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var g goalRow
		if err := rows.Scan(&g.Domain, &g.Title, &g.Description, &g.TargetCount, &g.CompletedCount, &g.CompletionRatio); err != nil {
			return err
		}
		goals = append(goals, g)
		return nil
	}, planID)
	return goals, err
}

// userDailyCompletion returns planned and completed routine counts per ymd day.
// Days whose ymd is not a calendar date are dropped.
func (s *Store) userDailyCompletion(ctx context.Context, userID string, r timeutil.Range) ([]dailyCompletionRow, error) {
	query := `
		SELECT
			ymd,
			COUNT(*),
			COUNT(*) FILTER (WHERE completed_at IS NOT NULL)
		FROM daily_routine_activities
		WHERE user_id = $1
			AND ymd BETWEEN $2 AND $3
		GROUP BY ymd
		ORDER BY ymd
	`
	var result []dailyCompletionRow
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var ymd int
		var d dailyCompletionRow
		if err := rows.Scan(&ymd, &d.Planned, &d.Completed); err != nil {
			return err
		}
		day, ok := timeutil.FormatYMD(ymd, s.loc)
		if !ok {
			return nil
		}
		d.Date = day
		result = append(result, d)
		return nil
	}, userID, r.StartYMD(), r.EndYMD())
	return result, err
}

func (s *Store) userIncompleteDomains(ctx context.Context, userID string, r timeutil.Range) ([]incompleteDomainRow, error) {
	query := `
		SELECT
			domain,
			COUNT(*) FILTER (WHERE completed_at IS NULL) AS incomplete,
			COUNT(*)
		FROM daily_routine_activities
		WHERE user_id = $1
			AND ymd BETWEEN $2 AND $3
		GROUP BY domain
		HAVING COUNT(*) FILTER (WHERE completed_at IS NULL) > 0
		ORDER BY incomplete DESC, domain COLLATE "C" ASC NULLS LAST
	`
	var result []incompleteDomainRow
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var d incompleteDomainRow
		if err := rows.Scan(&d.Domain, &d.Incomplete, &d.Total); err != nil {
			return err
		}
		result = append(result, d)
		return nil
	}, userID, r.StartYMD(), r.EndYMD())
	return result, err
}

func (s *Store) recentMessages(ctx context.Context, userID string) ([]messageRow, error) {
	query := `
		SELECT
			msg_id,
			transmit_title,
			transmit_msg,
			created_at,
			COALESCE(sent, false)
		FROM send_messages
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	var result []messageRow
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var m messageRow
		if err := rows.Scan(&m.ID, &m.Title, &m.Body, &m.CreatedAt, &m.Sent); err != nil {
			return err
		}
		result = append(result, m)
		return nil
	}, userID, RecentItemsCap)
	return result, err
}

func (s *Store) messageStats(ctx context.Context, userID string, r timeutil.Range) (MessageStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE sent),
			COUNT(*) FILTER (WHERE sent IS NOT TRUE)
		FROM send_messages
		WHERE user_id = $1
			AND (created_at AT TIME ZONE $4)::date BETWEEN $2::date AND $3::date
	`
	var stats MessageStats
	err := s.queryRow(ctx, query, []any{userID, r.StartDate(), r.EndDate(), s.tz},
		&stats.SentCount, &stats.PendingCount)
	return stats, err
}

// chatThreads returns the most recently updated threads. Older threads have no
// user_id and carry it as the second ':'-separated part of thread_id.
func (s *Store) chatThreads(ctx context.Context, userID string) ([]threadRow, error) {
	query := `
		SELECT
			thread_id,
			bot_type,
			asked_turns,
			summary,
			updated_at
		FROM chat_threads
		WHERE user_id = $1
			OR (user_id IS NULL AND split_part(thread_id, ':', 2) = $1)
		ORDER BY updated_at DESC
		LIMIT $2
	`
	var result []threadRow
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var t threadRow
		if err := rows.Scan(&t.ThreadID, &t.BotType, &t.AskedTurns, &t.Summary, &t.UpdatedAt); err != nil {
			return err
		}
		result = append(result, t)
		return nil
	}, userID, RecentItemsCap)
	return result, err
}

// threadTurns fetches the turns of every listed thread in one round trip.
func (s *Store) threadTurns(ctx context.Context, threadIDs []string) ([]turnRow, error) {
	query := `
		SELECT
			thread_id,
			turn_index,
			event_type,
			question_snapshot::text,
			submitted_answer::text,
			response::text,
			user_intent,
			incomplete_intent,
			termination_reason,
			created_at
		FROM chat_threads_turns
		WHERE thread_id = ANY($1)
		ORDER BY thread_id, created_at ASC, turn_index ASC
	`
	var result []turnRow
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var t turnRow
		if err := rows.Scan(&t.ThreadID, &t.TurnIndex, &t.EventType, &t.QuestionSnapshot,
			&t.SubmittedAnswer, &t.Response, &t.UserIntent, &t.IncompleteIntent,
			&t.TerminationReason, &t.CreatedAt); err != nil {
			return err
		}
		result = append(result, t)
		return nil
	}, pq.Array(threadIDs))
	return result, err
}

func (s *Store) userLLMByCallType(ctx context.Context, userID string, r timeutil.Range) ([]callTypeRow, error) {
	query := `
		SELECT
			call_type,
			COUNT(*),
			COALESCE(SUM(cost_usd), 0) AS cost,
			COALESCE(ROUND(AVG(latency_ms)), 0)::bigint,
			COUNT(*) FILTER (WHERE status = 'error' OR error_code IS NOT NULL)
		FROM llm_usage
		WHERE user_id = $1
			AND (ts AT TIME ZONE $4)::date BETWEEN $2::date AND $3::date
		GROUP BY call_type
		ORDER BY cost DESC, call_type COLLATE "C" ASC NULLS LAST
	`
	var result []callTypeRow
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var c callTypeRow
		if err := rows.Scan(&c.CallType, &c.Calls, &c.Cost, &c.AvgLatency, &c.Errors); err != nil {
			return err
		}
		result = append(result, c)
		return nil
	}, userID, r.StartDate(), r.EndDate(), s.tz)
	return result, err
}

func (s *Store) userLLMTotals(ctx context.Context, userID string, r timeutil.Range) (llmTotalsRow, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(cost_usd), 0),
			COALESCE(ROUND(AVG(latency_ms)), 0)::bigint,
			COUNT(*) FILTER (WHERE status = 'error' OR error_code IS NOT NULL)
		FROM llm_usage
		WHERE user_id = $1
			AND (ts AT TIME ZONE $4)::date BETWEEN $2::date AND $3::date
	`
	var t llmTotalsRow
	err := s.queryRow(ctx, query, []any{userID, r.StartDate(), r.EndDate(), s.tz},
		&t.Calls, &t.Cost, &t.AvgLatency, &t.Errors)
	return t, err
}

func (s *Store) recentJobFailures(ctx context.Context, userID string, r timeutil.Range) ([]failureRow, error) {
	query := `
		SELECT
			id,
			status,
			error,
			started_at,
			finished_at,
			(EXTRACT(EPOCH FROM (finished_at - started_at)) * 1000)::float8
		FROM processing_jobs
		WHERE user_id = $1
			AND status = 'failed'
			AND (started_at AT TIME ZONE $4)::date BETWEEN $2::date AND $3::date
		ORDER BY started_at DESC
		LIMIT $5
	`
	var result []failureRow
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var f failureRow
		if err := rows.Scan(&f.ID, &f.Status, &f.Error, &f.StartedAt, &f.FinishedAt, &f.DurationMs); err != nil {
			return err
		}
		result = append(result, f)
		return nil
	}, userID, r.StartDate(), r.EndDate(), s.tz, RecentItemsCap)
	return result, err
}

func (s *Store) validationFailures(ctx context.Context, userID string, r timeutil.Range) ([]validationRow, error) {
	query := `
		SELECT
			thread_id,
			bot_type,
			reason_code,
			reason_text,
			created_at
		FROM user_state_validation_logs
		WHERE user_id = $1
			AND ymd BETWEEN $2 AND $3
		ORDER BY created_at DESC
		LIMIT $4
	`
	var result []validationRow
	err := s.queryRows(ctx, query, func(rows *sql.Rows) error {
		var v validationRow
		if err := rows.Scan(&v.ThreadID, &v.BotType, &v.ReasonCode, &v.ReasonText, &v.CreatedAt); err != nil {
			return err
		}
		result = append(result, v)
		return nil
	}, userID, r.StartYMD(), r.EndYMD(), RecentItemsCap)
	return result, err
}

// =============================================================================
// Assembly
// =============================================================================

func assembleUser360(userID string, r timeutil.Range, data *user360Data, tz string, now time.Time) *User360Response {
	if data == nil {
		data = &user360Data{}
	}
	return &User360Response{
		Summary:       buildSummary(userID, data),
		Routine:       buildRoutine(data),
		Communication: buildCommunication(data),
		Operations:    buildOperations(data),
		Meta: User360Meta{
			UserID:      userID,
			StartDate:   r.StartDate(),
			EndDate:     r.EndDate(),
			GeneratedAt: now.UTC().Format(time.RFC3339),
			Timezone:    tz,
		},
	}
}

func buildSummary(userID string, data *user360Data) User360Summary {
	summary := User360Summary{
		UserID:           userID,
		UserName:         UnknownUser,
		TopRisks:         []RiskScore{},
		DataAvailability: data.Availability,
	}
	p := data.Profile
	if p == nil {
		return summary
	}

	summary.UserID = p.UserID
	if p.UserName.Valid && p.UserName.String != "" {
		summary.UserName = p.UserName.String
	}
	summary.Age = positiveInt(p.Age)
	summary.BiologicalAge = positiveInt(p.BiologicalAge)
	summary.SignatureType = nonEmpty(p.SignatureType)
	summary.SignatureTypeName = nonEmpty(p.SignatureTypeName)
	summary.SignatureTypeDesc = nonEmpty(p.SignatureTypeDesc)
	summary.SignatureTypeExplainSummary = nonEmpty(p.SignatureTypeExplainSummary)
	if p.TargetCalorie.Valid && !p.TargetCalorie.Decimal.IsZero() {
		v := p.TargetCalorie.Decimal.InexactFloat64()
		summary.TargetCalorie = &v
	}
	summary.BMR, summary.TDEE = parseCalorieBasis(p.CalorieBasis)
	summary.HealthStatusSummary = nonEmpty(p.HealthStatusSummary)
	summary.TopRisks = parseTopRisks(p.TopRisks)
	summary.PatientSummary = nonEmpty(p.PatientSummary)
	summary.HasLifestyleGuide = p.HasLifestyleGuide
	summary.LastUpdate = isoTime(p.LastUpdate)
	return summary
}

func buildRoutine(data *user360Data) User360Routine {
	routine := User360Routine{
		WeeklyGoals:          make([]WeeklyGoal, 0, len(data.Goals)),
		DailyCompletionTrend: make([]DailyCompletion, 0, len(data.DailyCompletion)),
		IncompleteDomains:    make([]IncompleteDomain, 0, len(data.IncompleteByArea)),
	}

	if p := data.WeekPlan; p != nil {
		routine.CurrentWeekPlan = &WeekPlan{
			WeekStartDate: p.WeekStartDate,
			WeekEndDate:   p.WeekEndDate,
			WeeklyTheme:   nullString(p.WeeklyTheme),
			Domain:        nullString(p.Domain),
		}
	}

	for _, g := range data.Goals {
		goal := WeeklyGoal{
			Domain:         orDefault(g.Domain, UnknownLabel),
			Title:          g.Title.String,
			Description:    nullString(g.Description),
			TargetCount:    g.TargetCount.Int64,
			CompletedCount: g.CompletedCount.Int64,
		}
		if g.CompletionRatio.Valid {
			goal.CompletionRate = metrics.Ratio01(g.CompletionRatio.Decimal.InexactFloat64())
		}
		routine.WeeklyGoals = append(routine.WeeklyGoals, goal)
	}

	var planned, completed int64
	for _, d := range data.DailyCompletion {
		planned += d.Planned
		completed += d.Completed
		routine.DailyCompletionTrend = append(routine.DailyCompletionTrend, DailyCompletion{
			Date:           d.Date,
			Planned:        d.Planned,
			Completed:      d.Completed,
			CompletionRate: metrics.RatePercent(float64(d.Completed), float64(d.Planned)),
		})
	}
	routine.OverallCompletionRate = metrics.RatePercent(float64(completed), float64(planned))

	for _, d := range data.IncompleteByArea {
		routine.IncompleteDomains = append(routine.IncompleteDomains, IncompleteDomain{
			Domain:          orDefault(d.Domain, UnknownLabel),
			IncompleteCount: d.Incomplete,
			TotalCount:      d.Total,
			Percentage:      metrics.RatePercent(float64(d.Incomplete), float64(d.Total)),
		})
	}
	return routine
}

func buildCommunication(data *user360Data) User360Communication {
	comm := User360Communication{
		Stats:          data.MessageStats,
		RecentMessages: make([]RecentMessage, 0, len(data.Messages)),
		ChatThreads:    make([]ChatThread, 0, len(data.Threads)),
	}

	for _, m := range data.Messages {
		comm.RecentMessages = append(comm.RecentMessages, RecentMessage{
			ID:          m.ID,
			Title:       orDefault(m.Title, UntitledText),
			BodyPreview: preview(m.Body.String, previewRunes),
			BodyFull:    nonEmpty(m.Body),
			CreatedAt:   m.CreatedAt.UTC().Format(isoMillis),
			Sent:        m.Sent,
		})
	}

	turnsByThread := make(map[string][]turnRow)
	for _, t := range data.Turns {
		turnsByThread[t.ThreadID] = append(turnsByThread[t.ThreadID], t)
	}
	for _, t := range data.Threads {
		comm.ChatThreads = append(comm.ChatThreads, buildThread(t, turnsByThread[t.ThreadID]))
	}
	return comm
}

// buildThread summarizes a thread from its turns. The summary question and
// answer come from the last turn that has an answer, falling back to the last
// turn; termination and intents always come from the last turn.
func buildThread(t threadRow, turns []turnRow) ChatThread {
	thread := ChatThread{
		ThreadID:   t.ThreadID,
		BotType:    orDefault(t.BotType, UnknownLabel),
		AskedTurns: t.AskedTurns.Int64,
		Summary:    nullString(t.Summary),
		UpdatedAt:  t.UpdatedAt.UTC().Format(isoMillis),
		Turns:      make([]ChatTurn, 0, len(turns)),
	}

	for _, turn := range turns {
		thread.Turns = append(thread.Turns, ChatTurn{
			TurnIndex:         turn.TurnIndex,
			EventType:         nullString(turn.EventType),
			CreatedAt:         turn.CreatedAt.UTC().Format(isoMillis),
			QuestionText:      extractQuestionText(turn.QuestionSnapshot),
			AnswerText:        extractAnswerText(turn.SubmittedAnswer),
			QuestionRaw:       nullString(turn.QuestionSnapshot),
			AnswerRaw:         nullString(turn.SubmittedAnswer),
			ResponseRaw:       nullString(turn.Response),
			TerminationReason: nonEmpty(turn.TerminationReason),
			UserIntent:        nonEmpty(turn.UserIntent),
			IncompleteIntent:  nonEmpty(turn.IncompleteIntent),
		})
	}
	if len(turns) == 0 {
		return thread
	}

	last := turns[len(turns)-1]
	summaryTurn := last
	for _, turn := range slices.Backward(turns) {
		if extractAnswerText(turn.SubmittedAnswer) != nil {
			summaryTurn = turn
			break
		}
	}

	thread.LastQuestion = extractQuestionText(summaryTurn.QuestionSnapshot)
	thread.LastAnswer = extractAnswerText(summaryTurn.SubmittedAnswer)
	thread.LastQuestionRaw = nonEmpty(summaryTurn.QuestionSnapshot)
	thread.LastAnswerRaw = nonEmpty(summaryTurn.SubmittedAnswer)
	thread.ResponseRaw = nonEmpty(summaryTurn.Response)
	thread.TerminationReason = nonEmpty(last.TerminationReason)
	thread.UserIntent = nonEmpty(last.UserIntent)
	thread.IncompleteIntent = nonEmpty(last.IncompleteIntent)
	lastAt := last.CreatedAt.UTC().Format(isoMillis)
	thread.LastTurnAt = &lastAt
	return thread
}

func buildOperations(data *user360Data) User360Operations {
	totals := data.LLMTotals
	ops := User360Operations{
		TotalLLMCalls:      totals.Calls,
		TotalLLMCost:       totals.Cost.InexactFloat64(),
		AvgLatency:         totals.AvgLatency,
		ErrorRate:          metrics.RatePercent(float64(totals.Errors), float64(totals.Calls)),
		LLMUsageByCallType: make([]CallTypeUsage, 0, len(data.CallTypes)),
		RecentFailures:     make([]JobFailure, 0, len(data.Failures)),
		ValidationFailures: make([]ValidationFailure, 0, len(data.Validations)),
	}

	for _, c := range data.CallTypes {
		ops.LLMUsageByCallType = append(ops.LLMUsageByCallType, CallTypeUsage{
			CallType:   orDefault(c.CallType, UnknownLabel),
			CallCount:  c.Calls,
			TotalCost:  c.Cost.InexactFloat64(),
			AvgLatency: c.AvgLatency,
			ErrorCount: c.Errors,
		})
	}

	for _, f := range data.Failures {
		failure := JobFailure{
			ID:         f.ID,
			Status:     f.Status,
			Error:      nullString(f.Error),
			StartedAt:  f.StartedAt.UTC().Format(isoMillis),
			FinishedAt: isoTime(f.FinishedAt),
		}
		if f.DurationMs.Valid {
			ms := int64(math.Round(f.DurationMs.Float64))
			failure.DurationMs = &ms
		}
		ops.RecentFailures = append(ops.RecentFailures, failure)
	}

	for _, v := range data.Validations {
		ops.ValidationFailures = append(ops.ValidationFailures, ValidationFailure{
			ThreadID:   v.ThreadID.String,
			BotType:    orDefault(v.BotType, UnknownLabel),
			ReasonCode: v.ReasonCode.String,
			ReasonText: v.ReasonText.String,
			CreatedAt:  v.CreatedAt.UTC().Format(isoMillis),
		})
	}
	return ops
}

// =============================================================================
// Null helpers
// =============================================================================

// nullString keeps empty strings; nonEmpty maps them to nil as well.
func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nonEmpty(s sql.NullString) *string {
	if !s.Valid || s.String == "" {
		return nil
	}
	v := s.String
	return &v
}

func orDefault(s sql.NullString, fallback string) string {
	if !s.Valid || s.String == "" {
		return fallback
	}
	return s.String
}

func positiveInt(n sql.NullInt64) *int64 {
	if !n.Valid || n.Int64 <= 0 {
		return nil
	}
	v := n.Int64
	return &v
}

func isoTime(t sql.NullTime) *string {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC().Format(isoMillis)
	return &v
}
