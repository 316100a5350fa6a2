package testutil

import (
	"testing"
	"time"
)

// Profile is a user_profiles row.
type Profile struct {
	UserID        string
	UserName      *string
	Age           *int
	BiologicalAge *int
	TopRisks      *string // raw JSON
	UpdatedAt     *time.Time
}

// InsertProfile inserts a roster entry.
func InsertProfile(t *testing.T, env *TestEnvironment, p Profile) {
	t.Helper()

	_, err := env.DB.Exec(env.Ctx, `
		INSERT INTO user_profiles (user_id, user_name, age, biological_age, top_risks, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
	`, p.UserID, p.UserName, p.Age, p.BiologicalAge, p.TopRisks, p.UpdatedAt)
	if err != nil {
		t.Fatalf("failed to insert profile %s: %v", p.UserID, err)
	}
}

// InsertUser inserts a roster entry with just a name.
func InsertUser(t *testing.T, env *TestEnvironment, userID, name string) {
	t.Helper()
	InsertProfile(t, env, Profile{UserID: userID, UserName: &name})
}

// InsertEvent records one activity event.
func InsertEvent(t *testing.T, env *TestEnvironment, userID string, at time.Time) {
	t.Helper()

	_, err := env.DB.Exec(env.Ctx,
		`INSERT INTO user_event_log (user_id, event_type, created_at) VALUES ($1, 'app_open', $2)`,
		userID, at)
	if err != nil {
		t.Fatalf("failed to insert event: %v", err)
	}
}

// Usage is an llm_usage row.
type Usage struct {
	UserID       string
	At           time.Time
	CallType     string
	Model        string
	CostUSD      string // numeric literal
	Status       string
	ErrorCode    *string
	ErrorMessage *string
	LatencyMs    int
}

// InsertUsage records one model call.
func InsertUsage(t *testing.T, env *TestEnvironment, u Usage) {
	t.Helper()

	cost := u.CostUSD
	if cost == "" {
		cost = "0"
	}
	status := u.Status
	if status == "" {
		status = "success"
	}
	_, err := env.DB.Exec(env.Ctx, `
		INSERT INTO llm_usage (user_id, ts, call_type, model, cost_usd, status, error_code, error_message, latency_ms)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5::numeric, $6, $7, $8, $9)
	`, u.UserID, u.At, u.CallType, u.Model, cost, status, u.ErrorCode, u.ErrorMessage, u.LatencyMs)
	if err != nil {
		t.Fatalf("failed to insert llm usage: %v", err)
	}
}

// Routine is a daily_routine_activities row.
type Routine struct {
	UserID      string
	YMD         int
	Domain      string
	Priority    string
	Period      string
	Title       string
	CompletedAt *time.Time
}

// InsertRoutine records one planned routine activity.
func InsertRoutine(t *testing.T, env *TestEnvironment, r Routine) {
	t.Helper()

	_, err := env.DB.Exec(env.Ctx, `
		INSERT INTO daily_routine_activities (user_id, ymd, domain, priority, activity_period, title, completed_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7)
	`, r.UserID, r.YMD, r.Domain, r.Priority, r.Period, r.Title, r.CompletedAt)
	if err != nil {
		t.Fatalf("failed to insert routine: %v", err)
	}
}

// Job is a processing_jobs row.
type Job struct {
	ID         string
	UserID     string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Error      *string
}

// InsertJob records one background job.
func InsertJob(t *testing.T, env *TestEnvironment, j Job) {
	t.Helper()

	_, err := env.DB.Exec(env.Ctx, `
		INSERT INTO processing_jobs (id, user_id, job_type, status, started_at, finished_at, error)
		VALUES ($1, $2, 'routine', $3, $4, $5, $6)
	`, j.ID, j.UserID, j.Status, j.StartedAt, j.FinishedAt, j.Error)
	if err != nil {
		t.Fatalf("failed to insert job %s: %v", j.ID, err)
	}
}

// InsertWeekPlan creates a weekly plan and returns its id. Dates are YYYY-MM-DD.
func InsertWeekPlan(t *testing.T, env *TestEnvironment, userID, weekStart, weekEnd, theme string) int64 {
	t.Helper()

	var id int64
	err := env.DB.QueryRow(env.Ctx, `
		INSERT INTO weekly_routine_plan (user_id, week_start_date, week_end_date, weekly_theme, domain)
		VALUES ($1, $2::date, $3::date, NULLIF($4, ''), 'exercise')
		RETURNING id
	`, userID, weekStart, weekEnd, theme).Scan(&id)
	if err != nil {
		t.Fatalf("failed to insert week plan: %v", err)
	}
	return id
}

// InsertWeekGoal adds a goal to a weekly plan.
func InsertWeekGoal(t *testing.T, env *TestEnvironment, planID int64, domain, title string, target, completed int, ratio string) {
	t.Helper()

	_, err := env.DB.Exec(env.Ctx, `
		INSERT INTO weekly_routine_goal
			(weekly_routine_plan_id, domain, title, weekly_target_count, weekly_completed_count, completion_ratio)
		VALUES ($1, $2, $3, $4, $5, $6::numeric)
	`, planID, domain, title, target, completed, ratio)
	if err != nil {
		t.Fatalf("failed to insert week goal: %v", err)
	}
}

// InsertMessage records one outbound message.
func InsertMessage(t *testing.T, env *TestEnvironment, msgID, userID, title, body string, at time.Time, sent bool) {
	t.Helper()

	_, err := env.DB.Exec(env.Ctx, `
		INSERT INTO send_messages (msg_id, user_id, transmit_title, transmit_msg, created_at, sent)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)
	`, msgID, userID, title, body, at, sent)
	if err != nil {
		t.Fatalf("failed to insert message: %v", err)
	}
}

// InsertThread creates a chat thread. An empty userID stores NULL.
func InsertThread(t *testing.T, env *TestEnvironment, threadID, userID, botType string, askedTurns int, updatedAt time.Time) {
	t.Helper()

	_, err := env.DB.Exec(env.Ctx, `
		INSERT INTO chat_threads (thread_id, user_id, bot_type, asked_turns, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)
	`, threadID, userID, botType, askedTurns, updatedAt)
	if err != nil {
		t.Fatalf("failed to insert thread: %v", err)
	}
}

// Turn is a chat_threads_turns row. Snapshot fields hold raw JSON.
type Turn struct {
	ThreadID    string
	TurnIndex   int
	EventType   string
	Question    *string
	Answer      *string
	Response    *string
	Termination *string
	CreatedAt   time.Time
}

// InsertTurn records one chat turn.
func InsertTurn(t *testing.T, env *TestEnvironment, turn Turn) {
	t.Helper()

	_, err := env.DB.Exec(env.Ctx, `
		INSERT INTO chat_threads_turns
			(thread_id, turn_index, event_type, question_snapshot, submitted_answer, response, termination_reason, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4::jsonb, $5::jsonb, $6::jsonb, $7, $8)
	`, turn.ThreadID, turn.TurnIndex, turn.EventType, turn.Question, turn.Answer, turn.Response, turn.Termination, turn.CreatedAt)
	if err != nil {
		t.Fatalf("failed to insert turn: %v", err)
	}
}

// InsertValidationFailure records one rejected state update.
func InsertValidationFailure(t *testing.T, env *TestEnvironment, userID, threadID, reasonCode string, ymd int, at time.Time) {
	t.Helper()

	_, err := env.DB.Exec(env.Ctx, `
		INSERT INTO user_state_validation_logs (thread_id, user_id, bot_type, reason_code, reason_text, ymd, created_at)
		VALUES ($1, $2, 'coach', $3, 'rejected', $4, $5)
	`, threadID, userID, reasonCode, ymd, at)
	if err != nil {
		t.Fatalf("failed to insert validation failure: %v", err)
	}
}

// InsertSignature records a signature type classification.
func InsertSignature(t *testing.T, env *TestEnvironment, userID, signatureType, name string, createdYMD int) {
	t.Helper()

	_, err := env.DB.Exec(env.Ctx, `
		INSERT INTO user_signature_type (user_id, signature_type, signature_type_name, created_at)
		VALUES ($1, $2, $3, $4)
	`, userID, signatureType, name, createdYMD)
	if err != nil {
		t.Fatalf("failed to insert signature: %v", err)
	}
}

// InsertTargetCalorie records a calorie target with its calculation basis (raw JSON).
func InsertTargetCalorie(t *testing.T, env *TestEnvironment, userID, target string, basis *string, at time.Time) {
	t.Helper()

	_, err := env.DB.Exec(env.Ctx, `
		INSERT INTO target_calorie (user_id, target_daily_calorie, calorie_calculation_basis, updated_at)
		VALUES ($1, $2::numeric, $3::jsonb, $4)
	`, userID, target, basis, at)
	if err != nil {
		t.Fatalf("failed to insert target calorie: %v", err)
	}
}

// InsertGuardrail records a patient summary, with or without a lifestyle guide.
func InsertGuardrail(t *testing.T, env *TestEnvironment, userID, summary string, withGuide bool, at time.Time) {
	t.Helper()

	var guide *string
	if withGuide {
		g := `{"sleep":"23:00"}`
		guide = &g
	}
	_, err := env.DB.Exec(env.Ctx, `
		INSERT INTO user_guardrail (user_id, patient_summary, lifestyle_guide_json, updated_at)
		VALUES ($1, $2, $3::jsonb, $4)
	`, userID, summary, guide, at)
	if err != nil {
		t.Fatalf("failed to insert guardrail: %v", err)
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
