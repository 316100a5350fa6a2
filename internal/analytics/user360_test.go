package analytics

import (
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func str(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }

func TestParseTopRisks(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []RiskScore
	}{
		{"empty", ``, []RiskScore{}},
		{"not json", `hypertension`, []RiskScore{}},
		{"pairs", `[["hypertension", 0.8], ["diabetes", "0.25"]]`, []RiskScore{{"hypertension", 0.8}, {"diabetes", 0.25}}},
		{"objects", `[{"disease_name": "stroke", "score": 3}, {"name": "gout", "rank": 1}, {"disease_id": "D01"}]`,
			[]RiskScore{{"stroke", 3}, {"gout", 1}, {"D01", 0}}},
		{"json in a string", `"[[\"obesity\", 2]]"`, []RiskScore{{"obesity", 2}}},
		{"malformed entries skipped", `[[], [1, 2], {"score": 4}, ["ok"]]`, []RiskScore{{"ok", 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, parseTopRisks([]byte(tt.raw))); diff != "" {
				t.Errorf("parseTopRisks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseCalorieBasis(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		bmr, tdee *float64
	}{
		{"lowercase", `{"bmr": 1500, "tdee": 2100}`, ptr(1500.0), ptr(2100.0)},
		{"alternate keys", `{"BMR": "1400.5", "base_calorie": 1900}`, ptr(1400.5), ptr(1900.0)},
		{"camel case tdee", `{"baseCalorie": 1800}`, nil, ptr(1800.0)},
		{"not an object", `[1, 2]`, nil, nil},
		{"empty", ``, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bmr, tdee := parseCalorieBasis([]byte(tt.raw))
			if diff := cmp.Diff(tt.bmr, bmr); diff != "" {
				t.Errorf("bmr mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.tdee, tdee); diff != "" {
				t.Errorf("tdee mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name     string
		raw      sql.NullString
		question *string
		answer   *string
	}{
		{"null", sql.NullString{}, nil, nil},
		{"plain text", str("잘 잤어요"), ptr("잘 잤어요"), ptr("잘 잤어요")},
		{"question object", str(`{"question": "오늘 기분은?"}`), ptr("오늘 기분은?"), nil},
		{"content key", str(`{"content": "How did you sleep?"}`), ptr("How did you sleep?"), nil},
		{"answer object", str(`{"answer": "fine"}`), nil, ptr("fine")},
		{"text key serves both", str(`{"text": "yes"}`), ptr("yes"), ptr("yes")},
		{"json string scalar", str(`"hello"`), ptr("hello"), ptr("hello")},
		{"empty json string", str(`""`), nil, nil},
		{"number", str(`42`), nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.question, extractQuestionText(tt.raw)); diff != "" {
				t.Errorf("question mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.answer, extractAnswerText(tt.raw)); diff != "" {
				t.Errorf("answer mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("가", 120)
	if got := preview(long, previewRunes); got != strings.Repeat("가", 100) {
		t.Errorf("preview kept %d runes, want 100", len([]rune(got)))
	}
	if got := preview("short", previewRunes); got != "short" {
		t.Errorf("preview(short) = %q", got)
	}
}

func TestBuildThread(t *testing.T) {
	base := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	thread := threadRow{
		ThreadID:   "coach:u1:1",
		AskedTurns: sql.NullInt64{Int64: 3, Valid: true},
		UpdatedAt:  base.Add(3 * time.Hour),
	}
	turns := []turnRow{
		{ThreadID: "coach:u1:1", TurnIndex: 0, QuestionSnapshot: str(`{"question":"q0"}`), SubmittedAnswer: str(`{"text":"a0"}`), CreatedAt: base},
		{ThreadID: "coach:u1:1", TurnIndex: 1, QuestionSnapshot: str(`{"question":"q1"}`), SubmittedAnswer: str(`{"text":"a1"}`), Response: str(`{"ok":true}`), CreatedAt: base.Add(time.Hour)},
		{ThreadID: "coach:u1:1", TurnIndex: 2, QuestionSnapshot: str(`{"question":"q2"}`), TerminationReason: str("timeout"), UserIntent: str("skip"), CreatedAt: base.Add(2 * time.Hour)},
	}

	got := buildThread(thread, turns)

	if got.BotType != UnknownLabel {
		t.Errorf("BotType = %q, want %q", got.BotType, UnknownLabel)
	}
	if len(got.Turns) != 3 {
		t.Fatalf("got %d turns, want 3", len(got.Turns))
	}
	// Summary comes from the last answered turn; termination from the last turn.
	if got.LastQuestion == nil || *got.LastQuestion != "q1" {
		t.Errorf("LastQuestion = %v, want q1", got.LastQuestion)
	}
	if got.LastAnswer == nil || *got.LastAnswer != "a1" {
		t.Errorf("LastAnswer = %v, want a1", got.LastAnswer)
	}
	if got.ResponseRaw == nil || *got.ResponseRaw != `{"ok":true}` {
		t.Errorf("ResponseRaw = %v", got.ResponseRaw)
	}
	if got.TerminationReason == nil || *got.TerminationReason != "timeout" {
		t.Errorf("TerminationReason = %v, want timeout", got.TerminationReason)
	}
	if got.UserIntent == nil || *got.UserIntent != "skip" {
		t.Errorf("UserIntent = %v, want skip", got.UserIntent)
	}
	if got.LastTurnAt == nil || *got.LastTurnAt != "2025-01-05T02:00:00.000Z" {
		t.Errorf("LastTurnAt = %v", got.LastTurnAt)
	}
}

func TestBuildThread_NoAnswersFallsBackToLastTurn(t *testing.T) {
	turns := []turnRow{
		{TurnIndex: 0, QuestionSnapshot: str(`{"question":"first"}`)},
		{TurnIndex: 1, QuestionSnapshot: str(`{"question":"second"}`)},
	}
	got := buildThread(threadRow{ThreadID: "t"}, turns)
	if got.LastQuestion == nil || *got.LastQuestion != "second" {
		t.Errorf("LastQuestion = %v, want second", got.LastQuestion)
	}
	if got.LastAnswer != nil {
		t.Errorf("LastAnswer = %v, want nil", *got.LastAnswer)
	}
}

func TestBuildThread_NoTurns(t *testing.T) {
	got := buildThread(threadRow{ThreadID: "t", BotType: str("coach")}, nil)
	if got.Turns == nil || len(got.Turns) != 0 {
		t.Errorf("Turns = %#v, want empty slice", got.Turns)
	}
	if got.LastTurnAt != nil || got.LastQuestion != nil {
		t.Error("thread without turns has no last turn")
	}
}

func TestAssembleUser360_UnknownUser(t *testing.T) {
	r := mustRange(t, "2025-01-01", "2025-01-30")
	resp := assembleUser360("nobody", r, nil, "Asia/Seoul", time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC))

	if resp.Summary.UserID != "nobody" || resp.Summary.UserName != UnknownUser {
		t.Errorf("summary = %+v", resp.Summary)
	}
	if resp.Routine.CurrentWeekPlan != nil {
		t.Error("unknown user has no week plan")
	}

	body, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{"topRisks", "weeklyGoals", "dailyCompletionTrend", "incompleteDomains",
		"recentMessages", "chatThreads", "llmUsageByCallType", "recentFailures", "validationFailures"} {
		if !strings.Contains(string(body), `"`+key+`":[]`) {
			t.Errorf("%s should serialize as an empty array", key)
		}
	}
	if resp.Meta.StartDate != "2025-01-01" || resp.Meta.EndDate != "2025-01-30" || resp.Meta.UserID != "nobody" {
		t.Errorf("meta = %+v", resp.Meta)
	}
}

func TestBuildSummary(t *testing.T) {
	data := &user360Data{
		Profile: &profileRow{
			UserID:            "u1",
			UserName:          str(""),
			Age:               sql.NullInt64{Int64: 0, Valid: true},
			BiologicalAge:     sql.NullInt64{Int64: 41, Valid: true},
			TopRisks:          []byte(`[["hypertension", 0.8]]`),
			SignatureType:     str("T1"),
			SignatureTypeName: str(""),
			TargetCalorie:     decimal.NullDecimal{Decimal: decimal.RequireFromString("1850.50"), Valid: true},
			CalorieBasis:      []byte(`{"bmr": 1500}`),
			HasLifestyleGuide: true,
		},
		Availability: DataAvailability{HasProfile: true, HasSignature: true},
	}

	s := buildSummary("u1", data)

	if s.UserName != UnknownUser {
		t.Errorf("blank name should fall back, got %q", s.UserName)
	}
	if s.Age != nil {
		t.Errorf("age 0 should be omitted, got %d", *s.Age)
	}
	if s.BiologicalAge == nil || *s.BiologicalAge != 41 {
		t.Errorf("BiologicalAge = %v, want 41", s.BiologicalAge)
	}
	if s.SignatureType == nil || *s.SignatureType != "T1" || s.SignatureTypeName != nil {
		t.Errorf("signature = %v / %v", s.SignatureType, s.SignatureTypeName)
	}
	if s.TargetCalorie == nil || *s.TargetCalorie != 1850.5 {
		t.Errorf("TargetCalorie = %v, want 1850.5", s.TargetCalorie)
	}
	if s.BMR == nil || *s.BMR != 1500 || s.TDEE != nil {
		t.Errorf("BMR/TDEE = %v / %v", s.BMR, s.TDEE)
	}
	if len(s.TopRisks) != 1 || !s.HasLifestyleGuide || !s.DataAvailability.HasSignature {
		t.Errorf("summary = %+v", s)
	}
}

func TestBuildOperations(t *testing.T) {
	started := time.Date(2025, 1, 3, 1, 0, 0, 0, time.UTC)
	data := &user360Data{
		LLMTotals: llmTotalsRow{Calls: 8, Cost: decimal.RequireFromString("0.40"), AvgLatency: 900, Errors: 2},
		CallTypes: []callTypeRow{
			{CallType: sql.NullString{}, Calls: 8, Cost: decimal.RequireFromString("0.40"), AvgLatency: 900, Errors: 2},
		},
		Failures: []failureRow{
			{ID: "j1", Status: "failed", StartedAt: started, DurationMs: sql.NullFloat64{Float64: 1234.6, Valid: true}},
			{ID: "j2", Status: "failed", StartedAt: started, DurationMs: sql.NullFloat64{Float64: 0, Valid: true}},
			{ID: "j3", Status: "failed", StartedAt: started},
		},
	}

	ops := buildOperations(data)

	if ops.ErrorRate.Pct100() != 25 || ops.TotalLLMCost != 0.4 || ops.TotalLLMCalls != 8 {
		t.Errorf("totals = %+v", ops)
	}
	if ops.LLMUsageByCallType[0].CallType != UnknownLabel {
		t.Errorf("missing call type should be %q", UnknownLabel)
	}
	want := []*int64{ptr(int64(1235)), ptr(int64(0)), nil}
	for i, f := range ops.RecentFailures {
		if diff := cmp.Diff(want[i], f.DurationMs); diff != "" {
			t.Errorf("failure %s duration mismatch (-want +got):\n%s", f.ID, diff)
		}
		if f.StartedAt != "2025-01-03T01:00:00.000Z" {
			t.Errorf("StartedAt = %s", f.StartedAt)
		}
	}
}

func TestBuildRoutine_PercentsUseOneScale(t *testing.T) {
	data := &user360Data{
		Goals: []goalRow{{
			Domain:          str("sleep"),
			Title:           str("Lights out by 11"),
			TargetCount:     sql.NullInt64{Int64: 4, Valid: true},
			CompletedCount:  sql.NullInt64{Int64: 2, Valid: true},
			CompletionRatio: decimal.NullDecimal{Decimal: decimal.RequireFromString("0.5"), Valid: true},
		}, {
			Title: str("No ratio yet"),
		}},
		DailyCompletion:  []dailyCompletionRow{{Date: "2025-01-06", Planned: 2, Completed: 1}},
		IncompleteByArea: []incompleteDomainRow{{Domain: str("diet"), Incomplete: 1, Total: 4}},
	}

	routine := buildRoutine(data)

	body, err := json.Marshal(routine)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(body)
	for _, want := range []string{
		`"targetCount":4,"completedCount":2,"completionRate":50}`,
		`"completedCount":0,"completionRate":0}`,
		`"planned":2,"completed":1,"completionRate":50}`,
		`"totalCount":4,"percentage":25}`,
		`"overallCompletionRate":50`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("routine JSON missing %s:\n%s", want, got)
		}
	}
	if strings.Contains(got, "completionRatio") {
		t.Errorf("goal rate should not be published as a 0..1 ratio:\n%s", got)
	}
}
