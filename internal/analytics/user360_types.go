package analytics

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sain-invites/sibc-dashboard/internal/metrics"
)

// Fallback labels in the User 360 view.
const (
	UnknownUser    = "(알 수 없음)"
	UntitledText   = "(제목 없음)"
	UnknownLabel   = "unknown"
	RecentItemsCap = 10
	previewRunes   = 100
)

// =============================================================================
// Response types
// =============================================================================

// User360Response is the per-user detail view.
type User360Response struct {
	Summary       User360Summary       `json:"summary"`
	Routine       User360Routine       `json:"routine"`
	Communication User360Communication `json:"communication"`
	Operations    User360Operations    `json:"operations"`
	Meta          User360Meta          `json:"meta"`
}

type User360Summary struct {
	UserID                      string           `json:"userId"`
	UserName                    string           `json:"userName"`
	Age                         *int64           `json:"age"`
	BiologicalAge               *int64           `json:"biologicalAge"`
	SignatureType               *string          `json:"signatureType"`
	SignatureTypeName           *string          `json:"signatureTypeName"`
	SignatureTypeDesc           *string          `json:"signatureTypeDesc"`
	SignatureTypeExplainSummary *string          `json:"signatureTypeExplainSummary"`
	TargetCalorie               *float64         `json:"targetCalorie"`
	BMR                         *float64         `json:"bmr"`
	TDEE                        *float64         `json:"tdee"`
	HealthStatusSummary         *string          `json:"healthStatusSummary"`
	TopRisks                    []RiskScore      `json:"topRisks"`
	PatientSummary              *string          `json:"patientSummary"`
	HasLifestyleGuide           bool             `json:"hasLifestyleGuide"`
	LastUpdate                  *string          `json:"lastUpdate"`
	DataAvailability            DataAvailability `json:"dataAvailability"`
}

type RiskScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type DataAvailability struct {
	HasProfile    bool `json:"hasProfile"`
	HasSignature  bool `json:"hasSignature"`
	HasWeeklyPlan bool `json:"hasWeeklyPlan"`
	HasChat       bool `json:"hasChat"`
	HasEvent      bool `json:"hasEvent"`
}

type User360Routine struct {
	CurrentWeekPlan       *WeekPlan          `json:"currentWeekPlan"`
	WeeklyGoals           []WeeklyGoal       `json:"weeklyGoals"`
	DailyCompletionTrend  []DailyCompletion  `json:"dailyCompletionTrend"`
	IncompleteDomains     []IncompleteDomain `json:"incompleteDomains"`
	OverallCompletionRate metrics.Percent    `json:"overallCompletionRate"`
}

type WeekPlan struct {
	WeekStartDate string  `json:"weekStartDate"`
	WeekEndDate   string  `json:"weekEndDate"`
	WeeklyTheme   *string `json:"weeklyTheme"`
	Domain        *string `json:"domain"`
}

// WeeklyGoal.CompletionRate is stored as a 0..1 ratio in the database and
// goes out on the 0..100 scale like every other percent in the response.
type WeeklyGoal struct {
	Domain         string          `json:"domain"`
	Title          string          `json:"title"`
	Description    *string         `json:"description"`
	TargetCount    int64           `json:"targetCount"`
	CompletedCount int64           `json:"completedCount"`
	CompletionRate metrics.Percent `json:"completionRate"`
}

type DailyCompletion struct {
	Date           string          `json:"date"`
	Planned        int64           `json:"planned"`
	Completed      int64           `json:"completed"`
	CompletionRate metrics.Percent `json:"completionRate"`
}

type IncompleteDomain struct {
	Domain          string          `json:"domain"`
	IncompleteCount int64           `json:"incompleteCount"`
	TotalCount      int64           `json:"totalCount"`
	Percentage      metrics.Percent `json:"percentage"`
}

type User360Communication struct {
	Stats          MessageStats    `json:"stats"`
	RecentMessages []RecentMessage `json:"recentMessages"`
	ChatThreads    []ChatThread    `json:"chatThreads"`
}

type MessageStats struct {
	SentCount    int64 `json:"sentCount"`
	PendingCount int64 `json:"pendingCount"`
}

type RecentMessage struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	BodyPreview string  `json:"bodyPreview"`
	BodyFull    *string `json:"bodyFull"`
	CreatedAt   string  `json:"createdAt"`
	Sent        bool    `json:"sent"`
}

type ChatThread struct {
	ThreadID          string     `json:"threadId"`
	BotType           string     `json:"botType"`
	AskedTurns        int64      `json:"askedTurns"`
	Summary           *string    `json:"summary"`
	UpdatedAt         string     `json:"updatedAt"`
	LastQuestion      *string    `json:"lastQuestion"`
	LastAnswer        *string    `json:"lastAnswer"`
	TerminationReason *string    `json:"terminationReason"`
	LastTurnAt        *string    `json:"lastTurnAt"`
	LastQuestionRaw   *string    `json:"lastQuestionRaw"`
	LastAnswerRaw     *string    `json:"lastAnswerRaw"`
	ResponseRaw       *string    `json:"responseRaw"`
	UserIntent        *string    `json:"userIntent"`
	IncompleteIntent  *string    `json:"incompleteIntent"`
	Turns             []ChatTurn `json:"turns"`
}

type ChatTurn struct {
	TurnIndex         int64   `json:"turnIndex"`
	EventType         *string `json:"eventType"`
	CreatedAt         string  `json:"createdAt"`
	QuestionText      *string `json:"questionText"`
	AnswerText        *string `json:"answerText"`
	QuestionRaw       *string `json:"questionRaw"`
	AnswerRaw         *string `json:"answerRaw"`
	ResponseRaw       *string `json:"responseRaw"`
	TerminationReason *string `json:"terminationReason"`
	UserIntent        *string `json:"userIntent"`
	IncompleteIntent  *string `json:"incompleteIntent"`
}

type User360Operations struct {
	TotalLLMCalls      int64               `json:"totalLLMCalls"`
	TotalLLMCost       float64             `json:"totalLLMCost"`
	AvgLatency         int64               `json:"avgLatency"`
	ErrorRate          metrics.Percent     `json:"errorRate"`
	LLMUsageByCallType []CallTypeUsage     `json:"llmUsageByCallType"`
	RecentFailures     []JobFailure        `json:"recentFailures"`
	ValidationFailures []ValidationFailure `json:"validationFailures"`
}

type CallTypeUsage struct {
	CallType   string  `json:"callType"`
	CallCount  int64   `json:"callCount"`
	TotalCost  float64 `json:"totalCost"`
	AvgLatency int64   `json:"avgLatency"`
	ErrorCount int64   `json:"errorCount"`
}

type JobFailure struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Error      *string `json:"error"`
	StartedAt  string  `json:"startedAt"`
	FinishedAt *string `json:"finishedAt"`
	DurationMs *int64  `json:"durationMs"`
}

type ValidationFailure struct {
	ThreadID   string `json:"threadId"`
	BotType    string `json:"botType"`
	ReasonCode string `json:"reasonCode"`
	ReasonText string `json:"reasonText"`
	CreatedAt  string `json:"createdAt"`
}

type User360Meta struct {
	UserID      string `json:"userId"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	GeneratedAt string `json:"generatedAt"`
	Timezone    string `json:"timezone"`
}

// =============================================================================
// Query result types
// =============================================================================

type profileRow struct {
	UserID                      string
	UserName                    sql.NullString
	Age                         sql.NullInt64
	BiologicalAge               sql.NullInt64
	LastUpdate                  sql.NullTime
	TopRisks                    []byte
	SignatureType               sql.NullString
	SignatureTypeName           sql.NullString
	SignatureTypeDesc           sql.NullString
	SignatureTypeExplainSummary sql.NullString
	TargetCalorie               decimal.NullDecimal
	CalorieBasis                []byte
	HealthStatusSummary         sql.NullString
	PatientSummary              sql.NullString
	HasLifestyleGuide           bool
}

type weekPlanRow struct {
	ID            int64
	WeekStartDate string
	WeekEndDate   string
	WeeklyTheme   sql.NullString
	Domain        sql.NullString
}

type goalRow struct {
	Domain          sql.NullString
	Title           sql.NullString
	Description     sql.NullString
	TargetCount     sql.NullInt64
	CompletedCount  sql.NullInt64
	CompletionRatio decimal.NullDecimal
}

type dailyCompletionRow struct {
	Date      string
	Planned   int64
	Completed int64
}

type incompleteDomainRow struct {
	Domain     sql.NullString
	Incomplete int64
	Total      int64
}

type messageRow struct {
	ID        string
	Title     sql.NullString
	Body      sql.NullString
	CreatedAt time.Time
	Sent      bool
}

type threadRow struct {
	ThreadID   string
	BotType    sql.NullString
	AskedTurns sql.NullInt64
	Summary    sql.NullString
	UpdatedAt  time.Time
}

type turnRow struct {
	ThreadID          string
	TurnIndex         int64
	EventType         sql.NullString
	QuestionSnapshot  sql.NullString
	SubmittedAnswer   sql.NullString
	Response          sql.NullString
	UserIntent        sql.NullString
	IncompleteIntent  sql.NullString
	TerminationReason sql.NullString
	CreatedAt         time.Time
}

type callTypeRow struct {
	CallType   sql.NullString
	Calls      int64
	Cost       decimal.Decimal
	AvgLatency int64
	Errors     int64
}

type llmTotalsRow struct {
	Calls      int64
	Cost       decimal.Decimal
	AvgLatency int64
	Errors     int64
}

type failureRow struct {
	ID         string
	Status     string
	Error      sql.NullString
	StartedAt  time.Time
	FinishedAt sql.NullTime
	DurationMs sql.NullFloat64
}

type validationRow struct {
	ThreadID   sql.NullString
	BotType    sql.NullString
	ReasonCode sql.NullString
	ReasonText sql.NullString
	CreatedAt  time.Time
}

// user360Data is what the User 360 queries return, before assembly.
type user360Data struct {
	Profile          *profileRow
	Availability     DataAvailability
	WeekPlan         *weekPlanRow
	Goals            []goalRow
	DailyCompletion  []dailyCompletionRow
	IncompleteByArea []incompleteDomainRow
	Messages         []messageRow
	MessageStats     MessageStats
	Threads          []threadRow
	Turns            []turnRow
	CallTypes        []callTypeRow
	LLMTotals        llmTotalsRow
	Failures         []failureRow
	Validations      []validationRow
}
