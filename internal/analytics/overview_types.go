package analytics

import (
	"maps"

	"github.com/shopspring/decimal"

	"github.com/sain-invites/sibc-dashboard/internal/metrics"
)

// =============================================================================
// Response types
// =============================================================================

// OverviewResponse is the API response for the service overview.
type OverviewResponse struct {
	KPIs           []KPI                        `json:"kpis"`
	Trends         Trends                       `json:"trends"`
	TrendKinds     map[string]metrics.ValueKind `json:"trendKinds"`
	Breakdown      Breakdown                    `json:"breakdown"`
	BreakdownKinds map[string]metrics.ValueKind `json:"breakdownKinds"`
	Meta           OverviewMeta                 `json:"meta"`
}

// KPI is a single headline number with its display string and status.
type KPI struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Value          float64           `json:"value"`
	FormattedValue string            `json:"formattedValue"`
	Unit           string            `json:"unit"`
	Status         metrics.Status    `json:"status"`
	Trend          float64           `json:"trend"`
	TrendDirection metrics.Direction `json:"trendDirection"`
	Description    string            `json:"description"`
	ValueKind      metrics.ValueKind `json:"valueKind"`
}

// TrendPoint is one day of a zero-filled series.
type TrendPoint struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Value float64 `json:"value"`
}

// Trends holds the daily series. Every series has one point per day of the range.
type Trends struct {
	NewUsers              []TrendPoint `json:"newUsers"`
	ReturningUsers        []TrendPoint `json:"returningUsers"`
	DAU                   []TrendPoint `json:"dau"`
	DailyEvents           []TrendPoint `json:"dailyEvents"`
	AvgEventsPerUser      []TrendPoint `json:"avgEventsPerUser"`
	RoutineCompleted      []TrendPoint `json:"routineCompleted"`
	RoutineCompletionRate []TrendPoint `json:"routineCompletionRate"` // 0..100
	LLMErrorRate          []TrendPoint `json:"llmErrorRate"`          // 0..100
	LLMCostPerCall        []TrendPoint `json:"llmCostPerCall"`        // USD
}

// BreakdownItem is one row of a dimension ranking.
type BreakdownItem struct {
	Name       string           `json:"name"`
	Value      float64          `json:"value"`
	Percentage *metrics.Percent `json:"percentage,omitempty"`
	Completed  *int64           `json:"completed,omitempty"`
	Total      *int64           `json:"total,omitempty"`
}

// Breakdown holds the dimension rankings. Empty rankings are empty arrays.
type Breakdown struct {
	LLMCostByType        []BreakdownItem `json:"llmCostByType"`
	LLMCostByModel       []BreakdownItem `json:"llmCostByModel"`
	LLMErrorTop10        []BreakdownItem `json:"llmErrorTop10"`
	CompletionByDomain   []BreakdownItem `json:"completionByDomain"`
	CompletionByPriority []BreakdownItem `json:"completionByPriority"`
	CompletionByPeriod   []BreakdownItem `json:"completionByPeriod"`
}

// OverviewMeta echoes the resolved range.
type OverviewMeta struct {
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	GeneratedAt string `json:"generatedAt"` // RFC3339, UTC
	Timezone    string `json:"timezone"`
}

var trendKinds = map[string]metrics.ValueKind{
	"newUsers":              metrics.KindCount,
	"returningUsers":        metrics.KindCount,
	"dau":                   metrics.KindCount,
	"dailyEvents":           metrics.KindCount,
	"avgEventsPerUser":      metrics.KindDecimal,
	"routineCompleted":      metrics.KindCount,
	"routineCompletionRate": metrics.KindPercent,
	"llmErrorRate":          metrics.KindPercent,
	"llmCostPerCall":        metrics.KindCurrency,
}

var breakdownKinds = map[string]metrics.ValueKind{
	"llmCostByType":        metrics.KindCurrency,
	"llmCostByModel":       metrics.KindCurrency,
	"llmErrorTop10":        metrics.KindCount,
	"completionByDomain":   metrics.KindPercent,
	"completionByPriority": metrics.KindPercent,
	"completionByPeriod":   metrics.KindPercent,
}

// TrendKinds returns the value kind of every trend series, keyed by its JSON name.
func TrendKinds() map[string]metrics.ValueKind { return maps.Clone(trendKinds) }

// BreakdownKinds returns the value kind of every breakdown, keyed by its JSON name.
func BreakdownKinds() map[string]metrics.ValueKind { return maps.Clone(breakdownKinds) }

// =============================================================================
// Query result types
// =============================================================================

type eventSummary struct {
	TotalEvents int64
	Users       int64
}

type completionCount struct {
	Completed int64
	Total     int64
}

type llmDay struct {
	Calls  int64
	Errors int64
	Cost   decimal.Decimal
}

type jobDay struct {
	Total  int64
	Failed int64
}

type costGroup struct {
	Name string
	Cost decimal.Decimal
}

type errorGroup struct {
	Name  string
	Count int64
}

type completionGroup struct {
	Name string
	completionCount
}

// overviewData is everything the overview queries return, before assembly.
type overviewData struct {
	TotalUsers      int64
	DAU             map[string]int64
	WAU             int64
	MAU             int64
	RoutineCalls    int64
	WeeklyPlanCalls int64
	Events          eventSummary
	DailyEvents     map[string]int64
	NewUsers        map[string]int64
	Routines        map[string]completionCount
	LLM             map[string]llmDay
	Jobs            map[string]jobDay
	CostByType      []costGroup
	CostByModel     []costGroup
	LLMErrors       []errorGroup
	JobErrors       []errorGroup
	ByDomain        []completionGroup
	ByPriority      []completionGroup
	ByPeriod        []completionGroup
}
