package analytics

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/sain-invites/sibc-dashboard/internal/metrics"
	"github.com/sain-invites/sibc-dashboard/internal/timeutil"
)

// Trailing windows for the WAU and MAU KPIs.
const (
	wauDays = 7
	mauDays = 30
)

// maxErrorKeyRunes is where error texts are cut before grouping.
const maxErrorKeyRunes = 50

// GetOverview computes KPIs, daily trends and breakdowns for r.
// All queries run in parallel; the first failure cancels the rest and fails
// the whole response.
func (s *Store) GetOverview(ctx context.Context, r timeutil.Range) (*OverviewResponse, error) {
	if r.Start.IsZero() || r.End.IsZero() {
		return nil, ErrNilRange
	}
	ctx, span := tracer.Start(ctx, "analytics.get_overview", rangeAttributes(r))
	defer span.End()

	data, err := s.loadOverviewData(ctx, r)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return assembleOverview(r, data, s.tz, s.now()), nil
}

func (s *Store) loadOverviewData(ctx context.Context, r timeutil.Range) (*overviewData, error) {
	data := &overviewData{}
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)

	// run launches one query; its error is tagged with the query name.
	run := func(name string, fn func(ctx context.Context) error) {
		g.Go(func() error {
			if err := fn(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}

	run("total_users", func(ctx context.Context) error {
		n, err := s.countTotalUsers(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		data.TotalUsers = n
		mu.Unlock()
		return nil
	})

	run("dau", func(ctx context.Context) error {
		m, err := s.dailyActiveUsers(ctx, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.DAU = m
		mu.Unlock()
		return nil
	})

	run("wau", func(ctx context.Context) error {
		n, err := s.countActiveUsers(ctx, r.Trailing(wauDays))
		if err != nil {
			return err
		}
		mu.Lock()
		data.WAU = n
		mu.Unlock()
		return nil
	})

	run("mau", func(ctx context.Context) error {
		n, err := s.countActiveUsers(ctx, r.Trailing(mauDays))
		if err != nil {
			return err
		}
		mu.Lock()
		data.MAU = n
		mu.Unlock()
		return nil
	})

	run("routine_calls", func(ctx context.Context) error {
		n, err := s.countCallType(ctx, r, CallTypeDailyRoutine)
		if err != nil {
			return err
		}
		mu.Lock()
		data.RoutineCalls = n
		mu.Unlock()
		return nil
	})

	run("weekly_plan_calls", func(ctx context.Context) error {
		n, err := s.countCallType(ctx, r, CallTypeWeeklyPlan)
		if err != nil {
			return err
		}
		mu.Lock()
		data.WeeklyPlanCalls = n
		mu.Unlock()
		return nil
	})

	run("event_summary", func(ctx context.Context) error {
		summary, err := s.summarizeEvents(ctx, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.Events = summary
		mu.Unlock()
		return nil
	})

	run("daily_events", func(ctx context.Context) error {
		m, err := s.dailyEventCounts(ctx, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.DailyEvents = m
		mu.Unlock()
		return nil
	})

	run("daily_new_users", func(ctx context.Context) error {
		m, err := s.dailyNewUserCounts(ctx, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.NewUsers = m
		mu.Unlock()
		return nil
	})

	run("daily_routines", func(ctx context.Context) error {
		m, err := s.dailyRoutineCompletion(ctx, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.Routines = m
		mu.Unlock()
		return nil
	})

	run("daily_llm_usage", func(ctx context.Context) error {
		m, err := s.dailyLLMUsage(ctx, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.LLM = m
		mu.Unlock()
		return nil
	})

	run("daily_jobs", func(ctx context.Context) error {
		m, err := s.dailyJobs(ctx, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.Jobs = m
		mu.Unlock()
		return nil
	})

	run("cost_by_call_type", func(ctx context.Context) error {
		groups, err := s.costByCallType(ctx, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.CostByType = groups
		mu.Unlock()
		return nil
	})

	run("cost_by_model", func(ctx context.Context) error {
		groups, err := s.costByModel(ctx, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.CostByModel = groups
		mu.Unlock()
		return nil
	})

	run("llm_errors", func(ctx context.Context) error {
		groups, err := s.llmErrorGroups(ctx, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.LLMErrors = groups
		mu.Unlock()
		return nil
	})

	run("job_errors", func(ctx context.Context) error {
		groups, err := s.jobErrorGroups(ctx, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.JobErrors = groups
		mu.Unlock()
		return nil
	})

	run("completion_by_domain", func(ctx context.Context) error {
		groups, err := s.completionByDomain(ctx, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.ByDomain = groups
		mu.Unlock()
		return nil
	})

	run("completion_by_priority", func(ctx context.Context) error {
		groups, err := s.completionByPriority(ctx, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.ByPriority = groups
		mu.Unlock()
		return nil
	})

	run("completion_by_period", func(ctx context.Context) error {
		groups, err := s.completionByPeriod(ctx, r)
		if err != nil {
			return err
		}
		mu.Lock()
		data.ByPeriod = groups
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

// =============================================================================
// Assembly
// =============================================================================

// assembleOverview joins the query results against the range's day series.
// It never fails: missing days and dimensions become zeros and empty arrays.
func assembleOverview(r timeutil.Range, data *overviewData, tz string, now time.Time) *OverviewResponse {
	if data == nil {
		data = &overviewData{}
	}
	days := r.Series()

	totalCost := decimal.Zero
	var llmCalls, llmErrors, jobsTotal, jobsFailed, routineTotal, routineCompleted int64
	for _, day := range days {
		llm := data.LLM[day]
		totalCost = totalCost.Add(llm.Cost)
		llmCalls += llm.Calls
		llmErrors += llm.Errors

		jobs := data.Jobs[day]
		jobsTotal += jobs.Total
		jobsFailed += jobs.Failed

		routine := data.Routines[day]
		routineTotal += routine.Total
		routineCompleted += routine.Completed
	}

	trends := buildTrends(days, data)
	dau := pointValues(trends.DAU)

	totals := overviewTotals{
		TotalUsers:       float64(data.TotalUsers),
		DAU:              lastValue(dau),
		DAUTrend:         metrics.LastTwoTrend(dau),
		WAU:              float64(data.WAU),
		MAU:              float64(data.MAU),
		RoutineCalls:     float64(data.RoutineCalls),
		WeeklyPlanCalls:  float64(data.WeeklyPlanCalls),
		CompletionRate:   metrics.RatePercent(float64(routineCompleted), float64(routineTotal)),
		CompletedPerDay:  metrics.PerUnit(float64(routineCompleted), float64(len(days))),
		JobFailureRate:   metrics.RatePercent(float64(jobsFailed), float64(jobsTotal)),
		LLMErrorRate:     metrics.RatePercent(float64(llmErrors), float64(llmCalls)),
		LLMCost:          totalCost.InexactFloat64(),
		AvgEventsPerUser: metrics.PerUnit(float64(data.Events.TotalEvents), float64(data.Events.Users)),
	}

	return &OverviewResponse{
		KPIs:           buildKPIs(totals),
		Trends:         trends,
		TrendKinds:     TrendKinds(),
		Breakdown:      buildBreakdown(data, totalCost),
		BreakdownKinds: BreakdownKinds(),
		Meta: OverviewMeta{
			StartDate:   r.StartDate(),
			EndDate:     r.EndDate(),
			GeneratedAt: now.UTC().Format(time.RFC3339),
			Timezone:    tz,
		},
	}
}

// buildTrends produces the nine daily series, one point per day in days.
func buildTrends(days []string, data *overviewData) Trends {
	t := Trends{
		NewUsers:              make([]TrendPoint, 0, len(days)),
		ReturningUsers:        make([]TrendPoint, 0, len(days)),
		DAU:                   make([]TrendPoint, 0, len(days)),
		DailyEvents:           make([]TrendPoint, 0, len(days)),
		AvgEventsPerUser:      make([]TrendPoint, 0, len(days)),
		RoutineCompleted:      make([]TrendPoint, 0, len(days)),
		RoutineCompletionRate: make([]TrendPoint, 0, len(days)),
		LLMErrorRate:          make([]TrendPoint, 0, len(days)),
		LLMCostPerCall:        make([]TrendPoint, 0, len(days)),
	}

	for _, day := range days {
		dau := data.DAU[day]
		newUsers := data.NewUsers[day]
		events := data.DailyEvents[day]
		routine := data.Routines[day]
		llm := data.LLM[day]

		t.NewUsers = append(t.NewUsers, TrendPoint{day, float64(newUsers)})
		t.ReturningUsers = append(t.ReturningUsers, TrendPoint{day, float64(max(dau-newUsers, 0))})
		t.DAU = append(t.DAU, TrendPoint{day, float64(dau)})
		t.DailyEvents = append(t.DailyEvents, TrendPoint{day, float64(events)})
		t.AvgEventsPerUser = append(t.AvgEventsPerUser, TrendPoint{day, metrics.PerUnit(float64(events), float64(dau))})
		t.RoutineCompleted = append(t.RoutineCompleted, TrendPoint{day, float64(routine.Completed)})
		t.RoutineCompletionRate = append(t.RoutineCompletionRate,
			TrendPoint{day, metrics.RatePercent(float64(routine.Completed), float64(routine.Total)).Pct100()})
		t.LLMErrorRate = append(t.LLMErrorRate,
			TrendPoint{day, metrics.RatePercent(float64(llm.Errors), float64(llm.Calls)).Pct100()})
		t.LLMCostPerCall = append(t.LLMCostPerCall, TrendPoint{day, costPerCall(llm)})
	}
	return t
}

func costPerCall(d llmDay) float64 {
	if d.Calls == 0 {
		return 0
	}
	return d.Cost.Div(decimal.NewFromInt(d.Calls)).InexactFloat64()
}

// overviewTotals are the range-level figures behind the KPI cards.
type overviewTotals struct {
	TotalUsers       float64
	DAU              float64
	DAUTrend         metrics.Trend
	WAU              float64
	MAU              float64
	RoutineCalls     float64
	WeeklyPlanCalls  float64
	CompletionRate   metrics.Percent
	CompletedPerDay  float64
	JobFailureRate   metrics.Percent
	LLMErrorRate     metrics.Percent
	LLMCost          float64
	AvgEventsPerUser float64
}

// KPI thresholds. Share thresholds are fractions of the registered user count.
var (
	completionThreshold = metrics.Floors(50, 30)
	jobFailureThreshold = metrics.Ceilings(10, 20)
	llmErrorThreshold   = metrics.Ceilings(5, 10)
	llmCostThreshold    = metrics.Ceilings(100, 500)
)

// buildKPIs returns the twelve KPI cards in display order.
func buildKPIs(t overviewTotals) []KPI {
	dau := newKPI("dau", "DAU", "명", "하루 기준 고유 활성 사용자 수",
		metrics.KindCount, t.DAU, metrics.ShareOfTotal(t.DAU, t.TotalUsers, 0.10, 0.05))
	dau.Trend = t.DAUTrend.Magnitude
	dau.TrendDirection = t.DAUTrend.Direction

	return []KPI{
		newKPI("total-users", "총 사용자", "명", "전체 등록 사용자 수",
			metrics.KindCount, t.TotalUsers, metrics.StatusSuccess),
		dau,
		newKPI("wau", "WAU", "명", "최근 7일 고유 활성 사용자 수",
			metrics.KindCount, t.WAU, metrics.ShareOfTotal(t.WAU, t.TotalUsers, 0.30, 0.15)),
		newKPI("mau", "MAU", "명", "최근 30일 고유 활성 사용자 수",
			metrics.KindCount, t.MAU, metrics.ShareOfTotal(t.MAU, t.TotalUsers, 0.60, 0.30)),
		newKPI("routine-calls", "루틴 생성 호출", "건", "기간 내 루틴 생성 LLM 호출 건수",
			metrics.KindCount, t.RoutineCalls, metrics.StatusSuccess),
		newKPI("weekly-plan-calls", "주간플랜 생성 호출", "건", "기간 내 주간플랜 생성 LLM 호출 건수",
			metrics.KindCount, t.WeeklyPlanCalls, metrics.StatusSuccess),
		newPercentKPI("routine-completion-rate", "루틴 수행률", "계획된 루틴 중 수행 완료 비율",
			t.CompletionRate, completionThreshold),
		newKPI("routine-completed-per-day", "루틴 수행 건수/일", "건/일", "기간 내 하루 평균 수행 건수",
			metrics.KindDecimal, t.CompletedPerDay, metrics.StatusSuccess),
		newPercentKPI("job-failure-rate", "잡 실패율", "전체 잡 중 실패 비율",
			t.JobFailureRate, jobFailureThreshold),
		newPercentKPI("llm-error-rate", "LLM 에러율", "LLM 호출 중 에러 비율",
			t.LLMErrorRate, llmErrorThreshold),
		newKPI("llm-cost", "LLM 비용", "", "기간 내 LLM 총 비용",
			metrics.KindCurrency, t.LLMCost, llmCostThreshold.Evaluate(t.LLMCost)),
		newKPI("avg-events-per-user", "사용자당 평균 이벤트 수", "건/명", "활성 사용자 1명당 평균 이벤트 수",
			metrics.KindDecimal, t.AvgEventsPerUser, metrics.StatusSuccess),
	}
}

func newKPI(id, title, unit, description string, kind metrics.ValueKind, value float64, status metrics.Status) KPI {
	return KPI{
		ID:             id,
		Title:          title,
		Value:          value,
		FormattedValue: metrics.Format(kind, value),
		Unit:           unit,
		Status:         status,
		TrendDirection: metrics.DirectionFlat,
		Description:    description,
		ValueKind:      kind,
	}
}

func newPercentKPI(id, title, description string, p metrics.Percent, threshold metrics.Threshold) KPI {
	kpi := newKPI(id, title, "", description, metrics.KindPercent, p.Pct100(), threshold.Evaluate(p.Pct100()))
	kpi.FormattedValue = metrics.FormatPercent(p, 1)
	return kpi
}

func pointValues(points []TrendPoint) []float64 {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return values
}

func lastValue(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

// =============================================================================
// Breakdowns
// =============================================================================

func buildBreakdown(data *overviewData, totalCost decimal.Decimal) Breakdown {
	return Breakdown{
		LLMCostByType:        costBreakdown(data.CostByType, totalCost),
		LLMCostByModel:       costBreakdown(data.CostByModel, totalCost),
		LLMErrorTop10:        errorTopN(TopN, data.LLMErrors, data.JobErrors),
		CompletionByDomain:   completionBreakdown(data.ByDomain),
		CompletionByPriority: completionBreakdown(data.ByPriority),
		CompletionByPeriod:   completionBreakdown(data.ByPeriod),
	}
}

// costBreakdown ranks cost groups and attaches each group's share of total.
// Groups arrive ranked from SQL; the sort keeps the order stable for any input.
func costBreakdown(groups []costGroup, total decimal.Decimal) []BreakdownItem {
	sorted := slices.Clone(groups)
	slices.SortStableFunc(sorted, func(a, b costGroup) int {
		if c := b.Cost.Cmp(a.Cost); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if len(sorted) > TopN {
		sorted = sorted[:TopN]
	}

	items := make([]BreakdownItem, 0, len(sorted))
	for _, g := range sorted {
		share := shareOf(g.Cost, total)
		items = append(items, BreakdownItem{
			Name:       g.Name,
			Value:      g.Cost.InexactFloat64(),
			Percentage: &share,
		})
	}
	return items
}

var hundred = decimal.NewFromInt(100)

// shareOf returns part/total as a percent, 0 when total is not positive.
func shareOf(part, total decimal.Decimal) metrics.Percent {
	if !total.IsPositive() {
		return metrics.Pct100(0)
	}
	return metrics.Pct100(part.Div(total).Mul(hundred).InexactFloat64())
}

// errorTopN merges error groups from every source after truncating their
// keys, then keeps the n largest. Ties go to the alphabetically first key.
// Percentages are relative to all errors, not just the kept ones.
func errorTopN(n int, sources ...[]errorGroup) []BreakdownItem {
	counts := make(map[string]int64)
	var total int64
	for _, groups := range sources {
		for _, g := range groups {
			counts[truncateErrorKey(g.Name)] += g.Count
			total += g.Count
		}
	}

	merged := make([]errorGroup, 0, len(counts))
	for name, count := range counts {
		merged = append(merged, errorGroup{Name: name, Count: count})
	}
	slices.SortFunc(merged, func(a, b errorGroup) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if len(merged) > n {
		merged = merged[:n]
	}

	items := make([]BreakdownItem, 0, len(merged))
	for _, g := range merged {
		share := metrics.RatePercent(float64(g.Count), float64(total))
		items = append(items, BreakdownItem{
			Name:       g.Name,
			Value:      float64(g.Count),
			Percentage: &share,
		})
	}
	return items
}

// truncateErrorKey cuts keys longer than maxErrorKeyRunes and marks the cut.
func truncateErrorKey(name string) string {
	if utf8.RuneCountInString(name) <= maxErrorKeyRunes {
		return name
	}
	runes := []rune(name)
	return string(runes[:maxErrorKeyRunes]) + "..."
}

func completionBreakdown(groups []completionGroup) []BreakdownItem {
	items := make([]BreakdownItem, 0, len(groups))
	for _, g := range groups {
		completed, total := g.Completed, g.Total
		items = append(items, BreakdownItem{
			Name:      g.Name,
			Value:     metrics.Rate(float64(completed), float64(total)),
			Completed: &completed,
			Total:     &total,
		})
	}
	return items
}
