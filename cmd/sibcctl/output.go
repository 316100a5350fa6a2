package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sain-invites/sibc-dashboard/internal/analytics"
	"github.com/sain-invites/sibc-dashboard/internal/metrics"
)

const (
	outputJSON = "json"
	outputText = "text"
)

// render writes v as indented JSON, or through text for --output text.
func (a *app) render(w io.Writer, v any, text func(p *printer)) error {
	if a.opts.output == outputText {
		p := &printer{tw: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
		text(p)
		return p.tw.Flush()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type printer struct {
	tw *tabwriter.Writer
}

func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.tw, format+"\n", args...)
}

func (p *printer) overview(o *analytics.OverviewResponse) {
	p.line("Overview %s .. %s (%s)", o.Meta.StartDate, o.Meta.EndDate, o.Meta.Timezone)
	p.line("")
	p.line("KPI\tVALUE\tSTATUS")
	for _, k := range o.KPIs {
		p.line("%s\t%s\t%s", k.Title, k.FormattedValue, k.Status)
	}
}

func (p *printer) users(d *analytics.DirectoryResponse, now time.Time) {
	p.line("USER ID\tNAME\tEVENTS\tROUTINES\tCOMPLETION\tLLM COST\tLAST ACTIVITY")
	for _, u := range d.Users {
		p.line("%s\t%s\t%s\t%s/%s\t%s\t%s\t%s",
			u.UserID,
			u.UserName,
			humanize.Comma(u.EventCount),
			humanize.Comma(u.CompletedRoutines),
			humanize.Comma(u.TotalRoutines),
			metrics.FormatPercent(metrics.Pct100(u.CompletionRate), 1),
			metrics.FormatUSD(u.LLMCost),
			lastSeen(u.LastActivity, now),
		)
	}
	p.line("")
	p.line("page %d of %d (%s users)", d.Pagination.Page, d.Pagination.TotalPages, humanize.Comma(int64(d.Pagination.Total)))
}

// lastSeen renders an activity timestamp relative to now.
func lastSeen(ts *string, now time.Time) string {
	if ts == nil {
		return "never"
	}
	t, err := time.Parse(time.RFC3339Nano, *ts)
	if err != nil {
		return *ts
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func (p *printer) user360(v *analytics.User360Response) {
	s := v.Summary
	ops := v.Operations
	p.line("%s (%s)", s.UserName, s.UserID)
	p.line("range\t%s .. %s", v.Meta.StartDate, v.Meta.EndDate)
	if s.Age != nil {
		p.line("age\t%d", *s.Age)
	}
	if s.SignatureTypeName != nil {
		p.line("signature type\t%s", *s.SignatureTypeName)
	}
	p.line("routine completion\t%s", metrics.FormatPercent(v.Routine.OverallCompletionRate, 1))
	p.line("weekly goals\t%d", len(v.Routine.WeeklyGoals))
	p.line("LLM calls\t%s", humanize.Comma(ops.TotalLLMCalls))
	p.line("LLM cost\t%s", metrics.FormatUSD(ops.TotalLLMCost))
	p.line("LLM error rate\t%s", metrics.FormatPercent(ops.ErrorRate, 1))
	p.line("recent failures\t%d", len(ops.RecentFailures))
}
