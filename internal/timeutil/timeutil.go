// Package timeutil projects instants onto civil dates in the dashboard's
// reporting zone and builds the contiguous day series used for zero-filling.
package timeutil

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the canonical civil date format used on the wire and in SQL parameters.
	DateLayout = "2006-01-02"

	// DefaultZone is the reporting zone for all daily bucketing.
	DefaultZone = "Asia/Seoul"

	// DefaultRangeDays is the inclusive length of the range used when a request omits dates.
	DefaultRangeDays = 30

	// MaxRangeDays bounds a requested range.
	MaxRangeDays = 366
)

var (
	ErrInvalidDate  = errors.New("date must be in YYYY-MM-DD format")
	ErrInvalidRange = errors.New("start date must not be after end date")
	ErrRangeTooLong = errors.New("date range cannot exceed 366 days")
)

// kstFallback is used when the zone database is not available on the host.
var kstFallback = time.FixedZone("KST", 9*60*60)

// LoadZone resolves an IANA zone name. An empty name means DefaultZone.
// When the zone cannot be loaded, Asia/Seoul falls back to a fixed UTC+9 zone
// and any other name falls back to UTC.
func LoadZone(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		if name == DefaultZone {
			return kstFallback
		}
		return time.UTC
	}
	return loc
}

// EnsureLocation returns the default reporting zone when loc is nil.
func EnsureLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return LoadZone(DefaultZone)
	}
	return loc
}

// TruncateToDay normalizes the timestamp to midnight in the provided zone.
func TruncateToDay(t time.Time, loc *time.Location) time.Time {
	loc = EnsureLocation(loc)
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// CivilDate returns the calendar date of an instant as seen in loc.
func CivilDate(t time.Time, loc *time.Location) string {
	return t.In(EnsureLocation(loc)).Format(DateLayout)
}

// ParseDate parses a strict YYYY-MM-DD string as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if len(s) != len(DateLayout) {
		return time.Time{}, ErrInvalidDate
	}
	t, err := time.ParseInLocation(DateLayout, s, EnsureLocation(loc))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// flexibleLayouts are tried in order by ParseFlexibleDate once the 8-digit form is ruled out.
var flexibleLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	DateLayout,
}

// ParseFlexibleDate accepts an 8-digit YYYYMMDD value (separators ignored) or an
// ISO-like timestamp and returns its civil date in loc. Inputs without an
// offset are read as local to loc. The boolean is false when nothing parses.
func ParseFlexibleDate(input string, loc *time.Location) (string, bool) {
	loc = EnsureLocation(loc)
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", false
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, trimmed)
	if len(digits) == 8 {
		t, err := time.ParseInLocation("20060102", digits, loc)
		if err != nil {
			return "", false
		}
		return t.Format(DateLayout), true
	}

	for _, layout := range flexibleLayouts {
		if t, err := time.ParseInLocation(layout, trimmed, loc); err == nil {
			return CivilDate(t, loc), true
		}
	}
	return "", false
}

// YMD encodes the civil date of t in loc as an integer such as 20250131.
func YMD(t time.Time, loc *time.Location) int {
	t = t.In(EnsureLocation(loc))
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// FormatYMD converts an 8-digit ymd integer to YYYY-MM-DD.
func FormatYMD(ymd int, loc *time.Location) (string, bool) {
	return ParseFlexibleDate(strconv.Itoa(ymd), loc)
}

// DateSeries lists every civil date from start to end inclusive, in start's
// zone. It returns an empty slice when start is after end.
func DateSeries(start, end time.Time) []string {
	loc := start.Location()
	first := TruncateToDay(start, loc)
	last := TruncateToDay(end, loc)
	if first.After(last) {
		return []string{}
	}

	dates := make([]string, 0, int(last.Sub(first).Hours()/24)+1)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		dates = append(dates, day.Format(DateLayout))
	}
	return dates
}

// Range is an inclusive span of civil dates in one zone. Start and End are
// both midnight in that zone.
type Range struct {
	Start time.Time
	End   time.Time
}

// NewRange validates and normalizes an inclusive date range.
func NewRange(start, end time.Time, loc *time.Location) (Range, error) {
	loc = EnsureLocation(loc)
	r := Range{Start: TruncateToDay(start, loc), End: TruncateToDay(end, loc)}
	if r.Start.After(r.End) {
		return Range{}, ErrInvalidRange
	}
	if r.Days() > MaxRangeDays {
		return Range{}, ErrRangeTooLong
	}
	return r, nil
}

// DefaultRange ends today in loc and spans DefaultRangeDays days inclusive.
func DefaultRange(now time.Time, loc *time.Location) Range {
	end := TruncateToDay(now, loc)
	return Range{Start: end.AddDate(0, 0, -(DefaultRangeDays - 1)), End: end}
}

// ResolveRange builds a range from optional YYYY-MM-DD strings. A missing end
// means today; a missing start means DefaultRangeDays-1 days before end.
func ResolveRange(startStr, endStr string, now time.Time, loc *time.Location) (Range, error) {
	loc = EnsureLocation(loc)
	if startStr == "" && endStr == "" {
		return DefaultRange(now, loc), nil
	}

	end := TruncateToDay(now, loc)
	if endStr != "" {
		t, err := ParseDate(endStr, loc)
		if err != nil {
			return Range{}, err
		}
		end = t
	}

	start := end.AddDate(0, 0, -(DefaultRangeDays - 1))
	if startStr != "" {
		t, err := ParseDate(startStr, loc)
		if err != nil {
			return Range{}, err
		}
		start = t
	}

	return NewRange(start, end, loc)
}

// Location returns the zone the range was built in.
func (r Range) Location() *time.Location { return r.Start.Location() }

// StartDate returns the first day as YYYY-MM-DD.
func (r Range) StartDate() string { return r.Start.Format(DateLayout) }

// EndDate returns the last day as YYYY-MM-DD.
func (r Range) EndDate() string { return r.End.Format(DateLayout) }

// Days is the number of calendar days covered, both ends included.
func (r Range) Days() int {
	if r.Start.After(r.End) {
		return 0
	}
	return len(DateSeries(r.Start, r.End))
}

// Series returns the range's days in order.
func (r Range) Series() []string { return DateSeries(r.Start, r.End) }

// Trailing returns the last n days of the range, clamped so it never starts
// before the range does.
func (r Range) Trailing(n int) Range {
	if n < 1 {
		n = 1
	}
	start := r.End.AddDate(0, 0, -(n - 1))
	if start.Before(r.Start) {
		start = r.Start
	}
	return Range{Start: start, End: r.End}
}

// StartYMD and EndYMD bound the range for ymd-keyed tables.
func (r Range) StartYMD() int { return YMD(r.Start, r.Location()) }
func (r Range) EndYMD() int   { return YMD(r.End, r.Location()) }
