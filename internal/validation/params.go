package validation

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/sain-invites/sibc-dashboard/internal/analytics"
	"github.com/sain-invites/sibc-dashboard/internal/timeutil"
)

// Messages for rejected date parameters.
const (
	msgInvalidDate  = "Date must be in YYYY-MM-DD format"
	msgInvalidRange = "start date must not be after end date"
	msgRangeTooLong = "date range cannot exceed 366 days"
)

// DateRange validates the optional start and end parameters and resolves
// them to a range in loc. end is checked before start. Missing values fall
// back to today and the 30 days ending at end.
func DateRange(values url.Values, now time.Time, loc *time.Location) (timeutil.Range, error) {
	start := strings.TrimSpace(values.Get("start"))
	end := strings.TrimSpace(values.Get("end"))

	if end != "" {
		if _, err := timeutil.ParseDate(end, loc); err != nil {
			return timeutil.Range{}, fieldError("end", msgInvalidDate)
		}
	}
	if start != "" {
		if _, err := timeutil.ParseDate(start, loc); err != nil {
			return timeutil.Range{}, fieldError("start", msgInvalidDate)
		}
	}

	r, err := timeutil.ResolveRange(start, end, now, loc)
	switch {
	case err == nil:
		return r, nil
	case errors.Is(err, timeutil.ErrInvalidRange):
		return timeutil.Range{}, fieldError("start", msgInvalidRange)
	case errors.Is(err, timeutil.ErrRangeTooLong):
		return timeutil.Range{}, fieldError("start", msgRangeTooLong)
	default:
		return timeutil.Range{}, fieldError("start", msgInvalidDate)
	}
}

// Pagination validates the optional page and limit parameters.
func Pagination(values url.Values) (page, limit int, err error) {
	page, err = parseBoundedInt("page", values.Get("page"), analytics.DefaultPage, 1, analytics.MaxPage)
	if err != nil {
		return 0, 0, err
	}
	limit, err = parseBoundedInt("limit", values.Get("limit"), analytics.DefaultLimit, 1, analytics.MaxLimit)
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

// Sort validates the optional sort and order parameters. Missing values mean
// most recent activity first.
func Sort(values url.Values) (analytics.SortKey, analytics.SortOrder, error) {
	key := analytics.SortLastActivity
	if s := values.Get("sort"); s != "" {
		k, ok := analytics.ParseSortKey(s)
		if !ok {
			names := make([]string, len(analytics.SortKeys))
			for i, sk := range analytics.SortKeys {
				names[i] = string(sk)
			}
			return "", "", fieldError("sort", "sort must be one of: %s", strings.Join(names, ", "))
		}
		key = k
	}

	order := analytics.SortDesc
	if s := values.Get("order"); s != "" {
		o, ok := analytics.ParseSortOrder(strings.ToLower(s))
		if !ok {
			return "", "", fieldError("order", "order must be asc or desc")
		}
		order = o
	}
	return key, order, nil
}

// DirectoryQuery validates every user directory parameter in the order end,
// start, page, limit, q, sort, order. The first failure is returned.
func DirectoryQuery(values url.Values, now time.Time, loc *time.Location) (analytics.DirectoryQuery, error) {
	r, err := DateRange(values, now, loc)
	if err != nil {
		return analytics.DirectoryQuery{}, err
	}
	page, limit, err := Pagination(values)
	if err != nil {
		return analytics.DirectoryQuery{}, err
	}
	search, err := ValidateSearch(values.Get("q"))
	if err != nil {
		return analytics.DirectoryQuery{}, err
	}
	key, order, err := Sort(values)
	if err != nil {
		return analytics.DirectoryQuery{}, err
	}
	q := analytics.DefaultDirectoryQuery(r)
	q.Search = search
	q.Page, q.Limit = page, limit
	q.Sort, q.Order = key, order
	return q, nil
}
