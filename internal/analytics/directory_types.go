package analytics

import (
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sain-invites/sibc-dashboard/internal/timeutil"
)

// Pagination bounds for the user directory.
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxPage      = 1000
	MaxLimit     = 100
)

// UnnamedUser is shown for users without a name.
const UnnamedUser = "(이름 없음)"

var (
	ErrInvalidSortKey   = errors.New("analytics: unknown sort key")
	ErrInvalidSortOrder = errors.New("analytics: unknown sort order")
	ErrInvalidPage      = errors.New("analytics: page out of range")
	ErrInvalidLimit     = errors.New("analytics: limit out of range")
)

// =============================================================================
// Sorting
// =============================================================================

// SortKey is a directory column users can be ordered by.
type SortKey string

const (
	SortUserName          SortKey = "userName"
	SortEventCount        SortKey = "eventCount"
	SortCompletedRoutines SortKey = "completedRoutines"
	SortCreatedRoutines   SortKey = "createdRoutines"
	SortCompletionRate    SortKey = "completionRate"
	SortLLMCost           SortKey = "llmCost"
	SortLastActivity      SortKey = "lastActivity"
)

// SortKeys lists every valid key.
var SortKeys = []SortKey{
	SortUserName,
	SortEventCount,
	SortCompletedRoutines,
	SortCreatedRoutines,
	SortCompletionRate,
	SortLLMCost,
	SortLastActivity,
}

// ParseSortKey returns the key named s, or false.
func ParseSortKey(s string) (SortKey, bool) {
	for _, k := range SortKeys {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// SortOrder is asc or desc.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortOrder returns the order named s, or false.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch SortOrder(s) {
	case SortAsc, SortDesc:
		return SortOrder(s), true
	}
	return "", false
}

// =============================================================================
// Request / response types
// =============================================================================

// DirectoryQuery selects one page of the user directory.
type DirectoryQuery struct {
	Range  timeutil.Range
	Search string // case-insensitive substring of name or id; empty matches all
	Page   int    // 1-indexed
	Limit  int
	Sort   SortKey
	Order  SortOrder
}

// DefaultDirectoryQuery returns page 1 sorted by most recent activity.
func DefaultDirectoryQuery(r timeutil.Range) DirectoryQuery {
	return DirectoryQuery{
		Range: r,
		Page:  DefaultPage,
		Limit: DefaultLimit,
		Sort:  SortLastActivity,
		Order: SortDesc,
	}
}

// Offset is the number of users skipped before this page.
func (q DirectoryQuery) Offset() int { return (q.Page - 1) * q.Limit }

// DirectoryResponse is the API response for the user directory.
type DirectoryResponse struct {
	Users      []DirectoryUser `json:"users"`
	Pagination Pagination      `json:"pagination"`
	Meta       DirectoryMeta   `json:"meta"`
}

// DirectoryUser is one row of the directory.
type DirectoryUser struct {
	UserID            string  `json:"userId"`
	UserName          string  `json:"userName"`
	EventCount        int64   `json:"eventCount"`
	CompletedRoutines int64   `json:"completedRoutines"`
	TotalRoutines     int64   `json:"totalRoutines"`
	CreatedRoutines   int64   `json:"createdRoutines"`
	CompletionRate    float64 `json:"completionRate"` // 0..100, one decimal
	LLMCost           float64 `json:"llmCost"`
	LastActivity      *string `json:"lastActivity"`
}

// Pagination describes the page returned and the filtered total.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// DirectoryMeta echoes the resolved range and ordering.
type DirectoryMeta struct {
	StartDate string    `json:"startDate"`
	EndDate   string    `json:"endDate"`
	Sort      SortKey   `json:"sort"`
	Order     SortOrder `json:"order"`
}

// =============================================================================
// Per-user aggregates
// =============================================================================

type rosterEntry struct {
	UserID   string
	UserName string
}

type eventActivity struct {
	Count int64
	Last  sql.NullTime
}

type routineActivity struct {
	Completed int64
	Total     int64
	Last      sql.NullTime
}

type llmActivity struct {
	Cost decimal.Decimal
	Last sql.NullTime
}

// directoryRow is a roster entry merged with its three aggregates.
type directoryRow struct {
	UserID       string
	UserName     string
	EventCount   int64
	Completed    int64
	Total        int64
	LLMCost      decimal.Decimal
	LastActivity *time.Time
}
