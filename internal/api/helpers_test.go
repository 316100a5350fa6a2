package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sain-invites/sibc-dashboard/internal/analytics"
	"github.com/sain-invites/sibc-dashboard/internal/timeutil"
)

// fixedNow is 2025-03-10 01:00 in Korea.
var fixedNow = time.Date(2025, 3, 9, 16, 0, 0, 0, time.UTC)

var kstZone = timeutil.LoadZone(timeutil.DefaultZone)

// fakeStore records the queries it receives and returns canned results.
type fakeStore struct {
	mu sync.Mutex

	overviewCalls []timeutil.Range
	usersCalls    []analytics.DirectoryQuery
	user360Calls  []string
	user360Ranges []timeutil.Range

	err error
}

func (f *fakeStore) GetOverview(ctx context.Context, r timeutil.Range) (*analytics.OverviewResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overviewCalls = append(f.overviewCalls, r)
	if f.err != nil {
		return nil, f.err
	}
	return &analytics.OverviewResponse{
		KPIs: []analytics.KPI{{ID: "total-users", Title: "Total users", Value: 2, FormattedValue: "2"}},
		Meta: analytics.OverviewMeta{
			StartDate: r.StartDate(),
			EndDate:   r.EndDate(),
			Timezone:  timeutil.DefaultZone,
		},
	}, nil
}

func (f *fakeStore) ListUsers(ctx context.Context, q analytics.DirectoryQuery) (*analytics.DirectoryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usersCalls = append(f.usersCalls, q)
	if f.err != nil {
		return nil, f.err
	}
	return &analytics.DirectoryResponse{
		Users:      []analytics.DirectoryUser{{UserID: "u1", UserName: "Kim"}},
		Pagination: analytics.Pagination{Page: q.Page, Limit: q.Limit, Total: 1, TotalPages: 1},
		Meta: analytics.DirectoryMeta{
			StartDate: q.Range.StartDate(),
			EndDate:   q.Range.EndDate(),
			Sort:      q.Sort,
			Order:     q.Order,
		},
	}, nil
}

func (f *fakeStore) GetUser360(ctx context.Context, userID string, r timeutil.Range) (*analytics.User360Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user360Calls = append(f.user360Calls, userID)
	f.user360Ranges = append(f.user360Ranges, r)
	if f.err != nil {
		return nil, f.err
	}
	return &analytics.User360Response{
		Summary: analytics.User360Summary{UserID: userID, UserName: analytics.UnknownUser},
		Meta: analytics.User360Meta{
			UserID:    userID,
			StartDate: r.StartDate(),
			EndDate:   r.EndDate(),
			Timezone:  timeutil.DefaultZone,
		},
	}, nil
}

func (f *fakeStore) Location() *time.Location { return kstZone }

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.overviewCalls) + len(f.usersCalls) + len(f.user360Calls)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

var errConnRefused = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

// newTestServer builds a server over fakes with the clock pinned to fixedNow.
func newTestServer(t *testing.T, store *fakeStore, pinger Pinger, cfg Config) *Server {
	t.Helper()
	s := newServer(pinger, store, cfg)
	s.now = func() time.Time { return fixedNow }
	t.Cleanup(s.Close)
	return s
}

func get(handler http.Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "203.0.113.7:51000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}
