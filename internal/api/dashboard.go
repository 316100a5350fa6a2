package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sain-invites/sibc-dashboard/internal/analytics"
	"github.com/sain-invites/sibc-dashboard/internal/logger"
	"github.com/sain-invites/sibc-dashboard/internal/validation"
)

// HandlerOptions carries what the dashboard handlers need besides the store.
type HandlerOptions struct {
	// Now is the clock used to resolve default date ranges.
	Now func() time.Time
	// Development exposes internal error messages in 500 responses.
	Development bool
}

func (o HandlerOptions) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// HandleOverview returns KPIs, trends and breakdowns for the requested range.
func HandleOverview(store DashboardStore, opts HandlerOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.Ctx(r.Context())

		rng, err := validation.DateRange(r.URL.Query(), opts.now(), store.Location())
		if err != nil {
			log.Info("rejected overview request", "error", err)
			respondInvalidParam(w, err)
			return
		}

		resp, err := store.GetOverview(r.Context(), rng)
		if err != nil {
			log.Error("failed to build overview",
				"error", err,
				"start", rng.StartDate(),
				"end", rng.EndDate())
			respondInternal(w, err, opts.Development)
			return
		}

		respondJSON(w, http.StatusOK, resp)
	}
}

// HandleListUsers returns one page of the user directory.
func HandleListUsers(store DashboardStore, opts HandlerOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.Ctx(r.Context())

		q, err := validation.DirectoryQuery(r.URL.Query(), opts.now(), store.Location())
		if err != nil {
			log.Info("rejected users request", "error", err)
			respondInvalidParam(w, err)
			return
		}

		resp, err := store.ListUsers(r.Context(), q)
		if err != nil {
			if field := queryErrorField(err); field != "" {
				respondInvalidParam(w, &validation.FieldError{Field: field, Message: err.Error()})
				return
			}
			log.Error("failed to list users",
				"error", err,
				"start", q.Range.StartDate(),
				"end", q.Range.EndDate(),
				"sort", q.Sort,
				"page", q.Page)
			respondInternal(w, err, opts.Development)
			return
		}

		respondJSON(w, http.StatusOK, resp)
	}
}

// HandleUser360 returns the detail view for one user. Unknown users get an
// empty view rather than a 404.
func HandleUser360(store DashboardStore, opts HandlerOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.Ctx(r.Context())

		userID := chi.URLParam(r, "userId")
		if err := validation.ValidateUserID(userID); err != nil {
			log.Info("rejected user360 request", "error", err)
			respondInvalidParam(w, err)
			return
		}

		ctx := logger.With(r.Context(), "user_id", userID)
		log = logger.Ctx(ctx)

		rng, err := validation.DateRange(r.URL.Query(), opts.now(), store.Location())
		if err != nil {
			log.Info("rejected user360 request", "error", err)
			respondInvalidParam(w, err)
			return
		}

		resp, err := store.GetUser360(ctx, userID, rng)
		if err != nil {
			log.Error("failed to build user360", "error", err)
			respondInternal(w, err, opts.Development)
			return
		}

		respondJSON(w, http.StatusOK, resp)
	}
}

// queryErrorField names the parameter behind a store-side query rejection,
// or returns "" for any other error.
func queryErrorField(err error) string {
	switch {
	case errors.Is(err, analytics.ErrInvalidPage):
		return "page"
	case errors.Is(err, analytics.ErrInvalidLimit):
		return "limit"
	case errors.Is(err, analytics.ErrInvalidSortKey):
		return "sort"
	case errors.Is(err, analytics.ErrInvalidSortOrder):
		return "order"
	}
	return ""
}
