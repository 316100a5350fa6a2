package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/sain-invites/sibc-dashboard/internal/timeutil"
	"github.com/sain-invites/sibc-dashboard/internal/validation"
)

// flagValues copies the flags the user actually set into query parameters,
// so the same validators and defaults apply as for HTTP requests.
func flagValues(cmd *cobra.Command, names ...string) url.Values {
	values := url.Values{}
	for _, name := range names {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			values.Set(name, f.Value.String())
		}
	}
	return values
}

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("start", "", "First day, YYYY-MM-DD (default: 29 days before end)")
	cmd.Flags().String("end", "", "Last day, YYYY-MM-DD (default: today)")
}

func invalidParam(err error) error {
	return fmt.Errorf("invalid parameter %w", err)
}

func newOverviewCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Show KPIs, daily trends and breakdowns for a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := timeutil.LoadZone(a.opts.timezone)
			r, err := validation.DateRange(flagValues(cmd, "start", "end"), a.now(), loc)
			if err != nil {
				return invalidParam(err)
			}

			return a.withStore(cmd.Context(), func(store dashboardQuerier) error {
				overview, err := store.GetOverview(cmd.Context(), r)
				if err != nil {
					return fmt.Errorf("failed to build overview: %w", err)
				}
				return a.render(cmd.OutOrStdout(), overview, func(p *printer) { p.overview(overview) })
			})
		},
	}
	addRangeFlags(cmd)
	return cmd
}

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users with their activity for a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := timeutil.LoadZone(a.opts.timezone)
			values := flagValues(cmd, "start", "end", "page", "limit", "q", "sort", "order")
			q, err := validation.DirectoryQuery(values, a.now(), loc)
			if err != nil {
				return invalidParam(err)
			}

			return a.withStore(cmd.Context(), func(store dashboardQuerier) error {
				users, err := store.ListUsers(cmd.Context(), q)
				if err != nil {
					return fmt.Errorf("failed to list users: %w", err)
				}
				return a.render(cmd.OutOrStdout(), users, func(p *printer) { p.users(users, a.now()) })
			})
		},
	}
	addRangeFlags(cmd)
	cmd.Flags().String("q", "", "Filter by name or user ID substring")
	cmd.Flags().String("page", "", "Page number, 1-indexed (default 1)")
	cmd.Flags().String("limit", "", "Users per page (default 20)")
	cmd.Flags().String("sort", "", "Sort column (default lastActivity)")
	cmd.Flags().String("order", "", "asc or desc (default desc)")
	return cmd
}

func newUser360Cmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user360 <userId>",
		Short: "Show the 360 view of one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			if err := validation.ValidateUserID(userID); err != nil {
				return invalidParam(err)
			}
			loc := timeutil.LoadZone(a.opts.timezone)
			r, err := validation.DateRange(flagValues(cmd, "start", "end"), a.now(), loc)
			if err != nil {
				return invalidParam(err)
			}

			return a.withStore(cmd.Context(), func(store dashboardQuerier) error {
				view, err := store.GetUser360(cmd.Context(), userID, r)
				if err != nil {
					return fmt.Errorf("failed to load user %s: %w", userID, err)
				}
				return a.render(cmd.OutOrStdout(), view, func(p *printer) { p.user360(view) })
			})
		},
	}
	addRangeFlags(cmd)
	return cmd
}
