package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sain-invites/sibc-dashboard/internal/analytics"
	"github.com/sain-invites/sibc-dashboard/internal/db"
	"github.com/sain-invites/sibc-dashboard/internal/timeutil"
)

// dashboardQuerier is the read side of analytics.Store used by the query commands.
type dashboardQuerier interface {
	GetOverview(ctx context.Context, r timeutil.Range) (*analytics.OverviewResponse, error)
	ListUsers(ctx context.Context, q analytics.DirectoryQuery) (*analytics.DirectoryResponse, error)
	GetUser360(ctx context.Context, userID string, r timeutil.Range) (*analytics.User360Response, error)
	Location() *time.Location
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	databaseURL string
	timezone    string
	output      string
	timeout     time.Duration
}

// app holds the process dependencies so tests can swap the database out.
type app struct {
	opts      globalOptions
	now       func() time.Time
	openStore func(ctx context.Context, opts globalOptions) (dashboardQuerier, func() error, error)
	migrator  migrator

	openSnapshots func(ctx context.Context) (snapshotReader, func(), error)
}

func defaultApp() *app {
	return &app{
		now:       time.Now,
		openStore: openPostgresStore,
		migrator:  dbMigrator{},

		openSnapshots: openS3Snapshots,
	}
}

func openPostgresStore(ctx context.Context, opts globalOptions) (dashboardQuerier, func() error, error) {
	database, err := db.ConnectContext(ctx, opts.databaseURL, db.DefaultPoolConfig())
	if err != nil {
		return nil, nil, err
	}
	store := analytics.NewStore(database.Conn(),
		analytics.WithTimezone(opts.timezone),
		analytics.WithQueryTimeout(opts.timeout),
	)
	return store, database.Close, nil
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sibcctl",
		Short: "Query the SIBC analytics dashboard",
		Long: `sibcctl runs the dashboard's overview, user directory and user 360 queries
directly against PostgreSQL, manages the dashboard schema migrations and
reads the overview snapshot archive.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := time.LoadLocation(a.opts.timezone); err != nil {
				return fmt.Errorf("invalid --timezone %q: %w", a.opts.timezone, err)
			}
			switch a.opts.output {
			case outputJSON, outputText:
			default:
				return fmt.Errorf("invalid --output %q: must be %s or %s", a.opts.output, outputJSON, outputText)
			}
			return nil
		},
	}

	defaultTZ := os.Getenv("DASHBOARD_TIMEZONE")
	if defaultTZ == "" {
		defaultTZ = timeutil.DefaultZone
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.opts.databaseURL, "database-url", db.DSNFromEnv(os.Getenv), "PostgreSQL connection string (default from DATABASE_URL or DB_* env vars)")
	flags.StringVar(&a.opts.timezone, "timezone", defaultTZ, "IANA zone used to bucket days")
	flags.StringVarP(&a.opts.output, "output", "o", outputJSON, "Output format: json or text")
	flags.DurationVar(&a.opts.timeout, "query-timeout", analytics.DefaultQueryTimeout, "Timeout for each SQL query")

	rootCmd.AddCommand(
		newOverviewCmd(a),
		newUsersCmd(a),
		newUser360Cmd(a),
		newMigrateCmd(a),
		newSnapshotsCmd(a),
	)
	return rootCmd
}

// withStore opens the store for one command and closes it afterwards.
func (a *app) withStore(ctx context.Context, fn func(dashboardQuerier) error) error {
	store, closeFn, err := a.openStore(ctx, a.opts)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer closeFn()
	return fn(store)
}
