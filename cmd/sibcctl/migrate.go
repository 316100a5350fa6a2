package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sain-invites/sibc-dashboard/internal/db"
)

type migrator interface {
	Up(dsn string) error
	Down(dsn string) error
	Version(dsn string) (uint, bool, error)
}

type dbMigrator struct{}

func (dbMigrator) Up(dsn string) error                    { return db.MigrateUp(dsn) }
func (dbMigrator) Down(dsn string) error                  { return db.MigrateDown(dsn) }
func (dbMigrator) Version(dsn string) (uint, bool, error) { return db.MigrationVersion(dsn) }

var errConfirmDown = errors.New("migrate down drops every dashboard table; rerun with --yes to confirm")

func newMigrateCmd(a *app) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the dashboard schema",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.migrator.Up(a.opts.databaseURL); err != nil {
				return err
			}
			return printVersion(cmd, a)
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return errConfirmDown
			}
			if err := a.migrator.Down(a.opts.databaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "all migrations rolled back")
			return nil
		},
	}
	downCmd.Flags().Bool("yes", false, "Confirm dropping the schema")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printVersion(cmd, a)
		},
	}

	migrateCmd.AddCommand(upCmd, downCmd, versionCmd)
	return migrateCmd
}

func printVersion(cmd *cobra.Command, a *app) error {
	version, dirty, err := a.migrator.Version(a.opts.databaseURL)
	if err != nil {
		return err
	}
	switch {
	case version == 0:
		fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
	case dirty:
		fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty)\n", version)
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "version %d\n", version)
	}
	return nil
}
