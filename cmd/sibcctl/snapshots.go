package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sain-invites/sibc-dashboard/internal/analytics"
	"github.com/sain-invites/sibc-dashboard/internal/storage"
)

// snapshotReader is the read side of the archive written by the snapshot worker.
type snapshotReader interface {
	ListSnapshots(ctx context.Context, kind string) ([]storage.Snapshot, error)
	GetSnapshot(ctx context.Context, key string) ([]byte, error)
}

const snapshotKindOverview = "overview"

func openS3Snapshots(ctx context.Context) (snapshotReader, func(), error) {
	cfg, err := storage.S3ConfigFromEnv(os.Getenv)
	if err != nil {
		return nil, nil, err
	}
	objects, err := storage.NewS3Storage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	snapshots, err := storage.NewSnapshotStore(objects)
	if err != nil {
		return nil, nil, err
	}
	return snapshots, snapshots.Close, nil
}

// withSnapshots opens the archive for one command and closes it afterwards.
func (a *app) withSnapshots(ctx context.Context, fn func(snapshotReader) error) error {
	snapshots, closeFn, err := a.openSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("failed to open snapshot archive: %w", err)
	}
	defer closeFn()
	return fn(snapshots)
}

func newSnapshotsCmd(a *app) *cobra.Command {
	snapshotsCmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Browse the archived overview snapshots",
		Long: `snapshots reads the archive the snapshot worker writes to S3. Storage
settings come from S3_ENDPOINT, S3_ACCESS_KEY, S3_SECRET_KEY and S3_BUCKET.`,
	}

	var kind string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List archived snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSnapshots(cmd.Context(), func(snapshots snapshotReader) error {
				list, err := snapshots.ListSnapshots(cmd.Context(), kind)
				if err != nil {
					return fmt.Errorf("failed to list snapshots: %w", err)
				}
				return a.render(cmd.OutOrStdout(), list, func(p *printer) { p.snapshots(list, a.now()) })
			})
		},
	}
	listCmd.Flags().StringVar(&kind, "kind", snapshotKindOverview, "Snapshot kind")

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one archived snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := storage.ParseSnapshotKey(args[0])
			if err != nil {
				return err
			}
			return a.withSnapshots(cmd.Context(), func(snapshots snapshotReader) error {
				payload, err := snapshots.GetSnapshot(cmd.Context(), snap.Key)
				if err != nil {
					return fmt.Errorf("failed to read snapshot %s: %w", snap.Key, err)
				}
				if snap.Kind != snapshotKindOverview {
					_, err := cmd.OutOrStdout().Write(payload)
					return err
				}

				var overview analytics.OverviewResponse
				if err := json.Unmarshal(payload, &overview); err != nil {
					return fmt.Errorf("snapshot %s is not an overview: %w", snap.Key, err)
				}
				return a.render(cmd.OutOrStdout(), &overview, func(p *printer) { p.overview(&overview) })
			})
		},
	}

	snapshotsCmd.AddCommand(listCmd, getCmd)
	return snapshotsCmd
}

func (p *printer) snapshots(list []storage.Snapshot, now time.Time) {
	p.line("KEY\tRANGE\tCREATED\tSIZE")
	for _, s := range list {
		p.line("%s\t%s .. %s\t%s\t%s",
			s.Key,
			s.StartDate, s.EndDate,
			humanize.RelTime(s.CreatedAt, now, "ago", "from now"),
			humanize.Bytes(uint64(s.Size)),
		)
	}
}
