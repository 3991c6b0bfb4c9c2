package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/alim08/treasury_line/pkg/config"
	"github.com/alim08/treasury_line/pkg/database"
	"github.com/alim08/treasury_line/pkg/logger"
	"go.uber.org/zap"
)

// runMigration performs a -migrate task against db and writes any report
// to w.
func runMigration(ctx context.Context, db *database.DB, task string, w io.Writer) error {
	switch task {
	case config.MigrateDown:
		if err := db.RollbackMigration(ctx); err != nil {
			return err
		}
		logger.Log.Info("migration rolled back")
		return nil

	case config.MigrateStatus:
		status, err := db.MigrationStatus(ctx)
		if err != nil {
			return fmt.Errorf("failed to read migration status: %w", err)
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tDESCRIPTION")
		for _, s := range status {
			state, at := "pending", "-"
			if s.Applied {
				state, at = "applied", s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Version, state, at, s.Description)
		}
		return tw.Flush()

	default:
		logger.Log.Warn("unknown migration task", zap.String("task", task))
		return fmt.Errorf("unknown migration task %q", task)
	}
}
