package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iudanet/salesnav/internal/client/edit"
	"github.com/iudanet/salesnav/internal/models"
)

const defaultHistoryFallback = 10

func newHistoryCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history ID",
		Short: "Show project snapshots of the last 7 days (or the most recent ones)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			token, err := app.token(ctx)
			if err != nil {
				return err
			}

			h, err := edit.LoadHistory(ctx, app.apiClient, token, id, app.now(), limit)
			if err != nil {
				return err
			}

			if len(h.Snapshots) == 0 {
				app.io.Printf("Project %d has no history.\n", id)
				return nil
			}
			if h.Windowed {
				app.io.Printf("History of project %d, last 7 days (%d):\n", id, h.Total)
			} else {
				app.io.Printf("No changes in the last 7 days, showing the %d most recent of %d:\n", len(h.Snapshots), h.Total)
			}
			for _, s := range h.Snapshots {
				printSnapshot(app, s)
			}
			app.io.Println("Run 'salesnav restore ID SNAPSHOT' to restore a snapshot.")
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultHistoryFallback, "Number of snapshots shown when the 7-day window is empty")
	return cmd
}

func newRestoreCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "restore ID SNAPSHOT",
		Short: "Restore a project from a snapshot (the current state is kept as an undo snapshot)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			sid, err := parseID(args[1], "snapshot")
			if err != nil {
				return err
			}
			return app.restore(cmd, id, sid)
		},
	}
}

func newUndoCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "undo ID",
		Short: "Undo the latest change of a project (run again to redo)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			token, err := app.token(ctx)
			if err != nil {
				return err
			}

			latest, err := edit.Latest(ctx, app.apiClient, token, id)
			if err != nil {
				return err
			}
			if latest == nil {
				return fmt.Errorf("project %d has no history to undo", id)
			}
			return app.restore(cmd, id, latest.ID)
		},
	}
}

func (a *App) restore(cmd *cobra.Command, projectID, snapshotID int64) error {
	ctx := cmd.Context()
	token, err := a.token(ctx)
	if err != nil {
		return err
	}

	resp, err := a.apiClient.Restore(ctx, token, projectID, snapshotID)
	if err != nil {
		return err
	}

	a.io.Printf("✓ Project %d restored from snapshot %d\n", projectID, snapshotID)
	if s := resp.Snapshot; s != nil {
		fields := s.ChangedFields
		if len(fields) == 0 {
			fields = models.ParseReasonFields(s.Reason)
		}
		if len(fields) > 0 {
			a.io.Printf("Changed fields: %s\n", strings.Join(fields, ", "))
		}
		a.io.Printf("Undo snapshot %d keeps the previous state.\n", s.ID)
	}
	return nil
}

func printSnapshot(app *App, s *models.Snapshot) {
	who := s.CreatedByName
	if who == "" {
		who = s.CreatedBy
	}
	app.io.Printf("#%-6d %s  %-8s  %s\n", s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"), s.SourceLabel, orDash(who))
	if len(s.ChangedFields) > 0 {
		app.io.Printf("        fields: %s\n", strings.Join(s.ChangedFields, ", "))
	}
	if s.Reason != "" {
		app.io.Printf("        reason: %s\n", s.Reason)
	}
}
