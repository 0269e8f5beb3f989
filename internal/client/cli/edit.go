package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iudanet/salesnav/internal/client/edit"
	"github.com/iudanet/salesnav/internal/models"
)

func newEditCmd(app *App) *cobra.Command {
	var (
		pf     pageFlags
		sets   []string
		reason string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit projects of one page under its lock and save them in one batch",
		Long: strings.TrimSpace(`
Acquires the page lock, loads the page, keeps only values that differ from
the loaded ones and saves them with one bulk update. The lock is released
afterwards whatever the outcome. An empty value clears the field.`),
		Example: "  salesnav edit --page 2 --set 41.appointment_count=12 --set 41.situation= --reason \"weekly update\"",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(sets) == 0 {
				return fmt.Errorf("nothing to change: pass at least one --set ID.field=value")
			}

			assignments := make([]edit.Assignment, 0, len(sets))
			for _, s := range sets {
				a, err := edit.ParseAssignment(s)
				if err != nil {
					return err
				}
				assignments = append(assignments, a)
			}

			token, err := app.token(ctx)
			if err != nil {
				return err
			}

			res, err := app.editor.Run(ctx, token, edit.Request{
				Page:        pf.page,
				PageSize:    pf.pageSize,
				Filter:      pf.filter(),
				Reason:      reason,
				Assignments: assignments,
				DryRun:      dryRun,
			})
			if err != nil {
				return lockError(err)
			}

			if len(res.Items) == 0 {
				app.io.Println("No changes: every value matches the server.")
				return nil
			}

			for _, item := range res.Items {
				app.io.Printf("project %d:\n", item.ProjectID)
				for _, name := range patchFields(item.Data) {
					app.io.Printf("  %s = %s\n", name, string(item.Data[name]))
				}
			}

			if !res.Saved {
				app.io.Println("Dry run: nothing saved.")
				return nil
			}
			app.io.Printf("✓ Saved %d project(s): %v\n", len(res.UpdatedIDs), res.UpdatedIDs)
			return nil
		},
	}

	pf.register(cmd)
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Change ID.field=value (repeatable)")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in project history")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the changes without saving")
	return cmd
}

// patchFields возвращает поля patch в порядке реестра
func patchFields(p models.Patch) []string {
	if changes, err := p.Normalize(); err == nil {
		return changes.Names()
	}
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
