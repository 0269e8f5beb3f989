package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iudanet/salesnav/internal/client/api"
	"github.com/iudanet/salesnav/internal/client/edit"
	"github.com/iudanet/salesnav/internal/models"
)

// pageFlags параметры страницы, общие для list, lock, unlock и edit
type pageFlags struct {
	search   string
	status   int64
	page     int
	pageSize int
}

func (f *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.page, "page", 1, "Page number")
	cmd.Flags().IntVar(&f.pageSize, "page-size", 20, "Page size")
	cmd.Flags().StringVar(&f.search, "search", "", "Filter by name or client name")
	cmd.Flags().Int64Var(&f.status, "status", 0, "Filter by progress status id")
}

func (f *pageFlags) filter() edit.Filter {
	filter := edit.Filter{Search: strings.TrimSpace(f.search)}
	if f.status > 0 {
		status := f.status
		filter.ProgressStatusID = &status
	}
	return filter
}

func (f *pageFlags) key() models.LockKey {
	return models.LockKey{Page: f.page, PageSize: f.pageSize, FilterHash: f.filter().Hash()}
}

func (f *pageFlags) query() api.ProjectQuery {
	filter := f.filter()
	return api.ProjectQuery{
		Page:             f.page,
		PageSize:         f.pageSize,
		Search:           filter.Search,
		ProgressStatusID: filter.ProgressStatusID,
	}
}

func newProjectsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Project commands",
	}
	cmd.AddCommand(newProjectsListCmd(app))
	cmd.AddCommand(newProjectsShowCmd(app))
	return cmd
}

func newProjectsListCmd(app *App) *cobra.Command {
	var pf pageFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a page of projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			token, err := app.token(ctx)
			if err != nil {
				return err
			}

			page, err := app.apiClient.ListProjects(ctx, token, pf.query())
			if err != nil {
				return err
			}

			app.io.Printf("Projects %d (page %d, %d per page, filter %s)\n", page.Count, pf.page, pf.pageSize, pf.filter().Hash())
			if len(page.Results) == 0 {
				app.io.Println("No projects found.")
				return nil
			}
			for _, p := range page.Results {
				app.io.Printf("%6d  %-30s  %-20s  %-10s  appointments=%d\n",
					p.ID, p.Name, p.ClientName, orDash(p.ProgressStatusName), p.AppointmentCount)
			}
			return nil
		},
	}

	pf.register(cmd)
	return cmd
}

func newProjectsShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show every editable field of a project",
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

			p, err := app.apiClient.GetProject(ctx, token, id)
			if err != nil {
				return err
			}

			app.io.Printf("=== Project %d ===\n", p.ID)
			for _, f := range models.ProjectFields() {
				app.io.Printf("%-26s %s\n", f.Name+":", formatValue(f.Get(p)))
			}
			app.io.Printf("%-26s %s\n", "progress_status:", orDash(p.ProgressStatusName))
			app.io.Printf("%-26s %s\n", "service_type:", orDash(p.ServiceTypeName))
			app.io.Printf("%-26s %s\n", "media_type:", orDash(p.MediaTypeName))
			app.io.Printf("%-26s %s\n", "updated_at:", p.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newMasterCmd(app *App) *cobra.Command {
	kinds := make([]string, 0, len(models.MasterKinds))
	for k := range models.MasterKinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	return &cobra.Command{
		Use:       "master KIND",
		Short:     "List master data (" + strings.Join(kinds, ", ") + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			token, err := app.token(ctx)
			if err != nil {
				return err
			}

			resp, err := app.apiClient.ListMaster(ctx, token, args[0])
			if err != nil {
				return err
			}
			for _, item := range resp.Items {
				app.io.Printf("%4d  %s\n", item.ID, item.Name)
			}
			return nil
		},
	}
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		if val == "" {
			return "-"
		}
		return val
	default:
		return fmt.Sprint(val)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
