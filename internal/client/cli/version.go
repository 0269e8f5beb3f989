package cli

import "github.com/spf13/cobra"

func newVersionCmd(app *App, build BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Show version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"local": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			app.io.Println("SalesNav Client")
			app.io.Printf("Version:    %s\n", build.Version)
			app.io.Printf("Build Date: %s\n", build.BuildDate)
			app.io.Printf("Git Commit: %s\n", build.GitCommit)
			return nil
		},
	}
}
