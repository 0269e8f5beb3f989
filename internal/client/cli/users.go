package cli

import (
	"github.com/spf13/cobra"

	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/pkg/api"
)

func newUsersCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "User management (admin only)",
	}
	cmd.AddCommand(newUsersCreateCmd(app))
	return cmd
}

func newUsersCreateCmd(app *App) *cobra.Command {
	var (
		req          api.CreateUserRequest
		passwordFile string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			token, err := app.token(ctx)
			if err != nil {
				return err
			}

			if req.Password, err = app.readPassword("New user password: ", passwordFile); err != nil {
				return err
			}

			user, err := app.apiClient.CreateUser(ctx, token, req)
			if err != nil {
				return err
			}

			app.io.Printf("✓ Created %s <%s> with role %s (id %s)\n", user.Name, user.Email, user.Role, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Email, "email", "", "Email (login)")
	cmd.Flags().StringVar(&req.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&req.Role, "role", models.RoleUser, "Role: user or admin")
	cmd.Flags().StringVar(&passwordFile, "password-file", "", "Read password from file (default: "+envPassword+" or prompt)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
