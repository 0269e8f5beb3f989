package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/salesnav/internal/client/auth"
)

func newLoginCmd(app *App) *cobra.Command {
	var (
		email        string
		passwordFile string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				var err error
				if email, err = app.io.ReadInput("Email: "); err != nil {
					return fmt.Errorf("failed to read email: %w", err)
				}
			}

			password, err := app.readPassword("Password: ", passwordFile)
			if err != nil {
				return err
			}

			session, err := app.auth.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}

			app.io.Println("✓ Login successful!")
			app.io.Printf("User:   %s <%s>\n", session.Name, session.Email)
			app.io.Printf("Role:   %s\n", session.Role)
			app.io.Printf("Access token expires: %s\n", time.Unix(session.ExpiresAt, 0).Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&passwordFile, "password-file", "", "Read password from file (default: "+envPassword+" or prompt)")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session on the server and forget it locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.auth.Logout(cmd.Context()); err != nil {
				if errors.Is(err, auth.ErrNotAuthenticated) {
					app.io.Println("Not logged in.")
					return nil
				}
				return err
			}
			app.io.Println("✓ Logged out.")
			return nil
		},
	}
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session and locally recorded page locks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app.io.Println("=== Status ===")
			app.io.Printf("Server: %s\n", app.serverURL)

			session, err := app.auth.Status(ctx)
			if err != nil {
				if errors.Is(err, auth.ErrNotAuthenticated) {
					app.io.Println("Session: not authenticated")
					app.io.Println("Run 'salesnav login' to authenticate.")
					return nil
				}
				return err
			}

			expiresAt := time.Unix(session.ExpiresAt, 0)
			app.io.Printf("Session: %s <%s> (%s)\n", session.Name, session.Email, session.Role)
			if remaining := expiresAt.Sub(app.now()); remaining > 0 {
				app.io.Printf("Access token expires in %s\n", remaining.Round(time.Second))
			} else {
				app.io.Println("Access token expired, it will be refreshed on the next request.")
			}

			locks, err := app.store.ListLocks(ctx)
			if err != nil {
				return err
			}
			if len(locks) == 0 {
				app.io.Println("Page locks: none")
				return nil
			}
			app.io.Printf("Page locks recorded locally: %d\n", len(locks))
			for _, l := range locks {
				app.io.Printf("  page=%d page_size=%d filter=%s expires=%s\n",
					l.Key.Page, l.Key.PageSize, l.Key.FilterHash, l.ExpiresAt.Local().Format(time.RFC3339))
			}
			app.io.Println("Run 'salesnav unlock --all' to release them.")
			return nil
		},
	}
}

// readPassword берет пароль из SALESNAV_PASSWORD, файла или спрашивает у пользователя
func (a *App) readPassword(prompt, file string) (string, error) {
	if v := os.Getenv(envPassword); v != "" {
		return v, nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
	password, err := a.io.ReadPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}
