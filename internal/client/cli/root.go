// Package cli реализует команды клиента salesnav
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/salesnav/internal/client/api"
	"github.com/iudanet/salesnav/internal/client/auth"
	"github.com/iudanet/salesnav/internal/client/edit"
	"github.com/iudanet/salesnav/internal/client/iocli"
	"github.com/iudanet/salesnav/internal/client/storage/boltdb"
)

// Переменные окружения клиента
const (
	envServer   = "SALESNAV_SERVER"
	envDB       = "SALESNAV_CLIENT_DB"
	envPassword = "SALESNAV_PASSWORD"
	envLogLevel = "SALESNAV_LOG_LEVEL"
)

const defaultServer = "http://localhost:8080"

// BuildInfo сведения о сборке для команды version
type BuildInfo struct {
	Version   string
	BuildDate string
	GitCommit string
}

// App общее состояние команд
type App struct {
	io     iocli.IO
	logger *slog.Logger
	now    func() time.Time

	serverURL string
	dbPath    string

	store     *boltdb.Storage
	apiClient *api.Client
	auth      *auth.Service
	editor    *edit.Editor
}

func newApp(stdio iocli.IO) *App {
	return &App{io: stdio, now: time.Now}
}

// newRootCmd создает корневую команду salesnav
func newRootCmd(app *App, build BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "salesnav",
		Short:         "SalesNav CRM client: page locks, bulk edits and project history",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: strings.TrimSpace(`
  salesnav login --email sato@example.com
  salesnav projects list --page 1 --page-size 20
  salesnav edit --page 1 --set 12.appointment_count=10 --set 12.remarks=
  salesnav history 12
  salesnav undo 12
`),
	}

	cmd.PersistentFlags().StringVar(&app.serverURL, "server", envOr(envServer, defaultServer), "Server URL")
	cmd.PersistentFlags().StringVar(&app.dbPath, "db", envOr(envDB, defaultDBPath()), "Path to local client database")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations["local"] == "true" {
			return nil
		}
		return app.open(cmd.Context())
	}

	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newStatusCmd(app))
	cmd.AddCommand(newProjectsCmd(app))
	cmd.AddCommand(newMasterCmd(app))
	cmd.AddCommand(newLockCmd(app))
	cmd.AddCommand(newUnlockCmd(app))
	cmd.AddCommand(newEditCmd(app))
	cmd.AddCommand(newHistoryCmd(app))
	cmd.AddCommand(newRestoreCmd(app))
	cmd.AddCommand(newUndoCmd(app))
	cmd.AddCommand(newUsersCmd(app))
	cmd.AddCommand(newVersionCmd(app, build))

	return cmd
}

// Execute запускает клиент с аргументами args и возвращает код выхода
func Execute(ctx context.Context, stdio iocli.IO, stderr io.Writer, build BuildInfo, args []string) int {
	app := newApp(stdio)
	app.logger = newLogger(stderr)

	if err := run(ctx, app, build, stderr, args); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, app *App, build BuildInfo, stderr io.Writer, args []string) error {
	defer func() {
		if err := app.close(); err != nil {
			app.logger.Warn("failed to close local database", slog.Any("error", err))
		}
	}()

	cmd := newRootCmd(app, build)
	cmd.SetArgs(args)
	cmd.SetOut(app.io)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}

// open открывает локальное хранилище и создает сервисы
func (a *App) open(ctx context.Context) error {
	if a.logger == nil {
		a.logger = newLogger(os.Stderr)
	}

	if dir := filepath.Dir(a.dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create client directory: %w", err)
		}
	}

	store, err := boltdb.New(ctx, a.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open local database: %w", err)
	}

	a.store = store
	a.apiClient = api.NewClient(a.serverURL)
	a.auth = auth.NewService(a.apiClient, store)
	a.editor = edit.NewEditor(a.apiClient, store, a.logger)
	return nil
}

func (a *App) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// token возвращает действующий access token, обновляя его при необходимости
func (a *App) token(ctx context.Context) (string, error) {
	return a.auth.AccessToken(ctx)
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if v := os.Getenv(envLogLevel); v != "" {
		_ = level.UnmarshalText([]byte(v))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "salesnav-client.db"
	}
	return filepath.Join(home, ".salesnav", "client.db")
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
