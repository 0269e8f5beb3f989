package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/salesnav/internal/config"
	"github.com/iudanet/salesnav/internal/metrics"
	"github.com/iudanet/salesnav/internal/server"
	"github.com/iudanet/salesnav/internal/server/handlers"
	"github.com/iudanet/salesnav/internal/server/lock"
	"github.com/iudanet/salesnav/internal/server/middleware"
	"github.com/iudanet/salesnav/internal/server/projects"
	"github.com/iudanet/salesnav/internal/server/storage"
	"github.com/iudanet/salesnav/internal/server/storage/postgres"
	"github.com/iudanet/salesnav/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// tokenCleanupInterval период удаления истекших refresh tokens
const tokenCleanupInterval = time.Hour

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", os.Getenv("SALESNAV_CONFIG"), "Path to YAML config file")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "salesnav server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath, os.LookupEnv)
	if err != nil {
		return err
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	var lockStore storage.LockStorage = store
	pingers := pingAll{store}
	if cfg.Locks.Backend == config.LockBackendPostgres {
		pg, err := postgres.New(ctx, cfg.Locks.PostgresDSN)
		if err != nil {
			return fmt.Errorf("failed to open postgres lock store: %w", err)
		}
		defer func() { _ = pg.Close() }()
		lockStore = pg
		pingers = append(pingers, pg)
	}
	logger.Info("page lock backend selected",
		slog.String("backend", cfg.Locks.Backend),
		slog.Duration("ttl", cfg.Locks.TTL))

	if cfg.Bootstrap.AdminEmail != "" {
		created, err := handlers.EnsureAdmin(ctx, store, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminName, cfg.Bootstrap.AdminPassword)
		if err != nil {
			return err
		}
		if created {
			logger.Info("bootstrap admin created", slog.String("email", cfg.Bootstrap.AdminEmail))
		}
	}

	m := metrics.New()
	jwtCfg := handlers.JWTConfig{
		Secret:          []byte(cfg.Auth.JWTSecret),
		AccessTokenTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
	}

	locks := lock.NewManager(logger, lockStore, m, cfg.Locks.TTL)
	service := projects.NewService(logger, store, locks, m, projects.Config{
		RequireLock: cfg.Locks.RequireForBulkUpdate,
		LockInTx:    cfg.Locks.Backend == config.LockBackendSQLite,
	})

	limiter := middleware.NewRateLimiter(cfg.Auth.LoginRateLimit, cfg.Auth.LoginRateWindow)
	defer limiter.Stop()

	proxies, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	router := server.NewRouter(server.Deps{
		Logger:         logger,
		Metrics:        m,
		JWT:            jwtCfg,
		Health:         handlers.NewHealthHandler(logger, pingers, Version),
		Auth:           handlers.NewAuthHandler(logger, store, store, jwtCfg),
		Users:          handlers.NewUserHandler(logger, store),
		Locks:          handlers.NewLockHandler(logger, locks),
		Projects:       handlers.NewProjectHandler(logger, service),
		Master:         handlers.NewMasterHandler(logger, store),
		LoginLimiter:   limiter,
		TrustedProxies: proxies,
	})

	go locks.Run(ctx, cfg.Locks.SweepInterval)
	go cleanupTokens(ctx, logger, store)

	srv := server.NewHTTPServer(cfg.Server.Address, router,
		cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout)

	errC := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("address", cfg.Server.Address),
			slog.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
		close(errC)
	}()

	select {
	case err := <-errC:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", slog.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// cleanupTokens периодически удаляет истекшие refresh tokens
func cleanupTokens(ctx context.Context, logger *slog.Logger, tokens storage.TokenStorage) {
	ticker := time.NewTicker(tokenCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := tokens.DeleteExpiredTokens(ctx, time.Now())
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("failed to delete expired tokens", slog.Any("error", err))
				}
				continue
			}
			if n > 0 {
				logger.Info("expired refresh tokens removed", slog.Int("count", n))
			}
		}
	}
}

// pingAll проверяет все хранилища сервера
type pingAll []handlers.Pinger

func (p pingAll) Ping(ctx context.Context) error {
	for _, db := range p {
		if err := db.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

func printVersion() {
	fmt.Printf("Salesnav Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
