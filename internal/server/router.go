// Package server собирает HTTP API координатора из handlers и middleware.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/salesnav/internal/metrics"
	"github.com/iudanet/salesnav/internal/server/handlers"
	"github.com/iudanet/salesnav/internal/server/middleware"
)

const apiPrefix = "/api/v1"

// Deps зависимости роутера
type Deps struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	JWT      handlers.JWTConfig
	Health   *handlers.HealthHandler
	Auth     *handlers.AuthHandler
	Users    *handlers.UserHandler
	Locks    *handlers.LockHandler
	Projects *handlers.ProjectHandler
	Master   *handlers.MasterHandler

	// LoginLimiter ограничивает /auth/login, nil отключает ограничение
	LoginLimiter *middleware.RateLimiter
	// TrustedProxies прокси, чьи X-Forwarded-For учитываются лимитером
	TrustedProxies middleware.TrustedProxies
}

// NewRouter returns the root handler with every API route and the global middleware chain
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authed := middleware.AuthMiddleware(d.Logger, d.JWT)
	admin := func(h http.HandlerFunc) http.Handler {
		return authed(middleware.RequireAdmin(d.Logger)(h))
	}
	user := func(h http.HandlerFunc) http.Handler {
		return authed(h)
	}

	var login http.Handler = http.HandlerFunc(d.Auth.Login)
	if d.LoginLimiter != nil {
		login = middleware.RateLimitMiddleware(d.LoginLimiter, d.Logger, d.TrustedProxies)(login)
	}

	// Публичные маршруты
	handle(mux, "GET", "/health", http.HandlerFunc(d.Health.Health))
	handle(mux, "POST", "/auth/login", login)
	handle(mux, "POST", "/auth/refresh", http.HandlerFunc(d.Auth.Refresh))
	mux.Handle("GET /metrics", d.Metrics.Handler())

	handle(mux, "POST", "/auth/logout", user(d.Auth.Logout))
	handle(mux, "GET", "/auth/me", user(d.Auth.Me))
	handle(mux, "POST", "/users", admin(d.Users.CreateUser))

	handle(mux, "GET", "/master/{kind}", user(d.Master.List))

	handle(mux, "GET", "/projects", user(d.Projects.List))
	handle(mux, "POST", "/projects", user(d.Projects.Create))
	handle(mux, "GET", "/projects/{id}", user(d.Projects.Get))
	handle(mux, "PATCH", "/projects/{id}", user(d.Projects.Patch))
	handle(mux, "DELETE", "/projects/{id}", admin(d.Projects.Delete))

	handle(mux, "POST", "/projects/page-lock", user(d.Locks.Acquire))
	handle(mux, "GET", "/projects/page-lock", user(d.Locks.Status))
	handle(mux, "GET", "/projects/page-locks", user(d.Locks.Mine))
	handle(mux, "DELETE", "/projects/page-unlock", user(d.Locks.Release))
	handle(mux, "POST", "/projects/bulk-partial-update", user(d.Projects.BulkPartialUpdate))

	handle(mux, "GET", "/projects/{id}/snapshots", user(d.Projects.ListSnapshots))
	handle(mux, "GET", "/projects/{id}/snapshots/{sid}", user(d.Projects.GetSnapshot))
	handle(mux, "POST", "/projects/{id}/snapshots/{sid}/restore", user(d.Projects.Restore))

	// Порядок: recovery снаружи, чтобы паника в логировании и метриках тоже перехватывалась
	var h http.Handler = mux
	h = middleware.MetricsMiddleware(d.Metrics)(h)
	h = middleware.LoggingMiddleware(d.Logger, apiPrefix+"/health", "/metrics")(h)
	h = middleware.RecoveryMiddleware(d.Logger)(h)
	return h
}

// handle регистрирует маршрут с завершающим слешем и без него
func handle(mux *http.ServeMux, method, path string, h http.Handler) {
	mux.Handle(method+" "+apiPrefix+path, h)
	mux.Handle(method+" "+apiPrefix+path+"/{$}", h)
}

// NewHTTPServer оборачивает handler в http.Server с таймаутами
func NewHTTPServer(addr string, h http.Handler, read, write, idle time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       read,
		ReadHeaderTimeout: read,
		WriteTimeout:      write,
		IdleTimeout:       idle,
	}
}
