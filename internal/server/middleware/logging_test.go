package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iudanet/salesnav/internal/server/handlers"
)

func newBufferLogger(buf *strings.Builder) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func TestLoggingMiddleware_Levels(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{name: "ok", status: http.StatusOK, wantLevel: "level=INFO"},
		{name: "created", status: http.StatusCreated, wantLevel: "level=INFO"},
		{name: "lock conflict", status: http.StatusConflict, wantLevel: "level=WARN"},
		{name: "not found", status: http.StatusNotFound, wantLevel: "level=WARN"},
		{name: "server error", status: http.StatusInternalServerError, wantLevel: "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf strings.Builder
			handler := LoggingMiddleware(newBufferLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/bulk-partial-update/", nil)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			out := buf.String()
			assert.Contains(t, out, tt.wantLevel)
			assert.Contains(t, out, "path=/api/v1/projects/bulk-partial-update/")
		})
	}
}

func TestLoggingMiddleware_RouteAndUser(t *testing.T) {
	var buf strings.Builder

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/projects/{id}/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Hello, World!"))
	})

	// Пользователь в контексте до логгера, как после AuthMiddleware снаружи
	withUser := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(handlers.WithUser(r.Context(), "u-42", "name", "user")))
		})
	}
	handler := withUser(LoggingMiddleware(newBufferLogger(&buf))(mux))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/7/?search=secret", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, `route="GET /api/v1/projects/{id}/"`)
	assert.Contains(t, out, "user_id=u-42")
	assert.Contains(t, out, "bytes_written=13")
	assert.Contains(t, out, "status=200")
	assert.NotContains(t, out, "secret")
}

func TestLoggingMiddleware_SkipPaths(t *testing.T) {
	var buf strings.Builder
	handler := LoggingMiddleware(newBufferLogger(&buf), "/api/v1/health", "/metrics")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Empty(t, buf.String())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/projects/", nil))
	assert.Contains(t, buf.String(), "http request")
	assert.Contains(t, buf.String(), "route=unmatched")
}

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	_, _ = rw.Write([]byte("Hello, "))
	_, _ = rw.Write([]byte("World!"))
	assert.Equal(t, http.StatusOK, rw.statusCode, "default status without WriteHeader")
	assert.Equal(t, int64(13), rw.written)

	again := newResponseWriter(rw)
	assert.Same(t, rw, again, "already wrapped writer is reused")
	assert.Equal(t, w, rw.Unwrap())

	rw2 := newResponseWriter(httptest.NewRecorder())
	rw2.WriteHeader(http.StatusConflict)
	assert.Equal(t, http.StatusConflict, rw2.statusCode)
}
