package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/salesnav/internal/metrics"
	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/internal/server/lock"
	"github.com/iudanet/salesnav/internal/server/projects"
	"github.com/iudanet/salesnav/internal/server/storage/sqlite"
	"github.com/iudanet/salesnav/pkg/api"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

var (
	alice = models.User{ID: "u-alice", Name: "佐藤", Role: models.RoleUser}
	bob   = models.User{ID: "u-bob", Name: "鈴木", Role: models.RoleUser}
)

// testEnv собирает handlers поверх sqlite в памяти.
// Маршруты повторяют production, но без middleware: пользователь кладется в контекст напрямую.
type testEnv struct {
	store *sqlite.Storage
	locks *lock.Manager
	mux   *http.ServeMux
}

func setupEnv(t *testing.T, cfg projects.Config) *testEnv {
	t.Helper()

	logger := setupTestLogger()
	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := metrics.New()
	locks := lock.NewManager(logger, store, m, time.Minute)
	service := projects.NewService(logger, store, locks, m, cfg)

	lh := NewLockHandler(logger, locks)
	ph := NewProjectHandler(logger, service)
	mh := NewMasterHandler(logger, store)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/master/{kind}/{$}", mh.List)
	mux.HandleFunc("GET /api/v1/projects/{$}", ph.List)
	mux.HandleFunc("POST /api/v1/projects/{$}", ph.Create)
	mux.HandleFunc("GET /api/v1/projects/{id}/{$}", ph.Get)
	mux.HandleFunc("PATCH /api/v1/projects/{id}/{$}", ph.Patch)
	mux.HandleFunc("DELETE /api/v1/projects/{id}/{$}", ph.Delete)
	mux.HandleFunc("POST /api/v1/projects/page-lock/{$}", lh.Acquire)
	mux.HandleFunc("GET /api/v1/projects/page-lock/{$}", lh.Status)
	mux.HandleFunc("GET /api/v1/projects/page-locks/{$}", lh.Mine)
	mux.HandleFunc("DELETE /api/v1/projects/page-unlock/{$}", lh.Release)
	mux.HandleFunc("POST /api/v1/projects/bulk-partial-update/{$}", ph.BulkPartialUpdate)
	mux.HandleFunc("GET /api/v1/projects/{id}/snapshots/{$}", ph.ListSnapshots)
	mux.HandleFunc("GET /api/v1/projects/{id}/snapshots/{sid}/{$}", ph.GetSnapshot)
	mux.HandleFunc("POST /api/v1/projects/{id}/snapshots/{sid}/restore/{$}", ph.Restore)

	return &testEnv{store: store, locks: locks, mux: mux}
}

// do выполняет запрос от имени user (nil для анонимного)
func (e *testEnv) do(t *testing.T, user *models.User, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return serve(t, e.mux, user, method, target, body)
}

func serve(t *testing.T, h http.Handler, user *models.User, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	if user != nil {
		req = req.WithContext(WithUser(req.Context(), user.ID, user.Name, user.Role))
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createProject(t *testing.T, name string, count int64) *models.Project {
	t.Helper()
	p := &models.Project{Name: name, AppointmentCount: count, Remarks: "keep"}
	require.NoError(t, e.store.CreateProject(context.Background(), p))
	return p
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	return decodeBody[api.ErrorResponse](t, w)
}
