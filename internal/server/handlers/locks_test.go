package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/internal/server/projects"
	"github.com/iudanet/salesnav/pkg/api"
)

func TestLockHandler_AcquireAndConflict(t *testing.T) {
	env := setupEnv(t, projects.Config{})
	key := models.LockKey{Page: 1, PageSize: 20, FilterHash: "abc"}

	w := env.do(t, &alice, http.MethodPost, "/api/v1/projects/page-lock/", key)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	granted := decodeBody[api.LockResponse](t, w)
	assert.True(t, granted.Granted)
	require.NotNil(t, granted.Lock)
	assert.Equal(t, alice.ID, granted.Lock.HolderID)

	// Повторный захват владельцем продлевает блокировку
	w = env.do(t, &alice, http.MethodPost, "/api/v1/projects/page-lock/?page=1&page_size=20&filter_hash=abc", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, &bob, http.MethodPost, "/api/v1/projects/page-lock/", key)
	require.Equal(t, http.StatusConflict, w.Code)
	denied := decodeBody[api.LockResponse](t, w)
	assert.False(t, denied.Granted)
	assert.Equal(t, "このページは佐藤が編集中です", denied.Message)
	require.NotNil(t, denied.Holder)
	assert.Equal(t, alice.ID, denied.Holder.ID)
	assert.Equal(t, alice.Name, denied.Holder.Name)

	// Другой filter_hash это другая страница
	w = env.do(t, &bob, http.MethodPost, "/api/v1/projects/page-lock/", models.LockKey{Page: 1, PageSize: 20, FilterHash: "xyz"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLockHandler_AcquireValidation(t *testing.T) {
	env := setupEnv(t, projects.Config{})

	tests := []struct {
		name   string
		target string
		body   any
		user   *models.User
		want   int
	}{
		{name: "anonymous", target: "/api/v1/projects/page-lock/", body: models.LockKey{Page: 1, PageSize: 20}, want: http.StatusUnauthorized},
		{name: "page zero", target: "/api/v1/projects/page-lock/", body: models.LockKey{Page: 0, PageSize: 20}, user: &alice, want: http.StatusBadRequest},
		{name: "page size too large", target: "/api/v1/projects/page-lock/", body: models.LockKey{Page: 1, PageSize: 501}, user: &alice, want: http.StatusBadRequest},
		{name: "malformed body", target: "/api/v1/projects/page-lock/", body: "{", user: &alice, want: http.StatusBadRequest},
		{name: "non-integer query", target: "/api/v1/projects/page-lock/?page=x&page_size=20", user: &alice, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.user, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestLockHandler_StatusMineRelease(t *testing.T) {
	env := setupEnv(t, projects.Config{})
	key := models.LockKey{Page: 2, PageSize: 50}

	w := env.do(t, &alice, http.MethodGet, "/api/v1/projects/page-lock/?page=2&page_size=50", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeBody[api.LockStatusResponse](t, w).Locked)

	w = env.do(t, &alice, http.MethodPost, "/api/v1/projects/page-lock/", key)
	require.Equal(t, http.StatusOK, w.Code)

	// Пустой filter_hash нормализуется в default
	w = env.do(t, &alice, http.MethodGet, "/api/v1/projects/page-lock/?page=2&page_size=50&filter_hash=default", nil)
	status := decodeBody[api.LockStatusResponse](t, w)
	assert.True(t, status.Locked)
	assert.True(t, status.HeldByMe)

	w = env.do(t, &bob, http.MethodGet, "/api/v1/projects/page-lock/?page=2&page_size=50", nil)
	status = decodeBody[api.LockStatusResponse](t, w)
	assert.True(t, status.Locked)
	assert.False(t, status.HeldByMe)

	w = env.do(t, &alice, http.MethodGet, "/api/v1/projects/page-locks/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decodeBody[[]models.PageLock](t, w)
	require.Len(t, mine, 1)
	assert.Equal(t, models.LockKey{Page: 2, PageSize: 50, FilterHash: models.DefaultFilterHash}, mine[0].Key)

	w = env.do(t, &bob, http.MethodGet, "/api/v1/projects/page-locks/", nil)
	assert.Equal(t, "[]\n", w.Body.String())

	// Чужой пользователь не освобождает блокировку
	w = env.do(t, &bob, http.MethodDelete, "/api/v1/projects/page-unlock/?page=2&page_size=50", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeBody[api.UnlockResponse](t, w).Released)

	w = env.do(t, &alice, http.MethodDelete, "/api/v1/projects/page-unlock/", key)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeBody[api.UnlockResponse](t, w).Released)

	// Повторное освобождение не ошибка
	w = env.do(t, &alice, http.MethodDelete, "/api/v1/projects/page-unlock/", key)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeBody[api.UnlockResponse](t, w).Released)

	w = env.do(t, &bob, http.MethodPost, "/api/v1/projects/page-lock/", key)
	assert.Equal(t, http.StatusOK, w.Code)
}
