package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/salesnav/internal/crypto"
	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/internal/server/storage"
	"github.com/iudanet/salesnav/internal/server/storage/sqlite"
	"github.com/iudanet/salesnav/pkg/api"
)

type authEnv struct {
	store   *sqlite.Storage
	handler *AuthHandler
	users   *UserHandler
	cfg     JWTConfig
}

func setupAuth(t *testing.T) *authEnv {
	t.Helper()

	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := JWTConfig{
		Secret:          []byte("test-secret-key-test-secret-key!"),
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}
	logger := setupTestLogger()

	return &authEnv{
		store:   store,
		handler: NewAuthHandler(logger, store, store, cfg),
		users:   NewUserHandler(logger, store),
		cfg:     cfg,
	}
}

func (e *authEnv) createUser(t *testing.T, email, password, role string) *models.User {
	t.Helper()
	user, err := NewUser(api.CreateUserRequest{Email: email, Name: "山田", Password: password, Role: role})
	require.NoError(t, err)
	require.NoError(t, e.store.CreateUser(context.Background(), user))
	return user
}

func TestAuthHandler_Login(t *testing.T) {
	env := setupAuth(t)
	user := env.createUser(t, "yamada@example.com", "correct-horse", models.RoleUser)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "success", body: `{"email":"yamada@example.com","password":"correct-horse"}`, wantStatus: http.StatusOK},
		{name: "email is case-insensitive", body: `{"email":"YAMADA@example.com","password":"correct-horse"}`, wantStatus: http.StatusOK},
		{name: "wrong password", body: `{"email":"yamada@example.com","password":"wrong-horse"}`, wantStatus: http.StatusUnauthorized},
		{name: "unknown user", body: `{"email":"nobody@example.com","password":"correct-horse"}`, wantStatus: http.StatusUnauthorized},
		{name: "invalid email", body: `{"email":"not-an-email","password":"x"}`, wantStatus: http.StatusBadRequest},
		{name: "missing password", body: `{"email":"yamada@example.com"}`, wantStatus: http.StatusBadRequest},
		{name: "malformed body", body: `{`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, http.HandlerFunc(env.handler.Login), nil, http.MethodPost, "/api/v1/auth/login", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.wantStatus != http.StatusOK {
				return
			}
			resp := decodeBody[api.TokenResponse](t, w)
			assert.NotEmpty(t, resp.AccessToken)
			assert.Len(t, resp.RefreshToken, 43)
			assert.Equal(t, int64(900), resp.ExpiresIn)
			require.NotNil(t, resp.User)
			assert.Equal(t, user.ID, resp.User.ID)
			assert.NotNil(t, resp.User.LastLogin)

			claims, err := ValidateAccessToken(env.cfg, resp.AccessToken)
			require.NoError(t, err)
			assert.Equal(t, user.ID, claims.UserID)
			assert.Equal(t, models.RoleUser, claims.Role)

			// В базе хранится только хеш refresh token
			_, err = env.store.GetRefreshToken(context.Background(), crypto.HashToken(resp.RefreshToken))
			assert.NoError(t, err)
			_, err = env.store.GetRefreshToken(context.Background(), resp.RefreshToken)
			assert.ErrorIs(t, err, storage.ErrTokenNotFound)
		})
	}
}

func refreshRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAuthHandler_RefreshRotatesToken(t *testing.T) {
	env := setupAuth(t)
	env.createUser(t, "yamada@example.com", "correct-horse", models.RoleAdmin)

	w := serve(t, http.HandlerFunc(env.handler.Login), nil, http.MethodPost, "/api/v1/auth/login",
		`{"email":"yamada@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, w.Code)
	first := decodeBody[api.TokenResponse](t, w)

	w = httptest.NewRecorder()
	env.handler.Refresh(w, refreshRequest(first.RefreshToken))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	second := decodeBody[api.TokenResponse](t, w)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, models.RoleAdmin, second.User.Role)

	// Старый refresh token больше не действует
	w = httptest.NewRecorder()
	env.handler.Refresh(w, refreshRequest(first.RefreshToken))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	env.handler.Refresh(w, refreshRequest(""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_RefreshExpired(t *testing.T) {
	env := setupAuth(t)
	user := env.createUser(t, "yamada@example.com", "correct-horse", models.RoleUser)

	token, stored, err := GenerateRefreshToken(env.cfg, user.ID)
	require.NoError(t, err)
	stored.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, env.store.SaveRefreshToken(context.Background(), stored))

	w := httptest.NewRecorder()
	env.handler.Refresh(w, refreshRequest(token))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "refresh token expired", decodeError(t, w).Message)
}

func TestAuthHandler_LogoutAndMe(t *testing.T) {
	env := setupAuth(t)
	user := env.createUser(t, "yamada@example.com", "correct-horse", models.RoleUser)

	w := serve(t, http.HandlerFunc(env.handler.Login), nil, http.MethodPost, "/api/v1/auth/login",
		`{"email":"yamada@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, w.Code)
	tokens := decodeBody[api.TokenResponse](t, w)

	w = serve(t, http.HandlerFunc(env.handler.Me), user, http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decodeBody[api.UserResponse](t, w)
	assert.Equal(t, "yamada@example.com", me.Email)
	assert.NotContains(t, w.Body.String(), "password")

	w = serve(t, http.HandlerFunc(env.handler.Me), nil, http.MethodGet, "/api/v1/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(t, http.HandlerFunc(env.handler.Logout), user, http.MethodPost, "/api/v1/auth/logout", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	env.handler.Refresh(w, refreshRequest(tokens.RefreshToken))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "logout revokes refresh tokens")
}

func TestUserHandler_CreateUser(t *testing.T) {
	env := setupAuth(t)
	admin := &models.User{ID: "admin", Name: "管理者", Role: models.RoleAdmin}

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantRole   string
	}{
		{name: "default role", body: `{"email":"sato@example.com","name":"佐藤","password":"password123"}`, wantStatus: http.StatusCreated, wantRole: models.RoleUser},
		{name: "admin role", body: `{"email":"boss@example.com","name":"部長","password":"password123","role":"admin"}`, wantStatus: http.StatusCreated, wantRole: models.RoleAdmin},
		{name: "duplicate email", body: `{"email":"SATO@example.com","name":"佐藤","password":"password123"}`, wantStatus: http.StatusConflict},
		{name: "short password", body: `{"email":"x@example.com","name":"x","password":"short"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown role", body: `{"email":"y@example.com","name":"y","password":"password123","role":"root"}`, wantStatus: http.StatusBadRequest},
		{name: "missing name", body: `{"email":"z@example.com","password":"password123"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, http.HandlerFunc(env.users.CreateUser), admin, http.MethodPost, "/api/v1/users", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantRole != "" {
				assert.Equal(t, tt.wantRole, decodeBody[api.UserResponse](t, w).Role)
			}
		})
	}
}

func TestEnsureAdmin(t *testing.T) {
	env := setupAuth(t)
	ctx := context.Background()

	created, err := EnsureAdmin(ctx, env.store, "admin@example.com", "管理者", "admin-password")
	require.NoError(t, err)
	assert.True(t, created)

	user, err := env.store.GetUserByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.True(t, user.IsAdmin())
	assert.NoError(t, crypto.VerifyPassword("admin-password", user.PasswordHash))

	created, err = EnsureAdmin(ctx, env.store, "other@example.com", "other", "admin-password")
	require.NoError(t, err)
	assert.False(t, created, "users already exist")

	_, err = EnsureAdmin(ctx, setupAuth(t).store, "bad", "x", "admin-password")
	assert.Error(t, err)
}
