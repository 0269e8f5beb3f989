package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/salesnav/internal/client/api"
	"github.com/iudanet/salesnav/internal/client/storage"
	pkgapi "github.com/iudanet/salesnav/pkg/api"
)

// mockAuthStorage хранит сессию в памяти
type mockAuthStorage struct {
	data    *storage.AuthData
	saveErr error
}

func (m *mockAuthStorage) SaveAuth(ctx context.Context, auth *storage.AuthData) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *auth
	m.data = &cp
	return nil
}

func (m *mockAuthStorage) GetAuth(ctx context.Context) (*storage.AuthData, error) {
	if m.data == nil {
		return nil, storage.ErrAuthNotFound
	}
	cp := *m.data
	return &cp, nil
}

func (m *mockAuthStorage) DeleteAuth(ctx context.Context) error {
	if m.data == nil {
		return storage.ErrAuthNotFound
	}
	m.data = nil
	return nil
}

func (m *mockAuthStorage) IsAuthenticated(ctx context.Context) (bool, error) {
	return m.data != nil && !m.data.Expired(time.Now()), nil
}

// mockAPIClient implements APIClient for testing
type mockAPIClient struct {
	loginResp   *pkgapi.TokenResponse
	loginErr    error
	refreshResp *pkgapi.TokenResponse
	refreshErr  error
	logoutErr   error

	refreshCalls []string
	logoutCalls  []string
}

func (m *mockAPIClient) Login(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error) {
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return m.loginResp, nil
}

func (m *mockAPIClient) Refresh(ctx context.Context, refreshToken string) (*pkgapi.TokenResponse, error) {
	m.refreshCalls = append(m.refreshCalls, refreshToken)
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	return m.refreshResp, nil
}

func (m *mockAPIClient) Logout(ctx context.Context, accessToken string) error {
	m.logoutCalls = append(m.logoutCalls, accessToken)
	return m.logoutErr
}

func newTestService(apiClient *mockAPIClient, store *mockAuthStorage, now time.Time) *Service {
	s := NewService(apiClient, store)
	s.now = func() time.Time { return now }
	return s
}

func TestService_Login(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		store := &mockAuthStorage{}
		apiClient := &mockAPIClient{loginResp: &pkgapi.TokenResponse{
			User:         &pkgapi.UserResponse{ID: "u-1", Email: "sato@example.com", Name: "佐藤", Role: "user"},
			AccessToken:  "access",
			RefreshToken: "refresh",
			ExpiresIn:    900,
		}}

		auth, err := newTestService(apiClient, store, now).Login(context.Background(), " sato@example.com ", "password")
		require.NoError(t, err)
		assert.Equal(t, "u-1", auth.UserID)
		assert.Equal(t, "佐藤", auth.Name)
		assert.Equal(t, now.Unix()+900, auth.ExpiresAt)
		assert.Equal(t, auth, store.data)
	})

	tests := []struct {
		name     string
		email    string
		password string
		apiErr   error
		wantErr  string
	}{
		{name: "invalid email", email: "not-an-email", password: "pw", wantErr: "invalid email"},
		{name: "empty password", email: "sato@example.com", password: "", wantErr: "password is required"},
		{
			name:     "rejected by server",
			email:    "sato@example.com",
			password: "wrong",
			apiErr:   &api.APIError{StatusCode: http.StatusUnauthorized, Message: "invalid email or password"},
			wantErr:  "server error (401): invalid email or password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockAuthStorage{}
			s := newTestService(&mockAPIClient{loginErr: tt.apiErr}, store, now)

			_, err := s.Login(context.Background(), tt.email, tt.password)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Nil(t, store.data)
		})
	}
}

func TestService_Session(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("not authenticated", func(t *testing.T) {
		_, err := newTestService(&mockAPIClient{}, &mockAuthStorage{}, now).Session(ctx)
		assert.ErrorIs(t, err, ErrNotAuthenticated)
	})

	t.Run("valid token is reused", func(t *testing.T) {
		apiClient := &mockAPIClient{}
		store := &mockAuthStorage{data: &storage.AuthData{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: now.Add(time.Hour).Unix()}}

		token, err := newTestService(apiClient, store, now).AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a1", token)
		assert.Empty(t, apiClient.refreshCalls)
	})

	t.Run("expiring token is refreshed", func(t *testing.T) {
		apiClient := &mockAPIClient{refreshResp: &pkgapi.TokenResponse{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 900}}
		store := &mockAuthStorage{data: &storage.AuthData{
			Email: "sato@example.com", Name: "佐藤", AccessToken: "a1", RefreshToken: "r1",
			ExpiresAt: now.Add(10 * time.Second).Unix(),
		}}

		auth, err := newTestService(apiClient, store, now).Session(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"r1"}, apiClient.refreshCalls)
		assert.Equal(t, "a2", auth.AccessToken)
		assert.Equal(t, "佐藤", auth.Name, "profile fields survive refresh")
		assert.Equal(t, "r2", store.data.RefreshToken)
	})

	t.Run("rejected refresh token drops the session", func(t *testing.T) {
		apiClient := &mockAPIClient{refreshErr: &api.APIError{StatusCode: http.StatusUnauthorized, Message: "refresh token expired"}}
		store := &mockAuthStorage{data: &storage.AuthData{RefreshToken: "r1", ExpiresAt: now.Add(-time.Minute).Unix()}}

		_, err := newTestService(apiClient, store, now).Session(ctx)
		assert.ErrorIs(t, err, ErrSessionExpired)
		assert.Nil(t, store.data)
	})

	t.Run("network error keeps the session", func(t *testing.T) {
		apiClient := &mockAPIClient{refreshErr: errors.New("connection refused")}
		store := &mockAuthStorage{data: &storage.AuthData{RefreshToken: "r1", ExpiresAt: now.Add(-time.Minute).Unix()}}

		_, err := newTestService(apiClient, store, now).Session(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
		assert.NotNil(t, store.data)
	})
}

func TestService_Logout(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("revokes on server and deletes locally", func(t *testing.T) {
		apiClient := &mockAPIClient{}
		store := &mockAuthStorage{data: &storage.AuthData{AccessToken: "a1", ExpiresAt: now.Add(time.Hour).Unix()}}

		require.NoError(t, newTestService(apiClient, store, now).Logout(ctx))
		assert.Equal(t, []string{"a1"}, apiClient.logoutCalls)
		assert.Nil(t, store.data)
	})

	t.Run("expired token skips server call", func(t *testing.T) {
		apiClient := &mockAPIClient{}
		store := &mockAuthStorage{data: &storage.AuthData{AccessToken: "a1", ExpiresAt: now.Add(-time.Hour).Unix()}}

		require.NoError(t, newTestService(apiClient, store, now).Logout(ctx))
		assert.Empty(t, apiClient.logoutCalls)
		assert.Nil(t, store.data)
	})

	t.Run("server failure still logs out locally", func(t *testing.T) {
		apiClient := &mockAPIClient{logoutErr: errors.New("connection refused")}
		store := &mockAuthStorage{data: &storage.AuthData{AccessToken: "a1", ExpiresAt: now.Add(time.Hour).Unix()}}

		err := newTestService(apiClient, store, now).Logout(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logged out locally")
		assert.Nil(t, store.data)
	})

	t.Run("no session", func(t *testing.T) {
		err := newTestService(&mockAPIClient{}, &mockAuthStorage{}, now).Logout(ctx)
		assert.ErrorIs(t, err, ErrNotAuthenticated)
	})
}
