package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/iudanet/salesnav/internal/client/api"
	"github.com/iudanet/salesnav/internal/client/storage"
	"github.com/iudanet/salesnav/internal/validation"
	pkgapi "github.com/iudanet/salesnav/pkg/api"
)

// refreshSkew обновляем access token заранее, чтобы он не истек посреди запроса
const refreshSkew = 30 * time.Second

var (
	// ErrNotAuthenticated нет сохраненной сессии
	ErrNotAuthenticated = errors.New("not authenticated, run 'salesnav login' first")

	// ErrSessionExpired refresh token отклонен сервером
	ErrSessionExpired = errors.New("session expired, run 'salesnav login' again")
)

// Service управляет сессией клиента: вход, выход и обновление токенов
type Service struct {
	apiClient APIClient
	store     storage.AuthStorage
	now       func() time.Time
}

// NewService создает новый сервис авторизации
func NewService(apiClient APIClient, store storage.AuthStorage) *Service {
	return &Service{
		apiClient: apiClient,
		store:     store,
		now:       time.Now,
	}
}

// Login аутентифицирует пользователя и сохраняет сессию
func (s *Service) Login(ctx context.Context, email, password string) (*storage.AuthData, error) {
	email = strings.TrimSpace(email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	resp, err := s.apiClient.Login(ctx, pkgapi.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	auth := s.authData(resp, &storage.AuthData{Email: email})
	if err := s.store.SaveAuth(ctx, auth); err != nil {
		return nil, fmt.Errorf("failed to save auth data: %w", err)
	}

	return auth, nil
}

// Session возвращает действующую сессию, при необходимости обновляя access token
func (s *Service) Session(ctx context.Context) (*storage.AuthData, error) {
	auth, err := s.store.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, fmt.Errorf("failed to get auth data: %w", err)
	}

	if !auth.Expired(s.now().Add(refreshSkew)) {
		return auth, nil
	}

	return s.refresh(ctx, auth)
}

// AccessToken возвращает действующий access token
func (s *Service) AccessToken(ctx context.Context) (string, error) {
	auth, err := s.Session(ctx)
	if err != nil {
		return "", err
	}
	return auth.AccessToken, nil
}

// Status возвращает сохраненную сессию без обращения к серверу
func (s *Service) Status(ctx context.Context) (*storage.AuthData, error) {
	auth, err := s.store.GetAuth(ctx)
	if errors.Is(err, storage.ErrAuthNotFound) {
		return nil, ErrNotAuthenticated
	}
	return auth, err
}

// Logout отзывает refresh tokens на сервере и удаляет локальную сессию.
// Ошибка сервера не мешает локальному выходу.
func (s *Service) Logout(ctx context.Context) error {
	auth, err := s.store.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return ErrNotAuthenticated
		}
		return fmt.Errorf("failed to get auth data: %w", err)
	}

	var serverErr error
	if !auth.Expired(s.now()) {
		serverErr = s.apiClient.Logout(ctx, auth.AccessToken)
	}

	if err := s.store.DeleteAuth(ctx); err != nil && !errors.Is(err, storage.ErrAuthNotFound) {
		return fmt.Errorf("failed to delete auth data: %w", err)
	}

	if serverErr != nil {
		return fmt.Errorf("logged out locally, server logout failed: %w", serverErr)
	}
	return nil
}

func (s *Service) refresh(ctx context.Context, auth *storage.AuthData) (*storage.AuthData, error) {
	resp, err := s.apiClient.Refresh(ctx, auth.RefreshToken)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			_ = s.store.DeleteAuth(ctx)
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	updated := s.authData(resp, auth)
	if err := s.store.SaveAuth(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to save auth data: %w", err)
	}
	return updated, nil
}

// authData собирает сессию из ответа сервера, недостающие поля берутся из prev
func (s *Service) authData(resp *pkgapi.TokenResponse, prev *storage.AuthData) *storage.AuthData {
	auth := *prev
	auth.AccessToken = resp.AccessToken
	auth.RefreshToken = resp.RefreshToken
	auth.ExpiresAt = s.now().Unix() + resp.ExpiresIn
	if u := resp.User; u != nil {
		auth.UserID = u.ID
		auth.Email = u.Email
		auth.Name = u.Name
		auth.Role = u.Role
	}
	return &auth
}
