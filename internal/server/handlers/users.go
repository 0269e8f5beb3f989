package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/salesnav/internal/crypto"
	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/internal/server/storage"
	"github.com/iudanet/salesnav/internal/validation"
	"github.com/iudanet/salesnav/pkg/api"
)

// UserHandler обрабатывает управление пользователями (только admin)
type UserHandler struct {
	responder
	userStorage storage.UserStorage
}

// NewUserHandler создает handler управления пользователями
func NewUserHandler(logger *slog.Logger, userStorage storage.UserStorage) *UserHandler {
	return &UserHandler{
		responder:   responder{logger: logger},
		userStorage: userStorage,
	}
}

// CreateUser обрабатывает POST /api/v1/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode create user request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := NewUser(req)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.userStorage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			h.logger.WarnContext(ctx, "user already exists", slog.String("email", user.Email))
			h.sendError(w, "email already registered", http.StatusConflict)
			return
		}
		h.logger.ErrorContext(ctx, "failed to create user", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "user created",
		slog.String("email", user.Email),
		slog.String("user_id", user.ID),
		slog.String("role", user.Role))

	h.sendJSON(w, userResponse(user), http.StatusCreated)
}

// NewUser валидирует запрос и строит пользователя с bcrypt хешем пароля
func NewUser(req api.CreateUserRequest) (*models.User, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Role == "" {
		req.Role = models.RoleUser
	}

	if err := validation.ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := validation.ValidateName(req.Name); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	if err := validation.ValidateRole(req.Role); err != nil {
		return nil, err
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	return &models.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		Name:         req.Name,
		Role:         req.Role,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}, nil
}

// EnsureAdmin создает администратора, если в базе еще нет пользователей.
// Возвращает true, если пользователь был создан.
func EnsureAdmin(ctx context.Context, userStorage storage.UserStorage, email, name, password string) (bool, error) {
	count, err := userStorage.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	user, err := NewUser(api.CreateUserRequest{
		Email:    email,
		Name:     name,
		Password: password,
		Role:     models.RoleAdmin,
	})
	if err != nil {
		return false, fmt.Errorf("invalid bootstrap admin: %w", err)
	}

	if err := userStorage.CreateUser(ctx, user); err != nil {
		return false, fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	return true, nil
}
