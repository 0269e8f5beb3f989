package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/internal/server/lock"
	"github.com/iudanet/salesnav/internal/server/storage"
	"github.com/iudanet/salesnav/pkg/api"
)

// LockService defines page lock operations used by handlers
type LockService interface {
	Acquire(ctx context.Context, key models.LockKey, holder lock.Holder) (*lock.Result, error)
	Release(ctx context.Context, key models.LockKey, holderID string) (bool, error)
	Get(ctx context.Context, key models.LockKey) (*models.PageLock, error)
	HeldBy(ctx context.Context, holderID string) ([]*models.PageLock, error)
}

// LockHandler обрабатывает блокировки страниц
type LockHandler struct {
	responder
	locks LockService
}

// NewLockHandler создает handler блокировок
func NewLockHandler(logger *slog.Logger, locks LockService) *LockHandler {
	return &LockHandler{
		responder: responder{logger: logger},
		locks:     locks,
	}
}

// Acquire обрабатывает POST /api/v1/projects/page-lock/
// 200 при захвате, 409 с владельцем при отказе
func (h *LockHandler) Acquire(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := actorFromContext(ctx)
	if !ok {
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	key, err := lockKeyFromRequest(w, r)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.locks.Acquire(ctx, key, lock.Holder{ID: actor.ID, Name: actor.Name})
	if err != nil {
		if errors.Is(err, lock.ErrInvalidKey) {
			h.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(ctx, "failed to acquire page lock", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if !res.Granted {
		h.sendJSON(w, api.LockResponse{
			Granted: false,
			Error:   http.StatusText(http.StatusConflict),
			Message: res.Message,
			Holder: &api.LockHolder{
				ID:        res.Lock.HolderID,
				Name:      res.Lock.HolderName,
				ExpiresAt: res.Lock.ExpiresAt,
			},
		}, http.StatusConflict)
		return
	}

	h.sendJSON(w, api.LockResponse{Granted: true, Lock: res.Lock}, http.StatusOK)
}

// Status обрабатывает GET /api/v1/projects/page-lock/?page=&page_size=&filter_hash=
func (h *LockHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, _ := GetUserID(ctx)

	key, err := lockKeyFromQuery(r)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	current, err := h.locks.Get(ctx, key)
	switch {
	case errors.Is(err, storage.ErrLockNotFound):
		h.sendJSON(w, api.LockStatusResponse{Locked: false}, http.StatusOK)
	case errors.Is(err, lock.ErrInvalidKey):
		h.sendError(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		h.logger.ErrorContext(ctx, "failed to get page lock", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
	default:
		h.sendJSON(w, api.LockStatusResponse{
			Locked:   true,
			Lock:     current,
			HeldByMe: current.HolderID == userID,
		}, http.StatusOK)
	}
}

// Mine обрабатывает GET /api/v1/projects/page-locks/
// Все активные блокировки текущего пользователя
func (h *LockHandler) Mine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	held, err := h.locks.HeldBy(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list page locks", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if held == nil {
		held = []*models.PageLock{}
	}

	h.sendJSON(w, held, http.StatusOK)
}

// Release обрабатывает DELETE /api/v1/projects/page-unlock/
// Освобождение чужой или отсутствующей блокировки не ошибка: released=false
func (h *LockHandler) Release(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	key, err := lockKeyFromRequest(w, r)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	released, err := h.locks.Release(ctx, key, userID)
	if err != nil {
		if errors.Is(err, lock.ErrInvalidKey) {
			h.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.ErrorContext(ctx, "failed to release page lock", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "page lock release",
		slog.String("key", key.String()),
		slog.String("user_id", userID),
		slog.Bool("released", released))

	h.sendJSON(w, api.UnlockResponse{Released: released}, http.StatusOK)
}

// lockKeyFromRequest читает ключ из query параметров или JSON тела
func lockKeyFromRequest(w http.ResponseWriter, r *http.Request) (models.LockKey, error) {
	if r.URL.Query().Has("page") {
		return lockKeyFromQuery(r)
	}

	var key models.LockKey
	if err := decodeJSON(w, r, &key); err != nil {
		return key, errors.New("invalid request body: expected {page, page_size, filter_hash}")
	}
	return key, nil
}

func lockKeyFromQuery(r *http.Request) (models.LockKey, error) {
	q := r.URL.Query()

	page, err := queryInt(q, "page", 0)
	if err != nil {
		return models.LockKey{}, errors.New("page must be an integer")
	}
	pageSize, err := queryInt(q, "page_size", 0)
	if err != nil {
		return models.LockKey{}, errors.New("page_size must be an integer")
	}

	return models.LockKey{Page: page, PageSize: pageSize, FilterHash: q.Get("filter_hash")}, nil
}
