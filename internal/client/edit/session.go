package edit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iudanet/salesnav/internal/client/api"
	"github.com/iudanet/salesnav/internal/client/storage"
	"github.com/iudanet/salesnav/internal/models"
	pkgapi "github.com/iudanet/salesnav/pkg/api"
)

// API defines server calls used by an edit session
type API interface {
	AcquireLock(ctx context.Context, accessToken string, key models.LockKey) (*models.PageLock, error)
	ReleaseLock(ctx context.Context, accessToken string, key models.LockKey) (bool, error)
	ListProjects(ctx context.Context, accessToken string, q api.ProjectQuery) (*pkgapi.Page[*models.Project], error)
	BulkPartialUpdate(ctx context.Context, accessToken string, req pkgapi.BulkUpdateRequest) (*pkgapi.BulkUpdateResponse, error)
}

// Request параметры одной сессии редактирования страницы
type Request struct {
	Filter      Filter
	Reason      string
	Assignments []Assignment
	Page        int
	PageSize    int
	DryRun      bool // построить изменения без сохранения
}

// Key возвращает ключ блокировки страницы
func (r Request) Key() models.LockKey {
	return models.LockKey{Page: r.Page, PageSize: r.PageSize, FilterHash: r.Filter.Hash()}
}

// Result итог сессии редактирования
type Result struct {
	Lock       *models.PageLock
	Items      []pkgapi.BulkUpdateItem
	UpdatedIDs []int64
	Saved      bool
}

// Editor выполняет сессию: блокировка, загрузка страницы, diff, сохранение, освобождение.
type Editor struct {
	api    API
	locks  storage.LockStorage
	logger *slog.Logger
}

// NewEditor создает Editor. locks может быть nil, тогда блокировки не запоминаются локально.
func NewEditor(apiClient API, locks storage.LockStorage, logger *slog.Logger) *Editor {
	return &Editor{api: apiClient, locks: locks, logger: logger}
}

// Run выполняет сессию редактирования. Блокировка освобождается при любом исходе,
// включая отмену ctx. Отказ в блокировке возвращается как *api.APIError с владельцем.
func (e *Editor) Run(ctx context.Context, token string, req Request) (*Result, error) {
	key := req.Key()

	lock, err := e.api.AcquireLock(ctx, token, key)
	if err != nil {
		return nil, err
	}
	if e.locks != nil {
		if err := e.locks.SaveLock(ctx, lock); err != nil {
			e.logger.WarnContext(ctx, "failed to remember page lock", slog.String("key", key.String()), slog.Any("error", err))
		}
	}
	defer e.release(context.WithoutCancel(ctx), token, key)

	page, err := e.api.ListProjects(ctx, token, api.ProjectQuery{
		Page:             req.Page,
		PageSize:         req.PageSize,
		Search:           req.Filter.Search,
		ProgressStatusID: req.Filter.ProgressStatusID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load page: %w", err)
	}

	changes := NewChangeSet(page.Results)
	for _, a := range req.Assignments {
		if err := changes.Set(a.ProjectID, a.Field, a.Value); err != nil {
			return nil, err
		}
	}

	items, err := changes.Items(req.Reason)
	if err != nil {
		return nil, err
	}

	result := &Result{Lock: lock, Items: items}
	if len(items) == 0 || req.DryRun {
		return result, nil
	}

	resp, err := e.api.BulkPartialUpdate(ctx, token, pkgapi.BulkUpdateRequest{Lock: &key, Items: items})
	if err != nil {
		return nil, err
	}
	changes.Clear()

	result.Saved = true
	result.UpdatedIDs = resp.UpdatedIDs
	return result, nil
}

// Release освобождает блокировку и забывает ее локально
func (e *Editor) Release(ctx context.Context, token string, key models.LockKey) (bool, error) {
	released, err := e.api.ReleaseLock(ctx, token, key)
	if err != nil {
		return false, err
	}
	if e.locks != nil {
		if err := e.locks.DeleteLock(ctx, key); err != nil {
			return released, fmt.Errorf("failed to forget page lock: %w", err)
		}
	}
	return released, nil
}

func (e *Editor) release(ctx context.Context, token string, key models.LockKey) {
	if _, err := e.Release(ctx, token, key); err != nil {
		e.logger.WarnContext(ctx, "failed to release page lock", slog.String("key", key.String()), slog.Any("error", err))
	}
}
