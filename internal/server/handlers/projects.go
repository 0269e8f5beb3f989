package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/internal/server/lock"
	"github.com/iudanet/salesnav/internal/server/projects"
	"github.com/iudanet/salesnav/internal/server/storage"
	"github.com/iudanet/salesnav/pkg/api"
)

// ProjectService defines project operations used by handlers
type ProjectService interface {
	Create(ctx context.Context, data models.Patch) (*models.Project, error)
	Get(ctx context.Context, id int64) (*models.Project, error)
	List(ctx context.Context, filter models.ProjectFilter) ([]*models.Project, int, error)
	Update(ctx context.Context, id int64, data models.Patch, reason string, actor projects.Actor) (*models.Project, error)
	Delete(ctx context.Context, id int64) error
	BulkPartialUpdate(ctx context.Context, req projects.BulkRequest, actor projects.Actor) (*projects.BulkResult, error)
	ListSnapshots(ctx context.Context, projectID int64, filter models.SnapshotFilter) ([]*models.Snapshot, int, error)
	GetSnapshot(ctx context.Context, projectID, snapshotID int64) (*models.Snapshot, error)
	Restore(ctx context.Context, projectID, snapshotID int64, actor projects.Actor) (*projects.RestoreResult, error)
}

// ProjectHandler обрабатывает запросы к проектам и их истории
type ProjectHandler struct {
	responder
	service ProjectService
}

// NewProjectHandler создает handler проектов
func NewProjectHandler(logger *slog.Logger, service ProjectService) *ProjectHandler {
	return &ProjectHandler{
		responder: responder{logger: logger},
		service:   service,
	}
}

// List обрабатывает GET /api/v1/projects
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	page, err := queryInt(q, "page", 1)
	if err != nil || page < 1 {
		h.sendError(w, "page must be a positive integer", http.StatusBadRequest)
		return
	}
	pageSize, err := queryInt(q, "page_size", projects.DefaultProjectPageSize)
	if err != nil || pageSize < 1 {
		h.sendError(w, "page_size must be a positive integer", http.StatusBadRequest)
		return
	}
	pageSize = min(pageSize, projects.MaxProjectPageSize)

	filter := models.ProjectFilter{
		Search:   strings.TrimSpace(q.Get("search")),
		Page:     page,
		PageSize: pageSize,
	}
	if v := q.Get("progress_status_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			h.sendError(w, "progress_status_id must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.ProgressStatusID = &id
	}

	list, total, err := h.service.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list projects", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Project{}
	}

	next, previous := pageLinks(r, page, pageSize, total)
	h.sendJSON(w, api.Page[*models.Project]{
		Count:    total,
		Next:     next,
		Previous: previous,
		Results:  list,
	}, http.StatusOK)
}

// Create обрабатывает POST /api/v1/projects
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var data models.Patch
	if err := decodeJSON(w, r, &data); err != nil {
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	project, err := h.service.Create(ctx, data)
	if err != nil {
		h.handleError(w, r, "failed to create project", err)
		return
	}

	h.sendJSON(w, project, http.StatusCreated)
}

// Get обрабатывает GET /api/v1/projects/{id}
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		h.sendError(w, "invalid project id", http.StatusBadRequest)
		return
	}

	project, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, "failed to get project", err)
		return
	}

	h.sendJSON(w, project, http.StatusOK)
}

// Patch обрабатывает PATCH /api/v1/projects/{id}
// Тело содержит только изменяемые поля, причина передается в ?reason=
func (h *ProjectHandler) Patch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := actorFromContext(ctx)
	if !ok {
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, ok := pathID(r, "id")
	if !ok {
		h.sendError(w, "invalid project id", http.StatusBadRequest)
		return
	}

	var data models.Patch
	if err := decodeJSON(w, r, &data); err != nil {
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	project, err := h.service.Update(ctx, id, data, r.URL.Query().Get("reason"), actor)
	if err != nil {
		h.handleError(w, r, "failed to update project", err)
		return
	}

	h.sendJSON(w, project, http.StatusOK)
}

// Delete обрабатывает DELETE /api/v1/projects/{id} (только admin)
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		h.sendError(w, "invalid project id", http.StatusBadRequest)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.handleError(w, r, "failed to delete project", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// BulkPartialUpdate обрабатывает POST /api/v1/projects/bulk-partial-update
func (h *ProjectHandler) BulkPartialUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := actorFromContext(ctx)
	if !ok {
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.BulkUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.sendBulkError(w, "invalid request body", nil, http.StatusBadRequest)
		return
	}

	items := make([]projects.BulkItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = projects.BulkItem{ProjectID: item.ProjectID, Data: item.Data, Reason: item.Reason}
	}

	result, err := h.service.BulkPartialUpdate(ctx, projects.BulkRequest{Items: items, Lock: req.Lock}, actor)
	if err != nil {
		var missing *projects.MissingError
		switch {
		case errors.As(err, &missing):
			h.sendBulkError(w, missing.Error(), missing.IDs, http.StatusNotFound)
		case errors.Is(err, projects.ErrInvalidRequest), errors.Is(err, lock.ErrInvalidKey):
			h.sendBulkError(w, err.Error(), nil, http.StatusBadRequest)
		case errors.Is(err, lock.ErrLockNotHeld):
			h.sendBulkError(w, err.Error(), nil, http.StatusConflict)
		default:
			h.logger.ErrorContext(ctx, "bulk partial update failed", slog.Any("error", err))
			h.sendBulkError(w, "internal server error", nil, http.StatusInternalServerError)
		}
		return
	}

	h.sendJSON(w, api.BulkUpdateResponse{
		Success:      true,
		UpdatedCount: result.UpdatedCount,
		UpdatedIDs:   result.UpdatedIDs,
	}, http.StatusOK)
}

// ListSnapshots обрабатывает GET /api/v1/projects/{id}/snapshots/
func (h *ProjectHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	id, ok := pathID(r, "id")
	if !ok {
		h.sendError(w, "invalid project id", http.StatusBadRequest)
		return
	}

	page, err := queryInt(q, "page", 1)
	if err != nil || page < 1 {
		h.sendError(w, "page must be a positive integer", http.StatusBadRequest)
		return
	}
	pageSize, err := queryInt(q, "page_size", projects.DefaultSnapshotPageSize)
	if err != nil || pageSize < 1 {
		h.sendError(w, "page_size must be a positive integer", http.StatusBadRequest)
		return
	}
	pageSize = min(pageSize, projects.MaxSnapshotPageSize)

	filter := models.SnapshotFilter{Page: page, PageSize: pageSize}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.sendError(w, "since must be an RFC3339 timestamp", http.StatusBadRequest)
			return
		}
		filter.Since = &since
	}

	list, total, err := h.service.ListSnapshots(ctx, id, filter)
	if err != nil {
		h.handleError(w, r, "failed to list snapshots", err)
		return
	}
	if list == nil {
		list = []*models.Snapshot{}
	}

	next, previous := pageLinks(r, page, pageSize, total)
	h.sendJSON(w, api.Page[*models.Snapshot]{
		Count:    total,
		Next:     next,
		Previous: previous,
		Results:  list,
	}, http.StatusOK)
}

// GetSnapshot обрабатывает GET /api/v1/projects/{id}/snapshots/{sid}/
func (h *ProjectHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id, okID := pathID(r, "id")
	sid, okSID := pathID(r, "sid")
	if !okID || !okSID {
		h.sendError(w, "invalid project or snapshot id", http.StatusBadRequest)
		return
	}

	snapshot, err := h.service.GetSnapshot(r.Context(), id, sid)
	if err != nil {
		h.handleError(w, r, "failed to get snapshot", err)
		return
	}

	h.sendJSON(w, snapshot, http.StatusOK)
}

// Restore обрабатывает POST /api/v1/projects/{id}/snapshots/{sid}/restore/
func (h *ProjectHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := actorFromContext(ctx)
	if !ok {
		h.sendError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, okID := pathID(r, "id")
	sid, okSID := pathID(r, "sid")
	if !okID || !okSID {
		h.sendError(w, "invalid project or snapshot id", http.StatusBadRequest)
		return
	}

	result, err := h.service.Restore(ctx, id, sid, actor)
	if err != nil {
		h.handleError(w, r, "failed to restore snapshot", err)
		return
	}

	h.sendJSON(w, api.RestoreResponse{
		Success:  true,
		Project:  result.Project,
		Snapshot: result.Snapshot,
	}, http.StatusOK)
}

// handleError сопоставляет ошибки сервиса со статусами HTTP
func (h *ProjectHandler) handleError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, storage.ErrProjectNotFound):
		h.sendError(w, "project not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrSnapshotNotFound):
		h.sendError(w, "snapshot not found", http.StatusNotFound)
	case errors.Is(err, projects.ErrInvalidRequest):
		h.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.ErrorContext(r.Context(), msg, slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *ProjectHandler) sendBulkError(w http.ResponseWriter, message string, missing []int64, statusCode int) {
	h.sendJSON(w, api.BulkUpdateResponse{
		Success:    false,
		Error:      http.StatusText(statusCode),
		Message:    message,
		MissingIDs: missing,
	}, statusCode)
}
