// Package projects реализует операции над проектами: частичное пакетное обновление
// со снапшотами, чтение истории и восстановление из снапшота.
package projects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/iudanet/salesnav/internal/metrics"
	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/internal/server/lock"
	"github.com/iudanet/salesnav/internal/server/storage"
)

// Размеры страниц
const (
	DefaultProjectPageSize  = 20
	MaxProjectPageSize      = lock.MaxPageSize
	DefaultSnapshotPageSize = 25
	MaxSnapshotPageSize     = 100
)

// Префиксы причин по умолчанию
const (
	defaultBulkReason   = models.SourceBulkEdit
	defaultManualReason = models.SourceManual
)

// Store объединяет хранилища, нужные сервису
type Store interface {
	storage.ProjectStorage
	storage.SnapshotStorage
}

// LockChecker проверяет владение блокировкой страницы
type LockChecker interface {
	Check(ctx context.Context, key models.LockKey, holderID string) error
}

// Actor пользователь, от имени которого выполняется запись
type Actor struct {
	ID   string
	Name string
}

// BulkItem изменение одного проекта в пакете
type BulkItem struct {
	Data      models.Patch
	Reason    string
	ProjectID int64
}

// BulkRequest пакет частичных обновлений
type BulkRequest struct {
	Lock  *models.LockKey // блокировка страницы, которой должен владеть вызывающий
	Items []BulkItem
}

// BulkResult результат пакетного обновления
type BulkResult struct {
	UpdatedIDs   []int64
	UpdatedCount int
}

// RestoreResult результат восстановления
type RestoreResult struct {
	Project  *models.Project
	Snapshot *models.Snapshot // снапшот undo, созданный восстановлением
}

// Service implements project editing with snapshot history
type Service struct {
	store       Store
	locks       LockChecker
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	requireLock bool
	lockInTx    bool
}

// Config options of the service
type Config struct {
	// RequireLock требует блокировку страницы для каждого пакетного обновления
	RequireLock bool
	// LockInTx повторяет проверку блокировки внутри транзакции записи.
	// Включается, когда блокировки лежат в той же базе, что и проекты.
	LockInTx bool
}

// NewService creates the project service
func NewService(logger *slog.Logger, store Store, locks LockChecker, m *metrics.Metrics, cfg Config) *Service {
	return &Service{
		store:       store,
		locks:       locks,
		logger:      logger,
		metrics:     m,
		now:         time.Now,
		requireLock: cfg.RequireLock,
		lockInTx:    cfg.LockInTx,
	}
}

// pendingWrite нормализованное изменение проекта, готовое к записи
type pendingWrite struct {
	changes   models.Changes
	reason    string
	projectID int64
}

// Create creates a project from a full or partial field set
func (s *Service) Create(ctx context.Context, data models.Patch) (*models.Project, error) {
	changes, err := data.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if _, ok := changes["name"]; !ok {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, &models.FieldError{Field: "name", Reason: "is required"})
	}

	project := &models.Project{}
	changes.Apply(project)

	err = s.store.RunInTx(ctx, func(tx storage.ProjectTx) error {
		return checkReferences(ctx, tx, []pendingWrite{{changes: changes}})
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "project created", slog.Int64("project_id", project.ID))

	return s.store.GetProject(ctx, project.ID)
}

// Get returns one project
func (s *Service) Get(ctx context.Context, id int64) (*models.Project, error) {
	return s.store.GetProject(ctx, id)
}

// List returns a page of projects and the total count
func (s *Service) List(ctx context.Context, filter models.ProjectFilter) ([]*models.Project, int, error) {
	filter.Page, filter.PageSize = normalizePage(filter.Page, filter.PageSize, DefaultProjectPageSize, MaxProjectPageSize)
	return s.store.ListProjects(ctx, filter)
}

// Delete removes a project together with its history
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "project deleted", slog.Int64("project_id", id))
	return nil
}

// Update applies a sparse patch to one project and records a manual snapshot.
// A patch that changes nothing writes nothing.
func (s *Service) Update(ctx context.Context, id int64, data models.Patch, reason string, actor Actor) (*models.Project, error) {
	if id <= 0 {
		return nil, invalidf("project id must be positive")
	}
	changes, err := data.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	writes := []pendingWrite{{projectID: id, changes: changes, reason: reason}}

	var updated *models.Project
	var written int
	err = s.store.RunInTx(ctx, func(tx storage.ProjectTx) error {
		if err := checkReferences(ctx, tx, writes); err != nil {
			return err
		}
		ids, err := s.applyWrites(ctx, tx, writes, models.SourceManual, defaultManualReason, actor)
		if err != nil {
			return err
		}
		written = len(ids)
		updated, err = tx.GetProject(ctx, id)
		return err
	})
	if err != nil {
		var missing *MissingError
		if errors.As(err, &missing) {
			return nil, storage.ErrProjectNotFound
		}
		return nil, err
	}

	if written > 0 {
		s.metrics.SnapshotWritten(models.SourceManual)
		s.logger.InfoContext(ctx, "project updated",
			slog.Int64("project_id", id),
			slog.String("user_id", actor.ID),
			slog.Any("fields", changes.Names()),
		)
	}

	return updated, nil
}

// BulkPartialUpdate applies every item atomically. Only present keys are written,
// projects without effective changes get no snapshot, and any unknown project id
// fails the whole batch with *MissingError.
func (s *Service) BulkPartialUpdate(ctx context.Context, req BulkRequest, actor Actor) (*BulkResult, error) {
	start := s.now()

	result, err := s.bulkPartialUpdate(ctx, req, actor)

	status := metrics.StatusOK
	var missing *MissingError
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidRequest):
		status = metrics.StatusRejected
	case errors.As(err, &missing):
		status = metrics.StatusNotFound
	case errors.Is(err, lock.ErrLockNotHeld):
		status = metrics.StatusConflict
	default:
		status = metrics.StatusError
	}
	updated := 0
	if result != nil {
		updated = result.UpdatedCount
	}
	s.metrics.BulkUpdate(status, updated, s.now().Sub(start))

	if err != nil {
		s.logger.WarnContext(ctx, "bulk partial update failed",
			slog.String("user_id", actor.ID),
			slog.Int("items", len(req.Items)),
			slog.Any("error", err),
		)
		return nil, err
	}

	s.logger.InfoContext(ctx, "bulk partial update applied",
		slog.String("user_id", actor.ID),
		slog.Int("items", len(req.Items)),
		slog.Int("updated_count", result.UpdatedCount),
	)

	return result, nil
}

func (s *Service) bulkPartialUpdate(ctx context.Context, req BulkRequest, actor Actor) (*BulkResult, error) {
	writes, err := normalizeItems(req.Items)
	if err != nil {
		return nil, err
	}

	if req.Lock != nil || s.requireLock {
		if req.Lock == nil {
			return nil, fmt.Errorf("%w: lock key is required", lock.ErrLockNotHeld)
		}
		if err := s.locks.Check(ctx, *req.Lock, actor.ID); err != nil {
			return nil, err
		}
	}

	result := &BulkResult{UpdatedIDs: []int64{}}
	if len(writes) == 0 {
		return result, nil
	}

	err = s.store.RunInTx(ctx, func(tx storage.ProjectTx) error {
		if s.lockInTx && req.Lock != nil {
			if err := checkLockInTx(ctx, tx, *req.Lock, actor.ID, s.now()); err != nil {
				return err
			}
		}
		if err := checkReferences(ctx, tx, writes); err != nil {
			return err
		}
		ids, err := s.applyWrites(ctx, tx, writes, models.SourceBulkEdit, defaultBulkReason, actor)
		if err != nil {
			return err
		}
		result.UpdatedIDs = ids
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.UpdatedCount = len(result.UpdatedIDs)
	for range result.UpdatedIDs {
		s.metrics.SnapshotWritten(models.SourceBulkEdit)
	}

	return result, nil
}

// checkLockInTx проверяет владение блокировкой в той же транзакции, что и запись
func checkLockInTx(ctx context.Context, tx storage.ProjectTx, key models.LockKey, holderID string, now time.Time) error {
	key, err := lock.NormalizeKey(key)
	if err != nil {
		return err
	}
	current, err := tx.GetLock(ctx, key, now)
	if err != nil {
		if errors.Is(err, storage.ErrLockNotFound) {
			return lock.ErrLockNotHeld
		}
		return fmt.Errorf("failed to check page lock: %w", err)
	}
	if current.HolderID != holderID {
		return fmt.Errorf("%w: %s", lock.ErrLockNotHeld, lock.DenialMessage(current.HolderName))
	}
	return nil
}

// normalizeItems проверяет пакет целиком до начала транзакции
func normalizeItems(items []BulkItem) ([]pendingWrite, error) {
	seen := make(map[int64]struct{}, len(items))
	writes := make([]pendingWrite, 0, len(items))

	for i, item := range items {
		if item.ProjectID <= 0 {
			return nil, invalidf("items[%d]: project_id must be positive", i)
		}
		if _, dup := seen[item.ProjectID]; dup {
			return nil, invalidf("items[%d]: duplicate project_id %d", i, item.ProjectID)
		}
		seen[item.ProjectID] = struct{}{}

		changes, err := item.Data.Normalize()
		if err != nil {
			return nil, fmt.Errorf("%w: items[%d]: %w", ErrInvalidRequest, i, err)
		}
		writes = append(writes, pendingWrite{projectID: item.ProjectID, changes: changes, reason: item.Reason})
	}

	return writes, nil
}

// checkReferences проверяет, что все ссылки на справочники существуют
func checkReferences(ctx context.Context, tx storage.ProjectTx, writes []pendingWrite) error {
	byField := make(map[string][]int64)
	for _, w := range writes {
		for name, v := range w.changes {
			id, ok := v.(int64)
			if !ok {
				continue
			}
			spec, _ := models.LookupField(name)
			if spec.Kind != models.KindRef {
				continue
			}
			if !slices.Contains(byField[name], id) {
				byField[name] = append(byField[name], id)
			}
		}
	}

	for _, spec := range models.ProjectFields() {
		ids, ok := byField[spec.Name]
		if !ok {
			continue
		}
		missing, err := tx.MissingReferences(ctx, spec.RefTable, ids)
		if err != nil {
			return fmt.Errorf("failed to check references for %s: %w", spec.Name, err)
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, &models.FieldError{
				Field:  spec.Name,
				Reason: fmt.Sprintf("unknown id %d", missing[0]),
			})
		}
	}

	return nil
}

// applyWrites загружает проекты, вычисляет фактические изменения и для каждого
// измененного проекта пишет снапшот до обновления строки.
// Возвращает ID обновленных проектов в порядке запроса.
func (s *Service) applyWrites(ctx context.Context, tx storage.ProjectTx, writes []pendingWrite, source, defaultReason string, actor Actor) ([]int64, error) {
	ids := make([]int64, len(writes))
	for i, w := range writes {
		ids[i] = w.projectID
	}

	current, err := tx.GetProjects(ctx, ids)
	if err != nil {
		return nil, err
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := current[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, &MissingError{IDs: missing}
	}

	now := s.now()
	updated := make([]int64, 0, len(writes))
	for _, w := range writes {
		project := current[w.projectID]
		diff := w.changes.Diff(project)
		if len(diff) == 0 {
			continue
		}

		prefix := w.reason
		if prefix == "" {
			prefix = defaultReason
		}

		if _, err := writeSnapshotAndUpdate(ctx, tx, project, diff, source, prefix, actor, now); err != nil {
			return nil, err
		}
		updated = append(updated, w.projectID)
	}

	return updated, nil
}

// writeSnapshotAndUpdate сохраняет состояние проекта до изменения и применяет diff
func writeSnapshotAndUpdate(ctx context.Context, tx storage.ProjectTx, project *models.Project, diff models.Changes, source, prefix string, actor Actor, now time.Time) (*models.Snapshot, error) {
	names := diff.Names()
	snapshot := &models.Snapshot{
		ProjectID:       project.ID,
		CreatedAt:       now,
		CreatedBy:       actor.ID,
		CreatedByName:   actor.Name,
		Reason:          models.FormatReason(prefix, names),
		Source:          source,
		ChangedFields:   names,
		ProjectOverview: models.Overview(project),
	}
	if err := tx.CreateSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}

	if len(diff) > 0 {
		if err := tx.UpdateProjectFields(ctx, project.ID, diff, now); err != nil {
			return nil, err
		}
	}

	return snapshot, nil
}

// ListSnapshots returns the project history newest first
func (s *Service) ListSnapshots(ctx context.Context, projectID int64, filter models.SnapshotFilter) ([]*models.Snapshot, int, error) {
	filter.Page, filter.PageSize = normalizePage(filter.Page, filter.PageSize, DefaultSnapshotPageSize, MaxSnapshotPageSize)
	return s.store.ListSnapshots(ctx, projectID, filter)
}

// GetSnapshot returns one snapshot scoped to its project
func (s *Service) GetSnapshot(ctx context.Context, projectID, snapshotID int64) (*models.Snapshot, error) {
	return s.store.GetSnapshot(ctx, projectID, snapshotID)
}

// Restore writes the snapshot overview back to the project. The pre-restore state is
// recorded as a new undo snapshot, so restoring that snapshot redoes the change.
// Existing snapshots are never modified.
func (s *Service) Restore(ctx context.Context, projectID, snapshotID int64, actor Actor) (*RestoreResult, error) {
	result := &RestoreResult{}

	err := s.store.RunInTx(ctx, func(tx storage.ProjectTx) error {
		project, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return err
		}

		snapshot, err := tx.GetSnapshot(ctx, projectID, snapshotID)
		if err != nil {
			return err
		}

		patch, err := models.OverviewPatch(snapshot.ProjectOverview)
		if err != nil {
			return fmt.Errorf("failed to read snapshot overview: %w", err)
		}
		target, err := patch.Normalize()
		if err != nil {
			return fmt.Errorf("snapshot %d has invalid overview: %w", snapshotID, err)
		}

		diff := target.Diff(project)
		undo, err := writeSnapshotAndUpdate(ctx, tx, project, diff, models.SourceUndo, models.ReasonPrefixRestore, actor, s.now())
		if err != nil {
			return err
		}

		result.Snapshot = undo
		result.Project, err = tx.GetProject(ctx, projectID)
		return err
	})
	if err != nil {
		status := metrics.StatusError
		if errors.Is(err, storage.ErrProjectNotFound) || errors.Is(err, storage.ErrSnapshotNotFound) {
			status = metrics.StatusNotFound
		}
		s.metrics.Restore(status)
		return nil, err
	}

	s.metrics.Restore(metrics.StatusOK)
	s.metrics.SnapshotWritten(models.SourceUndo)
	s.logger.InfoContext(ctx, "snapshot restored",
		slog.Int64("project_id", projectID),
		slog.Int64("snapshot_id", snapshotID),
		slog.Int64("undo_snapshot_id", result.Snapshot.ID),
		slog.String("user_id", actor.ID),
		slog.Any("fields", result.Snapshot.ChangedFields),
	)

	return result, nil
}

// normalizePage подставляет значения по умолчанию и ограничивает размер страницы
func normalizePage(page, size, def, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = def
	}
	if size > limit {
		size = limit
	}
	return page, size
}
