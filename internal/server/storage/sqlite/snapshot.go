package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/internal/server/storage"
)

const snapshotColumns = `id, project_id, created_at, created_by, created_by_name, reason, source, changed_fields, project_overview`

// CreateSnapshot appends a snapshot to the project history and sets its ID
func (t *projectTx) CreateSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	// История строго упорядочена: новый снапшот всегда позже предыдущего
	var last int64
	err := t.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(created_at), 0) FROM project_snapshots WHERE project_id = ?`,
		snapshot.ProjectID,
	).Scan(&last)
	if err != nil {
		return fmt.Errorf("failed to get last snapshot time: %w", err)
	}

	createdAt := toMicro(snapshot.CreatedAt)
	if createdAt <= last {
		createdAt = last + 1
	}

	changed := snapshot.ChangedFields
	if changed == nil {
		changed = []string{}
	}
	changedJSON, err := json.Marshal(changed)
	if err != nil {
		return fmt.Errorf("failed to marshal changed fields: %w", err)
	}

	overviewJSON, err := json.Marshal(snapshot.ProjectOverview)
	if err != nil {
		return fmt.Errorf("failed to marshal project overview: %w", err)
	}

	query := `
		INSERT INTO project_snapshots (project_id, created_at, created_by, created_by_name, reason, source, changed_fields, project_overview)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := t.q.ExecContext(ctx, query,
		snapshot.ProjectID,
		createdAt,
		snapshot.CreatedBy,
		snapshot.CreatedByName,
		snapshot.Reason,
		snapshot.Source,
		string(changedJSON),
		string(overviewJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get snapshot id: %w", err)
	}

	snapshot.ID = id
	snapshot.CreatedAt = fromMicro(createdAt)
	snapshot.ChangedFields = changed
	snapshot.SourceLabel = models.SourceLabel(snapshot.Source)

	return nil
}

// GetSnapshot retrieves snapshot scoped to the project
func (t *projectTx) GetSnapshot(ctx context.Context, projectID, snapshotID int64) (*models.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM project_snapshots WHERE id = ? AND project_id = ?`

	snapshot, err := scanSnapshot(t.q.QueryRowContext(ctx, query, snapshotID, projectID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSnapshotNotFound
		}
		return nil, err
	}

	return snapshot, nil
}

// GetSnapshot retrieves snapshot scoped to the project
func (s *Storage) GetSnapshot(ctx context.Context, projectID, snapshotID int64) (*models.Snapshot, error) {
	return (&projectTx{q: s.db}).GetSnapshot(ctx, projectID, snapshotID)
}

// ListSnapshots returns one page of snapshots newest first and the total count
func (s *Storage) ListSnapshots(ctx context.Context, projectID int64, filter models.SnapshotFilter) ([]*models.Snapshot, int, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, projectID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, storage.ErrProjectNotFound
		}
		return nil, 0, fmt.Errorf("failed to check project: %w", err)
	}

	where := ` WHERE project_id = ?`
	args := []any{projectID}
	if filter.Since != nil {
		where += ` AND created_at >= ?`
		args = append(args, toMicro(*filter.Since))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM project_snapshots`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count snapshots: %w", err)
	}

	query := `SELECT ` + snapshotColumns + ` FROM project_snapshots` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, append(args, filter.PageSize, filter.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	snapshots := make([]*models.Snapshot, 0, filter.PageSize)
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, 0, err
		}
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	return snapshots, total, nil
}

// scanSnapshot сканирует строку project_snapshots в модель
func scanSnapshot(row rowScanner) (*models.Snapshot, error) {
	snapshot := &models.Snapshot{}
	var (
		createdAt    int64
		changedJSON  string
		overviewJSON string
	)

	err := row.Scan(
		&snapshot.ID,
		&snapshot.ProjectID,
		&createdAt,
		&snapshot.CreatedBy,
		&snapshot.CreatedByName,
		&snapshot.Reason,
		&snapshot.Source,
		&changedJSON,
		&overviewJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(changedJSON), &snapshot.ChangedFields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal changed fields: %w", err)
	}
	if err := json.Unmarshal([]byte(overviewJSON), &snapshot.ProjectOverview); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project overview: %w", err)
	}

	snapshot.CreatedAt = fromMicro(createdAt)
	snapshot.SourceLabel = models.SourceLabel(snapshot.Source)

	return snapshot, nil
}
