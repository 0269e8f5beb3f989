package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/internal/server/storage"
)

// projectTx реализует storage.ProjectTx поверх *sql.Tx (или *sql.DB для чтения)
type projectTx struct {
	q querier
}

// rowScanner общий интерфейс *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

var (
	projectFieldNames = func() []string {
		fields := models.ProjectFields()
		names := make([]string, len(fields))
		for i, f := range fields {
			names[i] = f.Name
		}
		return names
	}()

	// refTables допустимые таблицы справочников
	refTables = func() map[string]bool {
		tables := make(map[string]bool)
		for _, f := range models.ProjectFields() {
			if f.Kind == models.KindRef {
				tables[f.RefTable] = true
			}
		}
		return tables
	}()

	projectSelect = `
		SELECT p.id, p.` + strings.Join(projectFieldNames, ", p.") + `, p.created_at, p.updated_at,
			COALESCE(ps.name, ''), COALESCE(st.name, ''), COALESCE(mt.name, '')
		FROM projects p
		LEFT JOIN progress_statuses ps ON ps.id = p.progress_status_id
		LEFT JOIN service_types st ON st.id = p.service_type_id
		LEFT JOIN media_types mt ON mt.id = p.media_type_id
	`
)

// CreateProject inserts a new project and sets its ID
func (s *Storage) CreateProject(ctx context.Context, project *models.Project) error {
	now := time.Now().UTC()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = project.CreatedAt

	fields := models.ProjectFields()
	args := make([]any, 0, len(fields)+2)
	for _, f := range fields {
		args = append(args, columnValue(f.Get(project)))
	}
	args = append(args, toMicro(project.CreatedAt), toMicro(project.UpdatedAt))

	query := `INSERT INTO projects (` + strings.Join(projectFieldNames, ", ") + `, created_at, updated_at)
		VALUES (` + placeholders(len(args)) + `)`

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get project id: %w", err)
	}
	project.ID = id

	return nil
}

// GetProject retrieves project by ID with resolved master data names
func (s *Storage) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	return (&projectTx{q: s.db}).GetProject(ctx, id)
}

// ListProjects returns one page of projects ordered by ID and the total count
func (s *Storage) ListProjects(ctx context.Context, filter models.ProjectFilter) ([]*models.Project, int, error) {
	var (
		conds []string
		args  []any
	)

	if filter.Search != "" {
		pattern := "%" + escapeLike(filter.Search) + "%"
		conds = append(conds, `(p.name LIKE ? ESCAPE '\' OR p.client_name LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if filter.ProgressStatusID != nil {
		conds = append(conds, `p.progress_status_id = ?`)
		args = append(args, *filter.ProgressStatusID)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects p`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count projects: %w", err)
	}

	query := projectSelect + where + ` ORDER BY p.id LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, filter.PageSize, filter.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query projects: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	projects := make([]*models.Project, 0, filter.PageSize)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		projects = append(projects, p)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	return projects, total, nil
}

// DeleteProject deletes project together with its snapshot history
func (s *Storage) DeleteProject(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrProjectNotFound
	}

	return nil
}

// GetProject retrieves project by ID
func (t *projectTx) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	p, err := scanProject(t.q.QueryRowContext(ctx, projectSelect+` WHERE p.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrProjectNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetProjects loads the given projects, missing IDs are absent from the map
func (t *projectTx) GetProjects(ctx context.Context, ids []int64) (map[int64]*models.Project, error) {
	out := make(map[int64]*models.Project, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := t.q.QueryContext(ctx, projectSelect+` WHERE p.id IN (`+placeholders(len(ids))+`)`, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return out, nil
}

// UpdateProjectFields writes only the given fields of the project
func (t *projectTx) UpdateProjectFields(ctx context.Context, id int64, changes models.Changes, updatedAt time.Time) error {
	names := changes.Names()
	sets := make([]string, 0, len(names)+1)
	args := make([]any, 0, len(names)+2)
	for _, name := range names {
		if _, ok := models.LookupField(name); !ok {
			return fmt.Errorf("unknown project field %q", name)
		}
		sets = append(sets, name+" = ?")
		args = append(args, columnValue(changes[name]))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, toMicro(updatedAt), id)

	result, err := t.q.ExecContext(ctx, `UPDATE projects SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrProjectNotFound
	}

	return nil
}

// MissingReferences returns IDs from ids that do not exist in the master table
func (t *projectTx) MissingReferences(ctx context.Context, table string, ids []int64) ([]int64, error) {
	if !refTables[table] {
		return nil, storage.ErrMasterKindNotFound
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := t.q.QueryContext(ctx, `SELECT id FROM `+table+` WHERE id IN (`+placeholders(len(ids))+`)`, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	found := make(map[int64]bool, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		found[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	var missing []int64
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// scanProject сканирует строку projectSelect в модель
func scanProject(row rowScanner) (*models.Project, error) {
	fields := models.ProjectFields()
	dest := make([]any, 0, len(fields)+6)

	p := &models.Project{}
	dest = append(dest, &p.ID)

	values := make([]any, len(fields))
	for i, f := range fields {
		switch f.Kind {
		case models.KindText:
			values[i] = new(string)
		case models.KindCount, models.KindFlag:
			values[i] = new(int64)
		case models.KindRef:
			values[i] = new(sql.NullInt64)
		case models.KindDate:
			values[i] = new(sql.NullString)
		}
		dest = append(dest, values[i])
	}

	var createdAt, updatedAt int64
	dest = append(dest, &createdAt, &updatedAt, &p.ProgressStatusName, &p.ServiceTypeName, &p.MediaTypeName)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}

	for i, f := range fields {
		switch v := values[i].(type) {
		case *string:
			f.Set(p, *v)
		case *int64:
			if f.Kind == models.KindFlag {
				f.Set(p, *v != 0)
			} else {
				f.Set(p, *v)
			}
		case *sql.NullInt64:
			if v.Valid {
				f.Set(p, v.Int64)
			} else {
				f.Set(p, nil)
			}
		case *sql.NullString:
			if v.Valid {
				f.Set(p, v.String)
			} else {
				f.Set(p, nil)
			}
		}
	}

	p.CreatedAt = fromMicro(createdAt)
	p.UpdatedAt = fromMicro(updatedAt)

	return p, nil
}

// columnValue приводит каноническое значение поля к значению колонки
func columnValue(v any) any {
	if b, ok := v.(bool); ok {
		return boolToInt(b)
	}
	return v
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// escapeLike экранирует спецсимволы LIKE
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
