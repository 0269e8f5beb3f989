package sqlite

import (
	"context"
	"fmt"

	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/internal/server/storage"
)

// ListMasterItems returns items of the master table ordered by sort order
func (s *Storage) ListMasterItems(ctx context.Context, table string) ([]models.MasterItem, error) {
	if !refTables[table] {
		return nil, storage.ErrMasterKindNotFound
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, sort_order FROM `+table+` ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	items := []models.MasterItem{}
	for rows.Next() {
		var item models.MasterItem
		if err := rows.Scan(&item.ID, &item.Name, &item.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan master item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return items, nil
}
