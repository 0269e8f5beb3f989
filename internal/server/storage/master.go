package storage

import (
	"context"

	"github.com/iudanet/salesnav/internal/models"
)

// MasterStorage defines read access to master data tables
type MasterStorage interface {
	// ListMasterItems returns items of the master table ordered by sort order
	// Returns ErrMasterKindNotFound for unknown tables
	ListMasterItems(ctx context.Context, table string) ([]models.MasterItem, error)
}
