package storage

import (
	"context"

	"github.com/iudanet/salesnav/internal/models"
)

// SnapshotStorage defines read access to project snapshot history.
// Snapshots are written only through ProjectTx.
type SnapshotStorage interface {
	// ListSnapshots returns one page of snapshots newest first and the total count
	ListSnapshots(ctx context.Context, projectID int64, filter models.SnapshotFilter) ([]*models.Snapshot, int, error)

	// GetSnapshot retrieves snapshot scoped to the project
	// Returns ErrSnapshotNotFound if it doesn't exist or belongs to another project
	GetSnapshot(ctx context.Context, projectID, snapshotID int64) (*models.Snapshot, error)
}
