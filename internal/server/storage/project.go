package storage

import (
	"context"
	"time"

	"github.com/iudanet/salesnav/internal/models"
)

// ProjectStorage defines interface for project persistence
type ProjectStorage interface {
	// CreateProject inserts a new project and sets its ID
	CreateProject(ctx context.Context, project *models.Project) error

	// GetProject retrieves project by ID with resolved master data names
	// Returns ErrProjectNotFound if project doesn't exist
	GetProject(ctx context.Context, id int64) (*models.Project, error)

	// ListProjects returns one page of projects ordered by ID and the total count
	ListProjects(ctx context.Context, filter models.ProjectFilter) ([]*models.Project, int, error)

	// DeleteProject deletes project together with its snapshot history
	// Returns ErrProjectNotFound if project doesn't exist
	DeleteProject(ctx context.Context, id int64) error

	// RunInTx executes fn inside a single database transaction.
	// The transaction is committed when fn returns nil and rolled back otherwise.
	RunInTx(ctx context.Context, fn func(tx ProjectTx) error) error
}

// ProjectTx is the set of operations available inside a project transaction.
// Every mutation of a project and its snapshot history goes through it.
type ProjectTx interface {
	// GetProjects loads the given projects, missing IDs are absent from the map
	GetProjects(ctx context.Context, ids []int64) (map[int64]*models.Project, error)

	// GetProject retrieves project by ID
	// Returns ErrProjectNotFound if project doesn't exist
	GetProject(ctx context.Context, id int64) (*models.Project, error)

	// UpdateProjectFields writes only the given fields of the project
	// Returns ErrProjectNotFound if project doesn't exist
	UpdateProjectFields(ctx context.Context, id int64, changes models.Changes, updatedAt time.Time) error

	// CreateSnapshot appends a snapshot to the project history and sets its ID.
	// CreatedAt is moved forward when needed so that history stays strictly ordered.
	CreateSnapshot(ctx context.Context, snapshot *models.Snapshot) error

	// GetSnapshot retrieves snapshot scoped to the project
	// Returns ErrSnapshotNotFound if it doesn't exist or belongs to another project
	GetSnapshot(ctx context.Context, projectID, snapshotID int64) (*models.Snapshot, error)

	// MissingReferences returns IDs from ids that do not exist in the master table
	MissingReferences(ctx context.Context, table string, ids []int64) ([]int64, error)

	// GetLock returns the unexpired page lock for the key as seen by the transaction
	// Returns ErrLockNotFound if there is none
	GetLock(ctx context.Context, key models.LockKey, now time.Time) (*models.PageLock, error)
}
