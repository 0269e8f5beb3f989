package storage

import (
	"context"
	"time"

	"github.com/iudanet/salesnav/internal/models"
)

// LockStorage defines interface for page lock persistence.
// Implementations must make AcquireLock atomic for a key.
type LockStorage interface {
	// AcquireLock stores lock if the key is free, expired at now, or held by lock.HolderID.
	// On re-entry by the same holder only ExpiresAt is refreshed.
	// Returns the lock that is current after the call and whether it belongs to the requester.
	AcquireLock(ctx context.Context, lock *models.PageLock, now time.Time) (*models.PageLock, bool, error)

	// ReleaseLock deletes the lock only if it is held by holderID
	// Returns false when nothing was released
	ReleaseLock(ctx context.Context, key models.LockKey, holderID string) (bool, error)

	// GetLock returns the unexpired lock for the key
	// Returns ErrLockNotFound if there is no active lock
	GetLock(ctx context.Context, key models.LockKey, now time.Time) (*models.PageLock, error)

	// ListHolderLocks returns unexpired locks owned by holderID
	ListHolderLocks(ctx context.Context, holderID string, now time.Time) ([]*models.PageLock, error)

	// DeleteExpiredLocks removes locks expired at now
	// Returns number of deleted locks
	DeleteExpiredLocks(ctx context.Context, now time.Time) (int, error)
}
