package storage

import (
	"context"

	"github.com/iudanet/salesnav/internal/models"
)

// LockStorage хранит ключи блокировок, захваченных с этого клиента.
// Нужен для `unlock --all` после прерванной сессии редактирования.
type LockStorage interface {
	SaveLock(ctx context.Context, lock *models.PageLock) error
	DeleteLock(ctx context.Context, key models.LockKey) error
	ListLocks(ctx context.Context) ([]*models.PageLock, error)
}
