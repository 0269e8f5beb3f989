package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/internal/server/storage"
)

const lockColumns = `page, page_size, filter_hash, holder_id, holder_name, acquired_at, expires_at`

// AcquireLock stores lock if the key is free, expired at now, or held by lock.HolderID
func (s *Storage) AcquireLock(ctx context.Context, lock *models.PageLock, now time.Time) (*models.PageLock, bool, error) {
	var (
		current *models.PageLock
		granted bool
	)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanLock(tx.QueryRowContext(ctx,
			`SELECT `+lockColumns+` FROM page_locks WHERE page = ? AND page_size = ? AND filter_hash = ?`,
			lock.Key.Page, lock.Key.PageSize, lock.Key.FilterHash,
		))
		if err != nil && !errors.Is(err, storage.ErrLockNotFound) {
			return err
		}

		switch {
		case existing == nil || existing.Expired(now):
			// Свободно или истекло: записываем новую блокировку
			_, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO page_locks (`+lockColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				lock.Key.Page, lock.Key.PageSize, lock.Key.FilterHash,
				lock.HolderID, lock.HolderName,
				toMicro(lock.AcquiredAt), toMicro(lock.ExpiresAt),
			)
			if err != nil {
				return fmt.Errorf("failed to insert page lock: %w", err)
			}
			current, granted = lock, true

		case existing.HolderID == lock.HolderID:
			// Повторный захват тем же пользователем продлевает TTL
			_, err := tx.ExecContext(ctx,
				`UPDATE page_locks SET expires_at = ?, holder_name = ?
				WHERE page = ? AND page_size = ? AND filter_hash = ?`,
				toMicro(lock.ExpiresAt), lock.HolderName,
				lock.Key.Page, lock.Key.PageSize, lock.Key.FilterHash,
			)
			if err != nil {
				return fmt.Errorf("failed to refresh page lock: %w", err)
			}
			existing.ExpiresAt = lock.ExpiresAt
			existing.HolderName = lock.HolderName
			current, granted = existing, true

		default:
			current, granted = existing, false
		}

		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return current, granted, nil
}

// ReleaseLock deletes the lock only if it is held by holderID
func (s *Storage) ReleaseLock(ctx context.Context, key models.LockKey, holderID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM page_locks WHERE page = ? AND page_size = ? AND filter_hash = ? AND holder_id = ?`,
		key.Page, key.PageSize, key.FilterHash, holderID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to release page lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// GetLock returns the unexpired lock for the key
func (s *Storage) GetLock(ctx context.Context, key models.LockKey, now time.Time) (*models.PageLock, error) {
	return getLock(ctx, s.db, key, now)
}

// GetLock reads the lock inside the transaction so the check commits together with the writes
func (t *projectTx) GetLock(ctx context.Context, key models.LockKey, now time.Time) (*models.PageLock, error) {
	return getLock(ctx, t.q, key, now)
}

func getLock(ctx context.Context, q querier, key models.LockKey, now time.Time) (*models.PageLock, error) {
	return scanLock(q.QueryRowContext(ctx,
		`SELECT `+lockColumns+` FROM page_locks
		WHERE page = ? AND page_size = ? AND filter_hash = ? AND expires_at > ?`,
		key.Page, key.PageSize, key.FilterHash, toMicro(now),
	))
}

// ListHolderLocks returns unexpired locks owned by holderID
func (s *Storage) ListHolderLocks(ctx context.Context, holderID string, now time.Time) ([]*models.PageLock, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+lockColumns+` FROM page_locks
		WHERE holder_id = ? AND expires_at > ?
		ORDER BY acquired_at`,
		holderID, toMicro(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query page locks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var locks []*models.PageLock
	for rows.Next() {
		lock, err := scanLock(rows)
		if err != nil {
			return nil, err
		}
		locks = append(locks, lock)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return locks, nil
}

// DeleteExpiredLocks removes locks expired at now
func (s *Storage) DeleteExpiredLocks(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM page_locks WHERE expires_at <= ?`, toMicro(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired page locks: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

// scanLock сканирует строку page_locks в модель
func scanLock(row rowScanner) (*models.PageLock, error) {
	lock := &models.PageLock{}
	var acquiredAt, expiresAt int64

	err := row.Scan(
		&lock.Key.Page,
		&lock.Key.PageSize,
		&lock.Key.FilterHash,
		&lock.HolderID,
		&lock.HolderName,
		&acquiredAt,
		&expiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrLockNotFound
		}
		return nil, fmt.Errorf("failed to scan page lock: %w", err)
	}

	lock.AcquiredAt = fromMicro(acquiredAt)
	lock.ExpiresAt = fromMicro(expiresAt)

	return lock, nil
}
