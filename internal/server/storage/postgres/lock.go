// Package postgres хранит блокировки страниц в PostgreSQL, чтобы несколько
// экземпляров сервера видели одну и ту же таблицу блокировок.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/internal/server/storage"
)

const driverName = "pgx"

// acquireAttempts ограничивает повторы, когда блокировка исчезла между upsert и чтением
const acquireAttempts = 3

const lockColumns = `page, page_size, filter_hash, holder_id, holder_name, acquired_at, expires_at`

// Compile-time проверка интерфейса
var _ storage.LockStorage = (*LockStore)(nil)

// LockStore implements storage.LockStorage on top of PostgreSQL
type LockStore struct {
	db *sql.DB
}

// New opens a PostgreSQL connection and ensures the page_locks table exists
func New(ctx context.Context, dsn string) (*LockStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := ensureLockTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &LockStore{db: db}, nil
}

// Close closes the database connection
func (s *LockStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable
func (s *LockStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the underlying connection for tests
func (s *LockStore) DB() *sql.DB { return s.db }

func ensureLockTable(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS page_locks (
			page        INTEGER NOT NULL,
			page_size   INTEGER NOT NULL,
			filter_hash TEXT NOT NULL,
			holder_id   TEXT NOT NULL,
			holder_name TEXT NOT NULL,
			acquired_at TIMESTAMPTZ NOT NULL,
			expires_at  TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (page, page_size, filter_hash)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_page_locks_holder ON page_locks (holder_id)`,
		`CREATE INDEX IF NOT EXISTS idx_page_locks_expires ON page_locks (expires_at)`,
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure page_locks table: %w", err)
		}
	}
	return nil
}

// AcquireLock выполняет захват одним upsert: строка перезаписывается только если
// она истекла или принадлежит тому же пользователю. Иначе RETURNING пуст.
func (s *LockStore) AcquireLock(ctx context.Context, lock *models.PageLock, now time.Time) (*models.PageLock, bool, error) {
	for attempt := 0; attempt < acquireAttempts; attempt++ {
		current, err := scanLock(s.db.QueryRowContext(ctx,
			`INSERT INTO page_locks (`+lockColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (page, page_size, filter_hash) DO UPDATE SET
				holder_id = EXCLUDED.holder_id,
				holder_name = EXCLUDED.holder_name,
				acquired_at = CASE
					WHEN page_locks.holder_id = EXCLUDED.holder_id AND page_locks.expires_at > $8
					THEN page_locks.acquired_at
					ELSE EXCLUDED.acquired_at
				END,
				expires_at = EXCLUDED.expires_at
			WHERE page_locks.holder_id = EXCLUDED.holder_id OR page_locks.expires_at <= $8
			RETURNING `+lockColumns,
			lock.Key.Page, lock.Key.PageSize, lock.Key.FilterHash,
			lock.HolderID, lock.HolderName,
			lock.AcquiredAt.UTC(), lock.ExpiresAt.UTC(), now.UTC(),
		))
		if err == nil {
			return current, true, nil
		}
		if !errors.Is(err, storage.ErrLockNotFound) {
			return nil, false, fmt.Errorf("failed to upsert page lock: %w", err)
		}

		// Отказ: читаем текущего владельца
		current, err = s.GetLock(ctx, lock.Key, now)
		if err == nil {
			return current, false, nil
		}
		if !errors.Is(err, storage.ErrLockNotFound) {
			return nil, false, err
		}
	}

	return nil, false, fmt.Errorf("failed to acquire page lock %s: too much contention", lock.Key)
}

// ReleaseLock deletes the lock only if it is held by holderID
func (s *LockStore) ReleaseLock(ctx context.Context, key models.LockKey, holderID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM page_locks WHERE page = $1 AND page_size = $2 AND filter_hash = $3 AND holder_id = $4`,
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
func (s *LockStore) GetLock(ctx context.Context, key models.LockKey, now time.Time) (*models.PageLock, error) {
	return scanLock(s.db.QueryRowContext(ctx,
		`SELECT `+lockColumns+` FROM page_locks
		WHERE page = $1 AND page_size = $2 AND filter_hash = $3 AND expires_at > $4`,
		key.Page, key.PageSize, key.FilterHash, now.UTC(),
	))
}

// ListHolderLocks returns unexpired locks owned by holderID
func (s *LockStore) ListHolderLocks(ctx context.Context, holderID string, now time.Time) ([]*models.PageLock, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+lockColumns+` FROM page_locks
		WHERE holder_id = $1 AND expires_at > $2
		ORDER BY acquired_at`,
		holderID, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query page locks: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
func (s *LockStore) DeleteExpiredLocks(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM page_locks WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired page locks: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLock(row rowScanner) (*models.PageLock, error) {
	lock := &models.PageLock{}
	err := row.Scan(
		&lock.Key.Page,
		&lock.Key.PageSize,
		&lock.Key.FilterHash,
		&lock.HolderID,
		&lock.HolderName,
		&lock.AcquiredAt,
		&lock.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrLockNotFound
		}
		return nil, fmt.Errorf("failed to scan page lock: %w", err)
	}

	lock.AcquiredAt = lock.AcquiredAt.UTC()
	lock.ExpiresAt = lock.ExpiresAt.UTC()

	return lock, nil
}
