package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/salesnav/internal/client/storage"
	"github.com/iudanet/salesnav/internal/models"
)

// SaveLock запоминает захваченную блокировку, ключ bucket совпадает с LockKey.String()
func (s *Storage) SaveLock(ctx context.Context, lock *models.PageLock) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketLocks)
		if bucket == nil {
			return fmt.Errorf("locks bucket not found")
		}

		data, err := json.Marshal(lock)
		if err != nil {
			return fmt.Errorf("failed to marshal lock: %w", err)
		}

		if err := bucket.Put([]byte(lock.Key.String()), data); err != nil {
			return fmt.Errorf("failed to save lock: %w", err)
		}
		return nil
	})
}

// DeleteLock забывает блокировку. Отсутствие записи не ошибка.
func (s *Storage) DeleteLock(ctx context.Context, key models.LockKey) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketLocks)
		if bucket == nil {
			return fmt.Errorf("locks bucket not found")
		}
		if err := bucket.Delete([]byte(key.String())); err != nil {
			return fmt.Errorf("failed to delete lock: %w", err)
		}
		return nil
	})
}

// ListLocks возвращает все запомненные блокировки в порядке ключей
func (s *Storage) ListLocks(ctx context.Context) ([]*models.PageLock, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var locks []*models.PageLock

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketLocks)
		if bucket == nil {
			return fmt.Errorf("locks bucket not found")
		}

		return bucket.ForEach(func(k, v []byte) error {
			lock := &models.PageLock{}
			if err := json.Unmarshal(v, lock); err != nil {
				return fmt.Errorf("failed to unmarshal lock %s: %w", k, err)
			}
			locks = append(locks, lock)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return locks, nil
}
