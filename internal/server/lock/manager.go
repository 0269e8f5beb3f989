// Package lock управляет эксклюзивными блокировками страниц списка проектов.
//
// Блокировка идентифицируется ключом (page, page_size, filter_hash) и принадлежит
// одному пользователю до истечения TTL или явного освобождения.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/iudanet/salesnav/internal/metrics"
	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/internal/server/storage"
)

// Ограничения ключа
const (
	MaxPageSize      = 500
	MaxFilterHashLen = 128
)

// DefaultTTL время жизни блокировки по умолчанию
const DefaultTTL = 10 * time.Minute

var (
	// ErrLockNotHeld возвращается, когда пользователь не владеет активной блокировкой ключа
	ErrLockNotHeld = errors.New("page lock is not held")

	// ErrInvalidKey возвращается для некорректного ключа блокировки
	ErrInvalidKey = errors.New("invalid page lock key")
)

// Holder пользователь, запрашивающий блокировку
type Holder struct {
	ID   string
	Name string
}

// Result результат попытки захвата
type Result struct {
	Lock    *models.PageLock // текущая блокировка ключа после попытки
	Message string           // причина отказа, пусто при успехе
	Granted bool
}

// Manager coordinates page locks on top of a LockStorage
type Manager struct {
	store   storage.LockStorage
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	ttl     time.Duration
}

// NewManager creates a lock manager. Non-positive ttl falls back to DefaultTTL.
func NewManager(logger *slog.Logger, store storage.LockStorage, m *metrics.Metrics, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:   store,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		ttl:     ttl,
	}
}

// TTL returns the configured lock lifetime
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// NormalizeKey validates the key and substitutes the default filter hash
func NormalizeKey(key models.LockKey) (models.LockKey, error) {
	if key.FilterHash == "" {
		key.FilterHash = models.DefaultFilterHash
	}
	if key.Page < 1 {
		return key, fmt.Errorf("%w: page must be >= 1", ErrInvalidKey)
	}
	if key.PageSize < 1 || key.PageSize > MaxPageSize {
		return key, fmt.Errorf("%w: page_size must be between 1 and %d", ErrInvalidKey, MaxPageSize)
	}
	if utf8.RuneCountInString(key.FilterHash) > MaxFilterHashLen {
		return key, fmt.Errorf("%w: filter_hash must be at most %d characters", ErrInvalidKey, MaxFilterHashLen)
	}
	return key, nil
}

// DenialMessage формирует сообщение об отказе для пользователя
func DenialMessage(holderName string) string {
	return fmt.Sprintf("このページは%sが編集中です", holderName)
}

// Acquire grants the lock when the key is free, expired or already held by holder.
// A denial is reported through Result and is not an error.
func (m *Manager) Acquire(ctx context.Context, key models.LockKey, holder Holder) (*Result, error) {
	key, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}

	now := m.now()
	current, granted, err := m.store.AcquireLock(ctx, &models.PageLock{
		Key:        key,
		HolderID:   holder.ID,
		HolderName: holder.Name,
		AcquiredAt: now,
		ExpiresAt:  now.Add(m.ttl),
	}, now)
	if err != nil {
		m.metrics.LockAcquire(metrics.LockError)
		return nil, fmt.Errorf("failed to acquire page lock: %w", err)
	}

	if !granted {
		m.metrics.LockAcquire(metrics.LockDenied)
		m.logger.InfoContext(ctx, "page lock denied",
			slog.String("key", key.String()),
			slog.String("requester", holder.ID),
			slog.String("holder", current.HolderID),
		)
		return &Result{Lock: current, Message: DenialMessage(current.HolderName)}, nil
	}

	m.metrics.LockAcquire(metrics.LockGranted)
	m.logger.DebugContext(ctx, "page lock granted",
		slog.String("key", key.String()),
		slog.String("holder", holder.ID),
		slog.Time("expires_at", current.ExpiresAt),
	)

	return &Result{Lock: current, Granted: true}, nil
}

// Release clears the lock only when it is held by holderID.
// Releasing someone else's lock or a missing one returns false without error.
func (m *Manager) Release(ctx context.Context, key models.LockKey, holderID string) (bool, error) {
	key, err := NormalizeKey(key)
	if err != nil {
		return false, err
	}

	released, err := m.store.ReleaseLock(ctx, key, holderID)
	if err != nil {
		return false, fmt.Errorf("failed to release page lock: %w", err)
	}

	if released {
		m.metrics.LockRelease(metrics.LockReleased)
	} else {
		m.metrics.LockRelease(metrics.LockNoop)
	}

	return released, nil
}

// Get returns the active lock for the key or storage.ErrLockNotFound
func (m *Manager) Get(ctx context.Context, key models.LockKey) (*models.PageLock, error) {
	key, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	return m.store.GetLock(ctx, key, m.now())
}

// Check returns ErrLockNotHeld unless holderID owns an unexpired lock for the key
func (m *Manager) Check(ctx context.Context, key models.LockKey, holderID string) error {
	current, err := m.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrLockNotFound) {
			return ErrLockNotHeld
		}
		return err
	}
	if current.HolderID != holderID {
		return fmt.Errorf("%w: %s", ErrLockNotHeld, DenialMessage(current.HolderName))
	}
	return nil
}

// HeldBy returns every unexpired lock owned by holderID
func (m *Manager) HeldBy(ctx context.Context, holderID string) ([]*models.PageLock, error) {
	return m.store.ListHolderLocks(ctx, holderID, m.now())
}

// Sweep deletes expired locks and returns how many were removed
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	n, err := m.store.DeleteExpiredLocks(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep page locks: %w", err)
	}
	m.metrics.LocksSwept(n)
	return n, nil
}

// Run sweeps expired locks every interval until ctx is done
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				m.logger.ErrorContext(ctx, "page lock sweep failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				m.logger.InfoContext(ctx, "expired page locks removed", slog.Int("count", n))
			}
		}
	}
}
