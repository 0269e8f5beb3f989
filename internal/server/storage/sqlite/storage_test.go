package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/internal/server/storage"
)

func setupTestStorage(t *testing.T) (*Storage, func()) {
	ctx := context.Background()

	// Используем in-memory database для тестов
	s, err := New(ctx, ":memory:")
	require.NoError(t, err)

	cleanup := func() {
		_ = s.Close()
	}

	return s, cleanup
}

func createTestUser(t *testing.T, ctx context.Context, s *Storage) *models.User {
	userID := uuid.New().String()
	user := &models.User{
		ID:           userID,
		Email:        "user_" + userID[:8] + "@example.com",
		Name:         "担当 " + userID[:4],
		Role:         models.RoleUser,
		PasswordHash: "hash",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, s.CreateUser(ctx, user))
	return user
}

func createTestProject(t *testing.T, ctx context.Context, s *Storage, name string) *models.Project {
	project := &models.Project{
		Name:             name,
		ClientName:       "クライアント",
		AppointmentCount: 3,
	}
	require.NoError(t, s.CreateProject(ctx, project))
	return project
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestNew_RunsMigrations(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	for _, table := range []string{"users", "refresh_tokens", "projects", "project_snapshots", "page_locks", "progress_statuses"} {
		var name string
		err := s.DB().QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	project := createTestProject(t, ctx, s, "rollback")

	errBoom := assert.AnError
	err := s.RunInTx(ctx, func(tx storage.ProjectTx) error {
		if err := tx.UpdateProjectFields(ctx, project.ID, models.Changes{"appointment_count": int64(99)}, time.Now()); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	got, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.AppointmentCount)
}
