package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/internal/server/storage"
)

func TestProjectStorage_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	statusID := int64(2)
	endDate := "2025-03-31"
	project := &models.Project{
		Name:                 "案件A",
		ClientName:           "クライアントA",
		ProgressStatusID:     &statusID,
		ExpectedEndDate:      &endDate,
		AppointmentCount:     3,
		OperatorGroupInvited: true,
	}
	require.NoError(t, s.CreateProject(ctx, project))
	assert.NotZero(t, project.ID)

	got, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "案件A", got.Name)
	assert.Equal(t, int64(3), got.AppointmentCount)
	assert.True(t, got.OperatorGroupInvited)
	assert.False(t, got.DirectorLoginAvailable)
	require.NotNil(t, got.ProgressStatusID)
	assert.Equal(t, int64(2), *got.ProgressStatusID)
	assert.Equal(t, "進行中", got.ProgressStatusName)
	assert.Nil(t, got.ServiceTypeID)
	assert.Equal(t, "", got.ServiceTypeName)
	require.NotNil(t, got.ExpectedEndDate)
	assert.Equal(t, "2025-03-31", *got.ExpectedEndDate)
	assert.Nil(t, got.OperationStartDate)

	_, err = s.GetProject(ctx, 9999)
	assert.ErrorIs(t, err, storage.ErrProjectNotFound)
}

func TestProjectStorage_ListProjects(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	for _, name := range []string{"alpha", "beta", "gamma", "alpha_2", "delta"} {
		createTestProject(t, ctx, s, name)
	}

	tests := []struct {
		name      string
		filter    models.ProjectFilter
		wantNames []string
		wantTotal int
	}{
		{
			name:      "first page",
			filter:    models.ProjectFilter{Page: 1, PageSize: 2},
			wantNames: []string{"alpha", "beta"},
			wantTotal: 5,
		},
		{
			name:      "last page",
			filter:    models.ProjectFilter{Page: 3, PageSize: 2},
			wantNames: []string{"delta"},
			wantTotal: 5,
		},
		{
			name:      "search",
			filter:    models.ProjectFilter{Page: 1, PageSize: 10, Search: "alpha"},
			wantNames: []string{"alpha", "alpha_2"},
			wantTotal: 2,
		},
		{
			name:      "underscore is literal",
			filter:    models.ProjectFilter{Page: 1, PageSize: 10, Search: "a_"},
			wantNames: []string{"alpha_2"},
			wantTotal: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			projects, total, err := s.ListProjects(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)

			names := make([]string, 0, len(projects))
			for _, p := range projects {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestProjectTx_UpdateProjectFields_OnlyTouchesGivenColumns(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	project := &models.Project{Name: "sparse", Remarks: "keep me", AppointmentCount: 3, Situation: "clear me"}
	require.NoError(t, s.CreateProject(ctx, project))

	err := s.RunInTx(ctx, func(tx storage.ProjectTx) error {
		return tx.UpdateProjectFields(ctx, project.ID, models.Changes{
			"appointment_count": int64(10),
			"situation":         "",
			"media_type_id":     int64(1),
		}, time.Now())
	})
	require.NoError(t, err)

	got, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.AppointmentCount)
	assert.Equal(t, "", got.Situation)
	assert.Equal(t, "keep me", got.Remarks)
	assert.Equal(t, "Facebook", got.MediaTypeName)

	err = s.RunInTx(ctx, func(tx storage.ProjectTx) error {
		return tx.UpdateProjectFields(ctx, 9999, models.Changes{"remarks": "x"}, time.Now())
	})
	assert.ErrorIs(t, err, storage.ErrProjectNotFound)
}

func TestProjectTx_GetProjectsAndMissingReferences(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	p1 := createTestProject(t, ctx, s, "one")
	p2 := createTestProject(t, ctx, s, "two")

	err := s.RunInTx(ctx, func(tx storage.ProjectTx) error {
		found, err := tx.GetProjects(ctx, []int64{p1.ID, p2.ID, 9999})
		require.NoError(t, err)
		assert.Len(t, found, 2)
		assert.Contains(t, found, p1.ID)
		assert.NotContains(t, found, int64(9999))

		missing, err := tx.MissingReferences(ctx, "progress_statuses", []int64{1, 2, 42})
		require.NoError(t, err)
		assert.Equal(t, []int64{42}, missing)

		_, err = tx.MissingReferences(ctx, "users", []int64{1})
		assert.ErrorIs(t, err, storage.ErrMasterKindNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestProjectStorage_DeleteProject(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	project := createTestProject(t, ctx, s, "to delete")
	require.NoError(t, s.DeleteProject(ctx, project.ID))
	assert.ErrorIs(t, s.DeleteProject(ctx, project.ID), storage.ErrProjectNotFound)
}

func TestMasterStorage_ListMasterItems(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	items, err := s.ListMasterItems(ctx, "progress_statuses")
	require.NoError(t, err)
	require.NotEmpty(t, items)
	assert.Equal(t, "未着手", items[0].Name)

	_, err = s.ListMasterItems(ctx, "users")
	assert.ErrorIs(t, err, storage.ErrMasterKindNotFound)
}
