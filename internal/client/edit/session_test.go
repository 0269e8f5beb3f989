package edit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/salesnav/internal/client/api"
	"github.com/iudanet/salesnav/internal/models"
	pkgapi "github.com/iudanet/salesnav/pkg/api"
)

// fakeAPI записывает вызовы сессии редактирования
type fakeAPI struct {
	acquireErr error
	listErr    error
	bulkErr    error
	page       []*models.Project

	calls    []string
	query    api.ProjectQuery
	bulk     *pkgapi.BulkUpdateRequest
	released []models.LockKey
}

func (f *fakeAPI) AcquireLock(ctx context.Context, token string, key models.LockKey) (*models.PageLock, error) {
	f.calls = append(f.calls, "acquire")
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	now := time.Now()
	return &models.PageLock{Key: key, HolderID: "u-1", HolderName: "佐藤", AcquiredAt: now, ExpiresAt: now.Add(10 * time.Minute)}, nil
}

func (f *fakeAPI) ReleaseLock(ctx context.Context, token string, key models.LockKey) (bool, error) {
	f.calls = append(f.calls, "release")
	f.released = append(f.released, key)
	return true, nil
}

func (f *fakeAPI) ListProjects(ctx context.Context, token string, q api.ProjectQuery) (*pkgapi.Page[*models.Project], error) {
	f.calls = append(f.calls, "list")
	f.query = q
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &pkgapi.Page[*models.Project]{Count: len(f.page), Results: f.page}, nil
}

func (f *fakeAPI) BulkPartialUpdate(ctx context.Context, token string, req pkgapi.BulkUpdateRequest) (*pkgapi.BulkUpdateResponse, error) {
	f.calls = append(f.calls, "bulk")
	f.bulk = &req
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	ids := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProjectID)
	}
	return &pkgapi.BulkUpdateResponse{Success: true, UpdatedCount: len(ids), UpdatedIDs: ids}, nil
}

// memLocks хранит блокировки клиента в памяти
type memLocks struct {
	locks map[string]*models.PageLock
}

func newMemLocks() *memLocks {
	return &memLocks{locks: make(map[string]*models.PageLock)}
}

func (m *memLocks) SaveLock(ctx context.Context, lock *models.PageLock) error {
	m.locks[lock.Key.String()] = lock
	return nil
}

func (m *memLocks) DeleteLock(ctx context.Context, key models.LockKey) error {
	delete(m.locks, key.String())
	return nil
}

func (m *memLocks) ListLocks(ctx context.Context) ([]*models.PageLock, error) {
	out := make([]*models.PageLock, 0, len(m.locks))
	for _, l := range m.locks {
		out = append(out, l)
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustAssign(t *testing.T, specs ...string) []Assignment {
	t.Helper()
	out := make([]Assignment, 0, len(specs))
	for _, s := range specs {
		a, err := ParseAssignment(s)
		require.NoError(t, err)
		out = append(out, a)
	}
	return out
}

func TestEditor_Run_SavesUnderLock(t *testing.T) {
	fake := &fakeAPI{page: testPage()}
	locks := newMemLocks()
	status := int64(2)

	req := Request{
		Page:        1,
		PageSize:    20,
		Filter:      Filter{Search: "案件", ProgressStatusID: &status},
		Reason:      "bulk_edit",
		Assignments: mustAssign(t, "1.appointment_count=10", "2.remarks=", "1.name=案件A"),
	}

	res, err := NewEditor(fake, locks, testLogger()).Run(context.Background(), "token", req)
	require.NoError(t, err)

	assert.Equal(t, []string{"acquire", "list", "bulk", "release"}, fake.calls)
	assert.True(t, res.Saved)
	assert.Equal(t, []int64{1, 2}, res.UpdatedIDs)

	// Страница загружается с теми же фильтрами, что и ключ блокировки
	assert.Equal(t, "案件", fake.query.Search)
	assert.Equal(t, &status, fake.query.ProgressStatusID)

	require.NotNil(t, fake.bulk.Lock)
	assert.Equal(t, req.Key(), *fake.bulk.Lock)
	require.Len(t, fake.bulk.Items, 2)
	assert.Len(t, fake.bulk.Items[0].Data, 1, "unchanged name is not sent")

	assert.Equal(t, []models.LockKey{req.Key()}, fake.released)
	assert.Empty(t, locks.locks, "released lock is forgotten locally")
}

func TestEditor_Run_NoChangesSkipsBulk(t *testing.T) {
	fake := &fakeAPI{page: testPage()}

	res, err := NewEditor(fake, nil, testLogger()).Run(context.Background(), "token", Request{
		Page: 1, PageSize: 20, Assignments: mustAssign(t, "2.remarks=memo"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"acquire", "list", "release"}, fake.calls)
	assert.False(t, res.Saved)
	assert.Empty(t, res.Items)
}

func TestEditor_Run_DryRun(t *testing.T) {
	fake := &fakeAPI{page: testPage()}

	res, err := NewEditor(fake, nil, testLogger()).Run(context.Background(), "token", Request{
		Page: 1, PageSize: 20, DryRun: true, Assignments: mustAssign(t, "2.remarks=new"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"acquire", "list", "release"}, fake.calls)
	require.Len(t, res.Items, 1)
	assert.False(t, res.Saved)
}

func TestEditor_Run_LockDenied(t *testing.T) {
	denied := &api.APIError{
		StatusCode: http.StatusConflict,
		Message:    "このページは鈴木が編集中です",
		Holder:     &pkgapi.LockHolder{ID: "u-2", Name: "鈴木"},
	}
	fake := &fakeAPI{page: testPage(), acquireErr: denied}
	locks := newMemLocks()

	_, err := NewEditor(fake, locks, testLogger()).Run(context.Background(), "token", Request{Page: 1, PageSize: 20})

	var apiErr *api.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "鈴木", apiErr.Holder.Name)
	assert.Equal(t, []string{"acquire"}, fake.calls, "nothing to release when lock was not granted")
	assert.Empty(t, locks.locks)
}

func TestEditor_Run_ReleasesOnFailure(t *testing.T) {
	tests := []struct {
		name        string
		fake        *fakeAPI
		assignments []string
		wantCalls   []string
		wantErr     string
	}{
		{
			name:      "page load fails",
			fake:      &fakeAPI{listErr: errors.New("connection reset")},
			wantCalls: []string{"acquire", "list", "release"},
			wantErr:   "failed to load page",
		},
		{
			name:        "invalid assignment",
			fake:        &fakeAPI{page: testPage()},
			assignments: []string{"1.appointment_count=abc"},
			wantCalls:   []string{"acquire", "list", "release"},
			wantErr:     "expected integer",
		},
		{
			name:        "project outside the page",
			fake:        &fakeAPI{page: testPage()},
			assignments: []string{"42.remarks=x"},
			wantCalls:   []string{"acquire", "list", "release"},
			wantErr:     "not on the locked page",
		},
		{
			name:        "bulk rejected",
			fake:        &fakeAPI{page: testPage(), bulkErr: &api.APIError{StatusCode: http.StatusNotFound, Message: "projects not found: 2", MissingIDs: []int64{2}}},
			assignments: []string{"2.remarks=x"},
			wantCalls:   []string{"acquire", "list", "bulk", "release"},
			wantErr:     "server error (404)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locks := newMemLocks()
			_, err := NewEditor(tt.fake, locks, testLogger()).Run(context.Background(), "token", Request{
				Page: 1, PageSize: 20, Assignments: mustAssign(t, tt.assignments...),
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, tt.wantCalls, tt.fake.calls)
			assert.Empty(t, locks.locks)
		})
	}
}

func TestEditor_Run_ReleasesAfterCancel(t *testing.T) {
	fake := &fakeAPI{page: testPage()}
	ctx, cancel := context.WithCancel(context.Background())
	fake.listErr = context.Canceled
	cancel()

	_, err := NewEditor(fake, nil, testLogger()).Run(ctx, "token", Request{Page: 1, PageSize: 20})
	require.Error(t, err)
	assert.Equal(t, []string{"acquire", "list", "release"}, fake.calls)
}
