package edit

import (
	"context"
	"time"

	"github.com/iudanet/salesnav/internal/client/api"
	"github.com/iudanet/salesnav/internal/models"
	pkgapi "github.com/iudanet/salesnav/pkg/api"
)

// HistoryWindow окно истории по умолчанию
const HistoryWindow = 7 * 24 * time.Hour

// HistoryAPI defines server calls used by history queries
type HistoryAPI interface {
	ListSnapshots(ctx context.Context, accessToken string, projectID int64, q api.SnapshotQuery) (*pkgapi.Page[*models.Snapshot], error)
}

// History результат запроса истории
type History struct {
	Snapshots []*models.Snapshot
	Total     int
	Windowed  bool // false, если окно пусто и показаны последние снапшоты
}

// LoadHistory возвращает снапшоты за последние HistoryWindow.
// Если за окно ничего нет, возвращает последние fallback снапшотов.
// changed_fields восстанавливается из причины, если сервер его не прислал.
func LoadHistory(ctx context.Context, client HistoryAPI, token string, projectID int64, now time.Time, fallback int) (*History, error) {
	since := now.Add(-HistoryWindow)
	page, err := client.ListSnapshots(ctx, token, projectID, api.SnapshotQuery{Since: &since, Page: 1})
	if err != nil {
		return nil, err
	}

	h := &History{Snapshots: page.Results, Total: page.Count, Windowed: true}
	if len(page.Results) == 0 {
		page, err = client.ListSnapshots(ctx, token, projectID, api.SnapshotQuery{Page: 1, PageSize: fallback})
		if err != nil {
			return nil, err
		}
		h = &History{Snapshots: page.Results, Total: page.Count}
	}

	for _, s := range h.Snapshots {
		if len(s.ChangedFields) == 0 {
			s.ChangedFields = models.ParseReasonFields(s.Reason)
		}
		if s.SourceLabel == "" {
			s.SourceLabel = models.SourceLabel(s.Source)
		}
	}
	return h, nil
}

// Latest возвращает самый новый снапшот проекта или nil
func Latest(ctx context.Context, client HistoryAPI, token string, projectID int64) (*models.Snapshot, error) {
	page, err := client.ListSnapshots(ctx, token, projectID, api.SnapshotQuery{Page: 1, PageSize: 1})
	if err != nil {
		return nil, err
	}
	if len(page.Results) == 0 {
		return nil, nil
	}
	return page.Results[0], nil
}
