package api

import "github.com/iudanet/salesnav/internal/models"

// Page постраничный ответ списка.
// Next и Previous содержат URL соседних страниц или null.
type Page[T any] struct {
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
	Count    int     `json:"count"`
}

// BulkUpdateItem изменение одного проекта.
// Data содержит только изменяемые поля, null или "" очищают поле.
type BulkUpdateItem struct {
	Data      models.Patch `json:"data"`
	Reason    string       `json:"reason,omitempty"`
	ProjectID int64        `json:"project_id"`
}

// BulkUpdateRequest запрос пакетного частичного обновления
type BulkUpdateRequest struct {
	Lock  *models.LockKey  `json:"lock,omitempty"` // блокировка страницы, которой владеет клиент
	Items []BulkUpdateItem `json:"items"`
}

// BulkUpdateResponse ответ пакетного обновления (успех и ошибка)
type BulkUpdateResponse struct {
	UpdatedIDs   []int64 `json:"updated_ids"`
	MissingIDs   []int64 `json:"missing_ids,omitempty"`
	Error        string  `json:"error,omitempty"`
	Message      string  `json:"message,omitempty"`
	UpdatedCount int     `json:"updated_count"`
	Success      bool    `json:"success"`
}

// RestoreResponse ответ восстановления из снапшота
type RestoreResponse struct {
	Project  *models.Project  `json:"project"`
	Snapshot *models.Snapshot `json:"snapshot"` // созданный снапшот undo
	Success  bool             `json:"success"`
}

// MasterResponse элементы справочника
type MasterResponse struct {
	Kind  string              `json:"kind"`
	Items []models.MasterItem `json:"items"`
}
