package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Источники снапшотов
const (
	SourceManual   = "manual"
	SourceBulkEdit = "bulk_edit"
	SourceUndo     = "undo"
)

// ReasonPrefixRestore префикс причины для снапшотов, созданных восстановлением
const ReasonPrefixRestore = "restore"

var sourceLabels = map[string]string{
	SourceManual:   "手動編集",
	SourceBulkEdit: "一括編集",
	SourceUndo:     "元に戻す",
}

// SourceLabel возвращает отображаемое название источника снапшота
func SourceLabel(source string) string {
	if label, ok := sourceLabels[source]; ok {
		return label
	}
	return source
}

// Snapshot неизменяемая запись состояния проекта.
// ProjectOverview хранит состояние проекта до записи, которую фиксирует снапшот,
// поэтому восстановление снапшота отменяет эту запись.
type Snapshot struct {
	CreatedAt       time.Time      `json:"created_at"`       // время создания (строго возрастает в пределах проекта)
	ProjectOverview map[string]any `json:"project_overview"` // состояние проекта до изменения
	CreatedBy       string         `json:"created_by"`       // ID пользователя
	CreatedByName   string         `json:"created_by_name"`  // имя пользователя на момент записи
	Reason          string         `json:"reason"`           // "prefix: field1, field2"
	Source          string         `json:"source"`           // manual, bulk_edit, undo
	SourceLabel     string         `json:"source_label"`     // отображаемое название источника
	ChangedFields   []string       `json:"changed_fields"`   // поля, измененные записью
	ID              int64          `json:"id"`
	ProjectID       int64          `json:"project"`
}

// SnapshotFilter задает параметры выборки истории проекта
type SnapshotFilter struct {
	Since    *time.Time // только снапшоты не старше этого момента
	Page     int
	PageSize int
}

// Offset возвращает смещение для SQL запроса
func (f SnapshotFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

// Overview строит денормализованное представление проекта для снапшота:
// все редактируемые поля плюс названия значений справочников.
func Overview(p *Project) map[string]any {
	out := make(map[string]any, len(projectFields)+3)
	for _, f := range projectFields {
		out[f.Name] = f.Get(p)
	}
	out["progress_status"] = p.ProgressStatusName
	out["service_type"] = p.ServiceTypeName
	out["media_type"] = p.MediaTypeName
	return out
}

// OverviewPatch извлекает из сохраненного overview редактируемые поля
// в виде разреженного patch. Отображаемые ключи (progress_status и т.п.) пропускаются.
func OverviewPatch(overview map[string]any) (Patch, error) {
	p := make(Patch, len(overview))
	for k, v := range overview {
		if _, ok := LookupField(k); !ok {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		p[k] = raw
	}
	return p, nil
}

// FormatReason формирует причину вида "prefix: field1, field2"
func FormatReason(prefix string, fields []string) string {
	prefix = strings.TrimSpace(prefix)
	if len(fields) == 0 {
		return prefix
	}
	return prefix + ": " + strings.Join(fields, ", ")
}

// ParseReasonFields извлекает список полей из причины вида "prefix: a, b".
// Используется, когда changed_fields отсутствует.
func ParseReasonFields(reason string) []string {
	_, list, ok := strings.Cut(reason, ":")
	if !ok {
		return nil
	}
	var fields []string
	for _, f := range strings.Split(list, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}
