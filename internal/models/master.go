package models

// MasterItem элемент справочника
type MasterItem struct {
	Name      string `json:"name"`
	ID        int64  `json:"id"`
	SortOrder int    `json:"sort_order"`
}

// MasterKinds сопоставляет имя справочника в API с таблицей БД
var MasterKinds = map[string]string{
	"progress-statuses":        "progress_statuses",
	"service-types":            "service_types",
	"media-types":              "media_types",
	"regular-meeting-statuses": "regular_meeting_statuses",
	"list-import-sources":      "list_import_sources",
	"list-availabilities":      "list_availabilities",
}
