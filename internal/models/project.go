package models

import "time"

// Project представляет проект продаж (кампанию) в CRM.
// Редактируемые поля описаны в реестре полей (см. fields.go),
// *_name поля вычисляются из справочников и доступны только для чтения.
type Project struct {
	CreatedAt time.Time `json:"created_at"` // время создания
	UpdatedAt time.Time `json:"updated_at"` // время последнего изменения

	ProgressStatusID       *int64  `json:"progress_status_id"`        // справочник progress_statuses
	ServiceTypeID          *int64  `json:"service_type_id"`           // справочник service_types
	MediaTypeID            *int64  `json:"media_type_id"`             // справочник media_types
	RegularMeetingStatusID *int64  `json:"regular_meeting_status_id"` // справочник regular_meeting_statuses
	ListImportSourceID     *int64  `json:"list_import_source_id"`     // справочник list_import_sources
	ListAvailabilityID     *int64  `json:"list_availability_id"`      // справочник list_availabilities
	RegularMeetingDate     *string `json:"regular_meeting_date"`      // YYYY-MM-DD
	OperationStartDate     *string `json:"operation_start_date"`      // YYYY-MM-DD
	ExpectedEndDate        *string `json:"expected_end_date"`         // YYYY-MM-DD
	EntryDateSales         *string `json:"entry_date_sales"`          // YYYY-MM-DD

	Name               string `json:"name"`
	ClientName         string `json:"client_name"`
	ClientCompany      string `json:"client_company"`
	Situation          string `json:"situation"`
	SalesPerson        string `json:"sales_person"`
	Director           string `json:"director"`
	Operator           string `json:"operator"`
	ReplyCheckNotes    string `json:"reply_check_notes"`
	Remarks            string `json:"remarks"`
	ProgressTasks      string `json:"progress_tasks"`
	DailyTasks         string `json:"daily_tasks"`
	ComplaintsRequests string `json:"complaints_requests"`

	ProgressStatusName string `json:"progress_status_name"` // только чтение
	ServiceTypeName    string `json:"service_type_name"`    // только чтение
	MediaTypeName      string `json:"media_type_name"`      // только чтение

	ID               int64 `json:"id"`
	AppointmentCount int64 `json:"appointment_count"`
	ApprovalCount    int64 `json:"approval_count"`
	ReplyCount       int64 `json:"reply_count"`
	FriendsCount     int64 `json:"friends_count"`
	CompanyCount     int64 `json:"company_count"`

	OperatorGroupInvited   bool `json:"operator_group_invited"`
	DirectorLoginAvailable bool `json:"director_login_available"`
}

// ProjectFilter задает параметры выборки списка проектов
type ProjectFilter struct {
	ProgressStatusID *int64 // фильтр по статусу прогресса
	Search           string // подстрока в name или client_name
	Page             int    // номер страницы, начиная с 1
	PageSize         int    // размер страницы
}

// Offset возвращает смещение для SQL запроса
func (f ProjectFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}
