package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// FieldKind определяет тип редактируемого поля проекта
type FieldKind int

const (
	// KindText строковое поле, очистка дает ""
	KindText FieldKind = iota
	// KindCount неотрицательный счетчик, очистка дает 0
	KindCount
	// KindRef ссылка на справочник, очистка дает NULL
	KindRef
	// KindDate дата в формате YYYY-MM-DD, очистка дает NULL
	KindDate
	// KindFlag булев флаг, очистка дает false
	KindFlag
)

// DateLayout формат дат проекта
const DateLayout = "2006-01-02"

const maxTextLen = 5000

// MaxCount наибольшее значение счетчика, которое JSON число передает без потери точности
const MaxCount = 1<<53 - 1

// String returns the kind name used in validation messages
func (k FieldKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindCount:
		return "count"
	case KindRef:
		return "reference"
	case KindDate:
		return "date"
	case KindFlag:
		return "flag"
	default:
		return "unknown"
	}
}

// FieldSpec описывает одно редактируемое поле проекта.
// Имя поля совпадает с JSON ключом и с колонкой таблицы projects.
type FieldSpec struct {
	get      func(*Project) any
	set      func(*Project, any)
	Name     string
	RefTable string // таблица справочника для KindRef
	Kind     FieldKind
	Required bool // поле нельзя очистить
}

// Get возвращает каноническое значение поля:
// string, int64, bool или nil для пустых ссылок и дат.
func (f FieldSpec) Get(p *Project) any {
	return f.get(p)
}

// Set записывает каноническое значение в проект
func (f FieldSpec) Set(p *Project, v any) {
	f.set(p, v)
}

var projectFields = []FieldSpec{
	textField("name", true, func(p *Project) *string { return &p.Name }),
	textField("client_name", false, func(p *Project) *string { return &p.ClientName }),
	textField("client_company", false, func(p *Project) *string { return &p.ClientCompany }),
	refField("progress_status_id", "progress_statuses", func(p *Project) **int64 { return &p.ProgressStatusID }),
	refField("service_type_id", "service_types", func(p *Project) **int64 { return &p.ServiceTypeID }),
	refField("media_type_id", "media_types", func(p *Project) **int64 { return &p.MediaTypeID }),
	refField("regular_meeting_status_id", "regular_meeting_statuses", func(p *Project) **int64 { return &p.RegularMeetingStatusID }),
	refField("list_import_source_id", "list_import_sources", func(p *Project) **int64 { return &p.ListImportSourceID }),
	refField("list_availability_id", "list_availabilities", func(p *Project) **int64 { return &p.ListAvailabilityID }),
	textField("situation", false, func(p *Project) *string { return &p.Situation }),
	textField("sales_person", false, func(p *Project) *string { return &p.SalesPerson }),
	textField("director", false, func(p *Project) *string { return &p.Director }),
	textField("operator", false, func(p *Project) *string { return &p.Operator }),
	countField("appointment_count", func(p *Project) *int64 { return &p.AppointmentCount }),
	countField("approval_count", func(p *Project) *int64 { return &p.ApprovalCount }),
	countField("reply_count", func(p *Project) *int64 { return &p.ReplyCount }),
	countField("friends_count", func(p *Project) *int64 { return &p.FriendsCount }),
	countField("company_count", func(p *Project) *int64 { return &p.CompanyCount }),
	dateField("regular_meeting_date", func(p *Project) **string { return &p.RegularMeetingDate }),
	dateField("operation_start_date", func(p *Project) **string { return &p.OperationStartDate }),
	dateField("expected_end_date", func(p *Project) **string { return &p.ExpectedEndDate }),
	dateField("entry_date_sales", func(p *Project) **string { return &p.EntryDateSales }),
	textField("reply_check_notes", false, func(p *Project) *string { return &p.ReplyCheckNotes }),
	textField("remarks", false, func(p *Project) *string { return &p.Remarks }),
	textField("progress_tasks", false, func(p *Project) *string { return &p.ProgressTasks }),
	textField("daily_tasks", false, func(p *Project) *string { return &p.DailyTasks }),
	textField("complaints_requests", false, func(p *Project) *string { return &p.ComplaintsRequests }),
	flagField("operator_group_invited", func(p *Project) *bool { return &p.OperatorGroupInvited }),
	flagField("director_login_available", func(p *Project) *bool { return &p.DirectorLoginAvailable }),
}

var fieldIndex = func() map[string]int {
	idx := make(map[string]int, len(projectFields))
	for i, f := range projectFields {
		idx[f.Name] = i
	}
	return idx
}()

// ProjectFields возвращает реестр редактируемых полей в каноническом порядке
func ProjectFields() []FieldSpec {
	out := make([]FieldSpec, len(projectFields))
	copy(out, projectFields)
	return out
}

// LookupField ищет поле по имени
func LookupField(name string) (FieldSpec, bool) {
	i, ok := fieldIndex[name]
	if !ok {
		return FieldSpec{}, false
	}
	return projectFields[i], true
}

func textField(name string, required bool, ptr func(*Project) *string) FieldSpec {
	return FieldSpec{
		Name:     name,
		Kind:     KindText,
		Required: required,
		get:      func(p *Project) any { return *ptr(p) },
		set:      func(p *Project, v any) { *ptr(p) = v.(string) },
	}
}

func countField(name string, ptr func(*Project) *int64) FieldSpec {
	return FieldSpec{
		Name: name,
		Kind: KindCount,
		get:  func(p *Project) any { return *ptr(p) },
		set:  func(p *Project, v any) { *ptr(p) = v.(int64) },
	}
}

func refField(name, table string, ptr func(*Project) **int64) FieldSpec {
	return FieldSpec{
		Name:     name,
		Kind:     KindRef,
		RefTable: table,
		get: func(p *Project) any {
			if v := *ptr(p); v != nil {
				return *v
			}
			return nil
		},
		set: func(p *Project, v any) {
			if v == nil {
				*ptr(p) = nil
				return
			}
			id := v.(int64)
			*ptr(p) = &id
		},
	}
}

func dateField(name string, ptr func(*Project) **string) FieldSpec {
	return FieldSpec{
		Name: name,
		Kind: KindDate,
		get: func(p *Project) any {
			if v := *ptr(p); v != nil {
				return *v
			}
			return nil
		},
		set: func(p *Project, v any) {
			if v == nil {
				*ptr(p) = nil
				return
			}
			d := v.(string)
			*ptr(p) = &d
		},
	}
}

func flagField(name string, ptr func(*Project) *bool) FieldSpec {
	return FieldSpec{
		Name: name,
		Kind: KindFlag,
		get:  func(p *Project) any { return *ptr(p) },
		set:  func(p *Project, v any) { *ptr(p) = v.(bool) },
	}
}

// FieldError описывает ошибку валидации конкретного поля
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// Patch разреженное обновление проекта.
// Присутствующий ключ означает "установить значение", отсутствующий "не трогать",
// явный null или "" означает "очистить поле".
type Patch map[string]json.RawMessage

// Changes нормализованные значения полей (ключ поле, значение каноническое)
type Changes map[string]any

// Normalize проверяет patch по реестру полей и приводит значения к каноническому виду.
// Ключи обрабатываются в каноническом порядке, поэтому первая ошибка детерминирована.
func (p Patch) Normalize() (Changes, error) {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sortByRegistry(keys)

	changes := make(Changes, len(p))
	for _, k := range keys {
		spec, ok := LookupField(k)
		if !ok {
			return nil, &FieldError{Field: k, Reason: "unknown or read-only field"}
		}
		v, err := ParseJSONValue(spec, p[k])
		if err != nil {
			return nil, err
		}
		changes[k] = v
	}
	return changes, nil
}

// ParseJSONValue приводит JSON значение к каноническому значению поля
func ParseJSONValue(spec FieldSpec, raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return clearValue(spec)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &FieldError{Field: spec.Name, Reason: "malformed JSON value"}
	}

	switch val := v.(type) {
	case string:
		return ParseInput(spec, val)
	case json.Number:
		if spec.Kind == KindText {
			return nil, &FieldError{Field: spec.Name, Reason: "expected string"}
		}
		return ParseInput(spec, val.String())
	case bool:
		if spec.Kind != KindFlag {
			return nil, &FieldError{Field: spec.Name, Reason: fmt.Sprintf("expected %s", spec.Kind)}
		}
		return val, nil
	default:
		return nil, &FieldError{Field: spec.Name, Reason: fmt.Sprintf("expected %s", spec.Kind)}
	}
}

// ParseInput приводит строковое значение (из формы или командной строки) к каноническому виду
func ParseInput(spec FieldSpec, s string) (any, error) {
	if spec.Kind != KindText {
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return clearValue(spec)
	}

	switch spec.Kind {
	case KindText:
		if utf8.RuneCountInString(s) > maxTextLen {
			return nil, &FieldError{Field: spec.Name, Reason: fmt.Sprintf("must not exceed %d characters", maxTextLen)}
		}
		if spec.Required && strings.TrimSpace(s) == "" {
			return nil, &FieldError{Field: spec.Name, Reason: "cannot be empty"}
		}
		return s, nil
	case KindCount:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			// 10.0 из JSON чисел тоже допустимо
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil || f != math.Trunc(f) {
				return nil, &FieldError{Field: spec.Name, Reason: "expected integer"}
			}
			if math.Abs(f) > MaxCount {
				return nil, &FieldError{Field: spec.Name, Reason: fmt.Sprintf("must not exceed %d", int64(MaxCount))}
			}
			n = int64(f)
		}
		if n < 0 {
			return nil, &FieldError{Field: spec.Name, Reason: "must not be negative"}
		}
		if n > MaxCount {
			return nil, &FieldError{Field: spec.Name, Reason: fmt.Sprintf("must not exceed %d", int64(MaxCount))}
		}
		return n, nil
	case KindRef:
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return nil, &FieldError{Field: spec.Name, Reason: "expected positive id"}
		}
		return id, nil
	case KindDate:
		d, err := parseDate(s)
		if err != nil {
			return nil, &FieldError{Field: spec.Name, Reason: "expected date YYYY-MM-DD"}
		}
		return d, nil
	case KindFlag:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, &FieldError{Field: spec.Name, Reason: "expected true or false"}
		}
		return b, nil
	default:
		return nil, &FieldError{Field: spec.Name, Reason: "unsupported field kind"}
	}
}

func clearValue(spec FieldSpec) (any, error) {
	switch spec.Kind {
	case KindText:
		if spec.Required {
			return nil, &FieldError{Field: spec.Name, Reason: "cannot be empty"}
		}
		return "", nil
	case KindCount:
		return int64(0), nil
	case KindFlag:
		return false, nil
	default:
		return nil, nil
	}
}

func parseDate(s string) (string, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.Format(DateLayout), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return "", err
	}
	return t.Format(DateLayout), nil
}

// Diff возвращает только те изменения, значения которых отличаются от текущих в проекте
func (c Changes) Diff(p *Project) Changes {
	out := make(Changes)
	for name, v := range c {
		spec, ok := LookupField(name)
		if !ok {
			continue
		}
		if spec.Get(p) != v {
			out[name] = v
		}
	}
	return out
}

// Apply записывает изменения в проект
func (c Changes) Apply(p *Project) {
	for name, v := range c {
		if spec, ok := LookupField(name); ok {
			spec.Set(p, v)
		}
	}
}

// Names возвращает имена полей в каноническом порядке реестра
func (c Changes) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sortByRegistry(names)
	return names
}

// Patch сериализует изменения обратно в разреженный patch
func (c Changes) Patch() (Patch, error) {
	p := make(Patch, len(c))
	for name, v := range c {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field %s: %w", name, err)
		}
		p[name] = raw
	}
	return p, nil
}

// sortByRegistry сортирует имена полей в порядке реестра, неизвестные в конце по алфавиту
func sortByRegistry(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		ii, iok := fieldIndex[names[i]]
		jj, jok := fieldIndex[names[j]]
		switch {
		case iok && jok:
			return ii < jj
		case iok:
			return true
		case jok:
			return false
		default:
			return names[i] < names[j]
		}
	})
}
