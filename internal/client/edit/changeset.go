// Package edit реализует клиентскую сторону редактирования страницы проектов:
// набор несохраненных изменений, сессию под блокировкой страницы и историю.
package edit

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/pkg/api"
)

// ErrNotOnPage проект отсутствует на загруженной странице
var ErrNotOnPage = errors.New("project is not on the locked page")

// ChangeSet несохраненные изменения страницы.
// Хранит только поля, значение которых отличается от загруженного с сервера.
// Живет только в памяти и сбрасывается после сохранения.
type ChangeSet struct {
	original map[int64]*models.Project
	pending  map[int64]models.Changes
}

// NewChangeSet создает пустой набор изменений для загруженной страницы
func NewChangeSet(page []*models.Project) *ChangeSet {
	c := &ChangeSet{
		original: make(map[int64]*models.Project, len(page)),
		pending:  make(map[int64]models.Changes),
	}
	for _, p := range page {
		c.original[p.ID] = p
	}
	return c
}

// Set разбирает строковое значение поля и записывает изменение.
// Пустая строка очищает поле.
func (c *ChangeSet) Set(projectID int64, field, input string) error {
	spec, ok := models.LookupField(field)
	if !ok {
		return &models.FieldError{Field: field, Reason: "unknown or read-only field"}
	}
	v, err := models.ParseInput(spec, input)
	if err != nil {
		return err
	}
	return c.SetValue(projectID, field, v)
}

// SetValue записывает каноническое значение поля.
// Возврат к исходному значению удаляет ключ, последний удаленный ключ удаляет проект.
func (c *ChangeSet) SetValue(projectID int64, field string, value any) error {
	p, ok := c.original[projectID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotOnPage, projectID)
	}
	spec, ok := models.LookupField(field)
	if !ok {
		return &models.FieldError{Field: field, Reason: "unknown or read-only field"}
	}

	if spec.Get(p) == value {
		if changes, ok := c.pending[projectID]; ok {
			delete(changes, field)
			if len(changes) == 0 {
				delete(c.pending, projectID)
			}
		}
		return nil
	}

	changes, ok := c.pending[projectID]
	if !ok {
		changes = make(models.Changes)
		c.pending[projectID] = changes
	}
	changes[field] = value
	return nil
}

// Changes возвращает изменения проекта или nil
func (c *ChangeSet) Changes(projectID int64) models.Changes {
	return c.pending[projectID]
}

// Len возвращает число проектов с изменениями
func (c *ChangeSet) Len() int {
	return len(c.pending)
}

// IDs возвращает ID измененных проектов по возрастанию
func (c *ChangeSet) IDs() []int64 {
	ids := make([]int64, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Items строит элементы пакетного обновления по возрастанию ID
func (c *ChangeSet) Items(reason string) ([]api.BulkUpdateItem, error) {
	items := make([]api.BulkUpdateItem, 0, len(c.pending))
	for _, id := range c.IDs() {
		patch, err := c.pending[id].Patch()
		if err != nil {
			return nil, err
		}
		items = append(items, api.BulkUpdateItem{ProjectID: id, Data: patch, Reason: reason})
	}
	return items, nil
}

// Clear сбрасывает все изменения
func (c *ChangeSet) Clear() {
	clear(c.pending)
}

// Assignment одно изменение из командной строки вида ID.field=value
type Assignment struct {
	Field     string
	Value     string
	ProjectID int64
}

// ParseAssignment разбирает строку вида "12.remarks=текст".
// Значение после "=" берется как есть, пустое значение очищает поле.
func ParseAssignment(s string) (Assignment, error) {
	target, value, ok := strings.Cut(s, "=")
	if !ok {
		return Assignment{}, fmt.Errorf("invalid assignment %q: expected ID.field=value", s)
	}
	idStr, field, ok := strings.Cut(strings.TrimSpace(target), ".")
	if !ok || field == "" {
		return Assignment{}, fmt.Errorf("invalid assignment %q: expected ID.field=value", s)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return Assignment{}, fmt.Errorf("invalid assignment %q: project id must be a positive integer", s)
	}
	return Assignment{ProjectID: id, Field: field, Value: value}, nil
}
