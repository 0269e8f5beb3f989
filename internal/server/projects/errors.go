package projects

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidRequest отмечает ошибки входных данных, обнаруженные до любой записи
var ErrInvalidRequest = errors.New("invalid request")

// MissingError сообщает о несуществующих проектах в пакете обновления.
// IDs отсортированы по возрастанию.
type MissingError struct {
	IDs []int64
}

func (e *MissingError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("projects not found: %s", strings.Join(ids, ", "))
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
