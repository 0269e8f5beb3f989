package edit

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"

	"github.com/iudanet/salesnav/internal/models"
)

// Filter фильтры списка проектов, определяющие содержимое страницы
type Filter struct {
	ProgressStatusID *int64
	Search           string
}

// Hash возвращает filter_hash ключа блокировки.
// Без фильтров используется models.DefaultFilterHash, иначе
// короткий SHA256 канонической query string, одинаковый на всех клиентах.
func (f Filter) Hash() string {
	v := url.Values{}
	if s := strings.TrimSpace(f.Search); s != "" {
		v.Set("search", s)
	}
	if f.ProgressStatusID != nil {
		v.Set("progress_status_id", strconv.FormatInt(*f.ProgressStatusID, 10))
	}
	if len(v) == 0 {
		return models.DefaultFilterHash
	}
	sum := sha256.Sum256([]byte(v.Encode()))
	return hex.EncodeToString(sum[:8])
}
