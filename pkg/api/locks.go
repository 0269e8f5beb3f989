package api

import (
	"time"

	"github.com/iudanet/salesnav/internal/models"
)

// LockHolder владелец блокировки, показываемый при отказе
type LockHolder struct {
	ExpiresAt time.Time `json:"expires_at"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
}

// LockResponse ответ на попытку захвата блокировки.
// При отказе Granted=false, Message содержит причину, Holder текущего владельца.
type LockResponse struct {
	Lock    *models.PageLock `json:"lock,omitempty"`
	Holder  *LockHolder      `json:"holder,omitempty"`
	Error   string           `json:"error,omitempty"`
	Message string           `json:"message,omitempty"`
	Granted bool             `json:"granted"`
}

// LockStatusResponse состояние блокировки ключа
type LockStatusResponse struct {
	Lock     *models.PageLock `json:"lock,omitempty"`
	Locked   bool             `json:"locked"`
	HeldByMe bool             `json:"held_by_me"`
}

// UnlockResponse ответ на освобождение блокировки
type UnlockResponse struct {
	Released bool `json:"released"`
}
