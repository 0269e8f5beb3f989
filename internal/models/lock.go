package models

import (
	"fmt"
	"time"
)

// DefaultFilterHash используется, когда клиент не передал filter_hash
const DefaultFilterHash = "default"

// LockKey составной ключ блокировки страницы списка проектов
type LockKey struct {
	FilterHash string `json:"filter_hash"` // хеш набора фильтров на странице
	Page       int    `json:"page"`        // номер страницы
	PageSize   int    `json:"page_size"`   // размер страницы
}

// String возвращает ключ в виде, пригодном для логов и локального хранения
func (k LockKey) String() string {
	return fmt.Sprintf("%d:%d:%s", k.Page, k.PageSize, k.FilterHash)
}

// PageLock эксклюзивная блокировка страницы одним пользователем
type PageLock struct {
	AcquiredAt time.Time `json:"acquired_at"` // время первого захвата
	ExpiresAt  time.Time `json:"expires_at"`  // время истечения TTL
	HolderID   string    `json:"holder_id"`   // ID пользователя-владельца
	HolderName string    `json:"holder_name"` // имя владельца для сообщений
	Key        LockKey   `json:"key"`
}

// Expired проверяет, истек ли TTL блокировки на момент now
func (l *PageLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
