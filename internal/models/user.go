package models

import "time"

// Роли пользователей
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User представляет пользователя CRM
type User struct {
	CreatedAt    time.Time  `json:"created_at"` // время создания
	LastLogin    *time.Time `json:"last_login"` // время последнего входа
	ID           string     `json:"id"`         // UUID пользователя
	Email        string     `json:"email"`      // уникальный email (логин)
	Name         string     `json:"name"`       // отображаемое имя
	Role         string     `json:"role"`       // admin или user
	PasswordHash string     `json:"-"`          // bcrypt хеш пароля
}

// IsAdmin проверяет, является ли пользователь администратором
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// RefreshToken представляет refresh token пользователя
type RefreshToken struct {
	ExpiresAt time.Time `json:"expires_at"` // время истечения
	CreatedAt time.Time `json:"created_at"` // время создания
	TokenHash string    `json:"token_hash"` // SHA256 хеш токена
	UserID    string    `json:"user_id"`    // ID пользователя
}
