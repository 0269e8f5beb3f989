package api

import "time"

// LoginRequest представляет запрос на аутентификацию
type LoginRequest struct {
	Email    string `json:"email"`    // email пользователя
	Password string `json:"password"` // пароль в открытом виде (только по TLS)
}

// TokenResponse представляет ответ с токенами доступа
type TokenResponse struct {
	User         *UserResponse `json:"user,omitempty"` // текущий пользователь
	AccessToken  string        `json:"access_token"`   // JWT access token
	RefreshToken string        `json:"refresh_token"`  // refresh token
	ExpiresIn    int64         `json:"expires_in"`     // время жизни access token в секундах
}

// UserResponse представляет пользователя без секретов
type UserResponse struct {
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
}

// CreateUserRequest представляет запрос администратора на создание пользователя
type CreateUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"` // admin или user, по умолчанию user
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}

// HealthResponse ответ health check
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Database string `json:"database,omitempty"`
}
