package handlers

import (
	"context"

	"github.com/iudanet/salesnav/internal/server/projects"
)

// contextKey тип для ключей контекста
type contextKey string

const (
	// UserIDKey ключ для хранения user_id в контексте
	UserIDKey contextKey = "user_id"
	// UserNameKey ключ для хранения отображаемого имени в контексте
	UserNameKey contextKey = "user_name"
	// UserRoleKey ключ для хранения роли в контексте
	UserRoleKey contextKey = "user_role"
)

// WithUser добавляет данные пользователя в контекст
func WithUser(ctx context.Context, userID, name, role string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, UserNameKey, name)
	return context.WithValue(ctx, UserRoleKey, role)
}

// GetUserID извлекает user_id из контекста запроса
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

// GetUserName извлекает имя пользователя из контекста запроса
func GetUserName(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(UserNameKey).(string)
	return name, ok
}

// GetUserRole извлекает роль пользователя из контекста запроса
func GetUserRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(UserRoleKey).(string)
	return role, ok
}

// actorFromContext возвращает автора изменений из контекста
func actorFromContext(ctx context.Context) (projects.Actor, bool) {
	id, ok := GetUserID(ctx)
	if !ok {
		return projects.Actor{}, false
	}
	name, _ := GetUserName(ctx)
	return projects.Actor{ID: id, Name: name}, true
}
