package model

import "time"

type UserRole string

const (
	UserRoleAdmin      UserRole = "ADMIN"
	UserRoleSupervisor UserRole = "SUPERVISOR"
)

// User супервизор или администратор. Учётные данные хранятся вне этого сервиса.
type User struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           UserRole  `json:"role"`
	IsActive       bool      `json:"is_active"`        // soft delete
	TelegramChatID *int64    `json:"telegram_chat_id"` // nil - уведомления в Telegram не настроены
	CreatedAt      time.Time `json:"created_at"`
}

// CanSupervise может ли пользователь принимать заявки
func (u *User) CanSupervise() bool {
	return u != nil && u.Role == UserRoleSupervisor && u.IsActive
}
