package repository

import "errors"

var (
	// ErrDuplicateActiveBooking на ключ слота уже есть активное бронирование
	ErrDuplicateActiveBooking = errors.New("active booking already exists for slot")
	// ErrStatusChanged статус бронирования изменился до записи
	ErrStatusChanged = errors.New("booking status changed concurrently")
	// ErrDuplicateUser email или чат Telegram уже заняты другим пользователем
	ErrDuplicateUser = errors.New("user with this email or telegram chat already exists")
)
