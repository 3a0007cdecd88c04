package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/evalcalendar/internal/model"
	"github.com/Freeeeeet/evalcalendar/internal/repository"
)

// Transactor выполняет функцию в одной транзакции хранилища
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SlotStore хранилище слотов доступности
type SlotStore interface {
	Insert(ctx context.Context, key model.SlotKey) (bool, error)
	GetForUpdate(ctx context.Context, key model.SlotKey) (*model.ScheduleSlot, error)
	GetByIDForUpdate(ctx context.Context, supervisorID, id int64) (*model.ScheduleSlot, error)
	SetAvailable(ctx context.Context, key model.SlotKey, available bool) error
	Delete(ctx context.Context, id int64) error
	ListRange(ctx context.Context, supervisorID int64, from, to time.Time, onlyAvailable bool) ([]*model.ScheduleSlot, error)
}

// BookingStore хранилище бронирований
type BookingStore interface {
	Create(ctx context.Context, booking *model.Booking) error
	HasActive(ctx context.Context, key model.SlotKey) (bool, error)
	GetByID(ctx context.Context, id int64) (*model.Booking, error)
	GetForUpdate(ctx context.Context, id int64) (*model.Booking, error)
	UpdateStatus(ctx context.Context, id int64, status model.BookingStatus, now time.Time) error
	MarkReminderSent(ctx context.Context, id int64, now time.Time) (bool, error)
	ListExpiredPending(ctx context.Context, now time.Time) ([]*model.Booking, error)
	ListReminderCandidates(ctx context.Context, from, to time.Time) ([]*model.Booking, error)
	ListBySupervisor(ctx context.Context, supervisorID int64, filter repository.BookingFilter) ([]*model.Booking, error)
	CountActiveBySupervisor(ctx context.Context, supervisorID int64) (int, error)
}

// UserStore справочник супервизоров
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetForUpdate(ctx context.Context, id int64) (*model.User, error)
	GetForShare(ctx context.Context, id int64) (*model.User, error)
	GetByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// ChallengeStore справочник challenges
type ChallengeStore interface {
	Create(ctx context.Context, c *model.Challenge) error
	GetByID(ctx context.Context, id int64) (*model.Challenge, error)
}

// Clock источник текущего времени (в тестах - виртуальный)
type Clock func() time.Time

// SystemClock реальное время в UTC
func SystemClock() time.Time {
	return time.Now().UTC()
}
