package notify

import (
	"context"
	"time"

	"github.com/Freeeeeet/evalcalendar/internal/model"
	"github.com/google/uuid"
)

type EventKind string

const (
	EventRequestReceived         EventKind = "request_received"
	EventNewRequestForSupervisor EventKind = "new_request_for_supervisor"
	EventConfirmed               EventKind = "confirmed"
	EventRejected                EventKind = "rejected"
	EventAutoCancelled           EventKind = "auto_cancelled"
	EventReminder                EventKind = "reminder"
)

// ToSupervisor адресовано ли событие супервизору (иначе заявителю).
// Напоминание получают обе стороны.
func (k EventKind) ToSupervisor() bool {
	return k == EventNewRequestForSupervisor || k == EventReminder
}

// ToRequester адресовано ли событие заявителю
func (k EventKind) ToRequester() bool {
	return k != EventNewRequestForSupervisor
}

// Event событие жизненного цикла бронирования после коммита
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Kind       EventKind      `json:"kind"`
	Booking    *model.Booking `json:"booking"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewEvent создаёт событие с уникальным ID
func NewEvent(kind EventKind, booking *model.Booking, now time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       kind,
		Booking:    booking.Clone(),
		OccurredAt: now,
	}
}

// Notifier доставляет событие по одному каналу (email, Telegram, брокер)
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Emitter принимает события без ожидания доставки
type Emitter interface {
	Emit(event Event)
}

// NotifierFunc адаптер функции к Notifier
type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}
