package model

import "time"

type BookingStatus string

const (
	BookingStatusPending       BookingStatus = "PENDING"        // Ожидает решения супервизора
	BookingStatusConfirmed     BookingStatus = "CONFIRMED"      // Подтверждено
	BookingStatusRejected      BookingStatus = "REJECTED"       // Отклонено супервизором
	BookingStatusAutoCancelled BookingStatus = "AUTO_CANCELLED" // Отменено по истечении срока
)

// IsActive активное бронирование занимает слот
func (s BookingStatus) IsActive() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// IsTerminal из терминального статуса переходов нет
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusConfirmed || s == BookingStatusRejected || s == BookingStatusAutoCancelled
}

// Valid проверяет что статус известен
func (s BookingStatus) Valid() bool {
	return s == BookingStatusPending || s.IsTerminal()
}

// Requester контактные данные заявителя (без аккаунта)
type Requester struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type Booking struct {
	ID           int64         `json:"id"`
	SupervisorID int64         `json:"supervisor_id"`
	ChallengeID  int64         `json:"challenge_id"`
	Requester    Requester     `json:"requester"`
	Date         time.Time     `json:"date"`
	TimeOfDay    string        `json:"time"`
	Status       BookingStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
	ReminderSent bool          `json:"reminder_sent"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// SlotKey ключ слота, который занимает бронирование
func (b *Booking) SlotKey() SlotKey {
	return SlotKey{SupervisorID: b.SupervisorID, Date: b.Date, TimeOfDay: b.TimeOfDay}
}

// Clone копия для передачи в асинхронные уведомления
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}
