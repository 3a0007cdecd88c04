package model

import (
	"fmt"
	"time"
)

// DateLayout формат даты слота (как в календаре супервизора)
const DateLayout = "2006-01-02"

// ScheduleSlot единица доступности супервизора.
// Ключ (SupervisorID, Date, TimeOfDay) уникален; ID нужен только для удаления.
type ScheduleSlot struct {
	ID           int64     `json:"id"`
	SupervisorID int64     `json:"supervisor_id"`
	Date         time.Time `json:"date"`
	TimeOfDay    string    `json:"time"` // "HH:MM"
	Available    bool      `json:"available"`
}

// Key возвращает позиционный ключ слота
func (s *ScheduleSlot) Key() SlotKey {
	return SlotKey{SupervisorID: s.SupervisorID, Date: s.Date, TimeOfDay: s.TimeOfDay}
}

// SlotKey позиционный ключ, по которому бронирование связано со слотом.
// Это не внешний ключ: слот и бронирование сопоставляются по значению.
type SlotKey struct {
	SupervisorID int64
	Date         time.Time
	TimeOfDay    string
}

// NewSlotKey нормализует дату до полуночи UTC и проверяет время
func NewSlotKey(supervisorID int64, date time.Time, timeOfDay string) (SlotKey, error) {
	if supervisorID <= 0 {
		return SlotKey{}, fmt.Errorf("invalid supervisor id %d", supervisorID)
	}
	if date.IsZero() {
		return SlotKey{}, fmt.Errorf("date is required")
	}
	if _, _, err := ParseTimeOfDay(timeOfDay); err != nil {
		return SlotKey{}, err
	}
	return SlotKey{
		SupervisorID: supervisorID,
		Date:         TruncateDate(date),
		TimeOfDay:    timeOfDay,
	}, nil
}

// String используется в логах и как ключ в памяти
func (k SlotKey) String() string {
	return fmt.Sprintf("%d/%s/%s", k.SupervisorID, k.Date.Format(DateLayout), k.TimeOfDay)
}

// StartsAt абсолютное время начала слота в заданной зоне
func (k SlotKey) StartsAt(loc *time.Location) (time.Time, error) {
	return StartInstant(k.Date, k.TimeOfDay, loc)
}

// ParseTimeOfDay разбирает строку "HH:MM"
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil || len(s) != 5 {
		return 0, 0, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// StartInstant собирает момент начала из даты и времени суток
func StartInstant(date time.Time, timeOfDay string, loc *time.Location) (time.Time, error) {
	hour, minute, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc), nil
}

// TruncateDate отбрасывает время, оставляя календарную дату в UTC
func TruncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
