package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/evalcalendar/internal/model"
	"go.uber.org/zap"
)

// SlotInput слот из формы календаря
type SlotInput struct {
	Date      time.Time
	TimeOfDay string
}

// DayAvailability доступные времена одного дня
type DayAvailability struct {
	Date  string   `json:"date"`
	Times []string `json:"times"`
}

// AvailabilityService операции над слотами доступности супервизора
type AvailabilityService struct {
	stores Stores
	logger *zap.Logger
}

func NewAvailabilityService(stores Stores, logger *zap.Logger) *AvailabilityService {
	return &AvailabilityService{
		stores: stores,
		logger: logger,
	}
}

// Declare объявляет слот доступным. Возвращает true, если после вызова слот доступен.
// Занятый активным бронированием слот не реактивируется.
func (s *AvailabilityService) Declare(ctx context.Context, key model.SlotKey) (bool, error) {
	var saved bool

	err := s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		created, err := s.stores.Slots.Insert(ctx, key)
		if err != nil {
			return err
		}
		if created {
			saved = true
			return nil
		}

		slot, err := s.stores.Slots.GetForUpdate(ctx, key)
		if err != nil {
			return err
		}
		if slot == nil {
			return fmt.Errorf("slot %s vanished during declare", key)
		}
		if slot.Available {
			saved = true
			return nil
		}

		active, err := s.stores.Bookings.HasActive(ctx, key)
		if err != nil {
			return err
		}
		if active {
			return nil
		}

		if err := s.stores.Slots.SetAvailable(ctx, key, true); err != nil {
			return err
		}
		saved = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("declare slot %s: %w", key, err)
	}

	return saved, nil
}

// BulkDeclare сохраняет набор слотов из календаря.
// Некорректные записи и дубликаты пропускаются; возвращает число доступных слотов.
func (s *AvailabilityService) BulkDeclare(ctx context.Context, supervisorID int64, inputs []SlotInput) (int, error) {
	seen := make(map[string]struct{}, len(inputs))
	keys := make([]model.SlotKey, 0, len(inputs))

	for _, in := range inputs {
		key, err := model.NewSlotKey(supervisorID, in.Date, in.TimeOfDay)
		if err != nil {
			s.logger.Debug("Skipping invalid slot",
				zap.Int64("supervisor_id", supervisorID),
				zap.String("time", in.TimeOfDay),
				zap.Error(err))
			continue
		}
		if _, dup := seen[key.String()]; dup {
			continue
		}
		seen[key.String()] = struct{}{}
		keys = append(keys, key)
	}

	if len(keys) == 0 {
		return 0, fmt.Errorf("%w: no valid slots", ErrInvalidInput)
	}

	saved := 0
	err := s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		saved = 0
		for _, key := range keys {
			ok, err := s.Declare(ctx, key)
			if err != nil {
				return err
			}
			if ok {
				saved++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Availability saved",
		zap.Int64("supervisor_id", supervisorID),
		zap.Int("requested", len(inputs)),
		zap.Int("saved", saved))

	return saved, nil
}

// Remove удаляет слот, если его не занимает активное бронирование
func (s *AvailabilityService) Remove(ctx context.Context, supervisorID, slotID int64) error {
	err := s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		slot, err := s.stores.Slots.GetByIDForUpdate(ctx, supervisorID, slotID)
		if err != nil {
			return err
		}
		if slot == nil {
			return ErrNotFound
		}

		active, err := s.stores.Bookings.HasActive(ctx, slot.Key())
		if err != nil {
			return err
		}
		if active {
			return ErrConflict
		}

		return s.stores.Slots.Delete(ctx, slot.ID)
	})
	if err != nil {
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("remove slot: %w", err)
	}

	s.logger.Info("Slot removed",
		zap.Int64("supervisor_id", supervisorID),
		zap.Int64("slot_id", slotID))

	return nil
}

// ListMonth все слоты месяца (доступные и занятые), по дате и времени
func (s *AvailabilityService) ListMonth(ctx context.Context, supervisorID int64, year, month int) ([]*model.ScheduleSlot, error) {
	from, to := MonthRange(year, month)
	return s.stores.Slots.ListRange(ctx, supervisorID, from, to, false)
}

// AvailableMonth только доступные слоты месяца, сгруппированные по дням
func (s *AvailabilityService) AvailableMonth(ctx context.Context, supervisorID int64, year, month int) ([]DayAvailability, error) {
	supervisor, err := s.stores.Users.GetByID(ctx, supervisorID)
	if err != nil {
		return nil, fmt.Errorf("get supervisor: %w", err)
	}
	if !supervisor.CanSupervise() {
		return nil, ErrNotFound
	}

	from, to := MonthRange(year, month)
	slots, err := s.stores.Slots.ListRange(ctx, supervisorID, from, to, true)
	if err != nil {
		return nil, err
	}

	days := make([]DayAvailability, 0)
	for _, slot := range slots {
		date := slot.Date.Format(model.DateLayout)
		if n := len(days); n > 0 && days[n-1].Date == date {
			days[n-1].Times = append(days[n-1].Times, slot.TimeOfDay)
			continue
		}
		days = append(days, DayAvailability{Date: date, Times: []string{slot.TimeOfDay}})
	}

	return days, nil
}

// MonthRange полуинтервал [первое число, первое число следующего месяца).
// Месяц вне 1..12 переносится на соседний год.
func MonthRange(year, month int) (time.Time, time.Time) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}
