package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/evalcalendar/internal/model"
	"github.com/Freeeeeet/evalcalendar/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const slotColumns = `id, supervisor_id, slot_date, slot_time, available`

type SlotRepository struct {
	*base.Repository
}

func NewSlotRepository(pool *pgxpool.Pool) *SlotRepository {
	return &SlotRepository{Repository: base.NewRepository(pool)}
}

// Insert создаёт доступный слот, если его ещё нет
func (r *SlotRepository) Insert(ctx context.Context, key model.SlotKey) (bool, error) {
	query := `
		INSERT INTO schedule_slots (supervisor_id, slot_date, slot_time, available)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (supervisor_id, slot_date, slot_time) DO NOTHING
	`

	affected, err := r.ExecAffected(ctx, query, key.SupervisorID, key.Date, key.TimeOfDay)
	if err != nil {
		return false, fmt.Errorf("insert slot: %w", err)
	}

	return affected == 1, nil
}

// GetForUpdate получает слот по ключу с блокировкой строки
func (r *SlotRepository) GetForUpdate(ctx context.Context, key model.SlotKey) (*model.ScheduleSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM schedule_slots
		WHERE supervisor_id = $1 AND slot_date = $2 AND slot_time = $3
		FOR UPDATE
	`

	slot, err := scanSlot(r.QueryRow(ctx, query, key.SupervisorID, key.Date, key.TimeOfDay))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get slot for update: %w", err)
	}

	return slot, nil
}

// GetByIDForUpdate получает слот супервизора по ID с блокировкой строки
func (r *SlotRepository) GetByIDForUpdate(ctx context.Context, supervisorID, id int64) (*model.ScheduleSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM schedule_slots
		WHERE id = $1 AND supervisor_id = $2
		FOR UPDATE
	`

	slot, err := scanSlot(r.QueryRow(ctx, query, id, supervisorID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get slot by id: %w", err)
	}

	return slot, nil
}

// SetAvailable переключает доступность слота
func (r *SlotRepository) SetAvailable(ctx context.Context, key model.SlotKey, available bool) error {
	query := `
		UPDATE schedule_slots
		SET available = $1
		WHERE supervisor_id = $2 AND slot_date = $3 AND slot_time = $4
	`

	// Слот мог быть удалён до освобождения: это не ошибка
	if _, err := r.ExecAffected(ctx, query, available, key.SupervisorID, key.Date, key.TimeOfDay); err != nil {
		return fmt.Errorf("set slot available: %w", err)
	}

	return nil
}

// Delete удаляет слот
func (r *SlotRepository) Delete(ctx context.Context, id int64) error {
	affected, err := r.ExecAffected(ctx, `DELETE FROM schedule_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("slot not found")
	}

	return nil
}

// ListRange получает слоты супервизора в диапазоне дат [from, to)
func (r *SlotRepository) ListRange(ctx context.Context, supervisorID int64, from, to time.Time, onlyAvailable bool) ([]*model.ScheduleSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM schedule_slots
		WHERE supervisor_id = $1
		  AND slot_date >= $2
		  AND slot_date < $3
		  AND (NOT $4 OR available)
		ORDER BY slot_date, slot_time
	`

	rows, err := r.Query(ctx, query, supervisorID, from, to, onlyAvailable)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var slots []*model.ScheduleSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}

	return slots, rows.Err()
}

func scanSlot(row pgx.Row) (*model.ScheduleSlot, error) {
	var slot model.ScheduleSlot
	err := row.Scan(
		&slot.ID,
		&slot.SupervisorID,
		&slot.Date,
		&slot.TimeOfDay,
		&slot.Available,
	)
	if err != nil {
		return nil, err
	}
	slot.Date = model.TruncateDate(slot.Date)
	return &slot, nil
}
