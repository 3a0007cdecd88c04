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

const bookingColumns = `id, supervisor_id, challenge_id, requester_name, requester_email, requester_phone,
	slot_date, slot_time, status, created_at, expires_at, reminder_sent, updated_at`

// BookingFilter фильтр выборки бронирований супервизора
type BookingFilter struct {
	Statuses []model.BookingStatus
	FromDate *time.Time // slot_date >= FromDate
	OrderBy  BookingOrder
	Limit    int
}

type BookingOrder int

const (
	OrderBySlot BookingOrder = iota
	OrderByCreatedDesc
)

type BookingRepository struct {
	*base.Repository
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{Repository: base.NewRepository(pool)}
}

// Create создаёт новое бронирование. expires_at пишется только здесь.
func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (supervisor_id, challenge_id, requester_name, requester_email, requester_phone,
			slot_date, slot_time, status, created_at, expires_at, reminder_sent, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $9)
		RETURNING id
	`

	err := r.QueryRow(
		ctx, query,
		booking.SupervisorID,
		booking.ChallengeID,
		booking.Requester.Name,
		booking.Requester.Email,
		booking.Requester.Phone,
		booking.Date,
		booking.TimeOfDay,
		booking.Status,
		booking.CreatedAt,
		booking.ExpiresAt,
	).Scan(&booking.ID)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return ErrDuplicateActiveBooking
		}
		return fmt.Errorf("create booking: %w", err)
	}

	booking.UpdatedAt = booking.CreatedAt
	return nil
}

// HasActive есть ли активное бронирование на ключ слота
func (r *BookingRepository) HasActive(ctx context.Context, key model.SlotKey) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM bookings
			WHERE supervisor_id = $1 AND slot_date = $2 AND slot_time = $3
			  AND status IN ('PENDING', 'CONFIRMED')
		)
	`

	var exists bool
	err := r.QueryRow(ctx, query, key.SupervisorID, key.Date, key.TimeOfDay).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active booking: %w", err)
	}

	return exists, nil
}

// GetByID получает бронирование по ID
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking by id: %w", err)
	}

	return booking, nil
}

// GetForUpdate получает бронирование с блокировкой строки
func (r *BookingRepository) GetForUpdate(ctx context.Context, id int64) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`

	booking, err := scanBooking(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get booking for update: %w", err)
	}

	return booking, nil
}

// UpdateStatus переводит бронирование из PENDING в новый статус
func (r *BookingRepository) UpdateStatus(ctx context.Context, id int64, status model.BookingStatus, now time.Time) error {
	query := `
		UPDATE bookings
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = 'PENDING'
	`

	affected, err := r.ExecAffected(ctx, query, status, now, id)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}

	if affected == 0 {
		return ErrStatusChanged
	}

	return nil
}

// MarkReminderSent взводит флаг напоминания. Возвращает false, если флаг уже стоял.
func (r *BookingRepository) MarkReminderSent(ctx context.Context, id int64, now time.Time) (bool, error) {
	query := `
		UPDATE bookings
		SET reminder_sent = TRUE, updated_at = $1
		WHERE id = $2 AND status = 'CONFIRMED' AND reminder_sent = FALSE
	`

	affected, err := r.ExecAffected(ctx, query, now, id)
	if err != nil {
		return false, fmt.Errorf("mark reminder sent: %w", err)
	}

	return affected == 1, nil
}

// ListExpiredPending получает PENDING бронирования с истёкшим сроком
func (r *BookingRepository) ListExpiredPending(ctx context.Context, now time.Time) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'PENDING' AND expires_at <= $1
		ORDER BY expires_at
	`

	return r.list(ctx, "list expired bookings", query, now)
}

// ListReminderCandidates подтверждённые без напоминания в диапазоне дат [from, to]
func (r *BookingRepository) ListReminderCandidates(ctx context.Context, from, to time.Time) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'CONFIRMED' AND reminder_sent = FALSE
		  AND slot_date >= $1 AND slot_date <= $2
		ORDER BY slot_date, slot_time
	`

	return r.list(ctx, "list reminder candidates", query, from, to)
}

// ListBySupervisor получает бронирования супервизора по фильтру
func (r *BookingRepository) ListBySupervisor(ctx context.Context, supervisorID int64, filter BookingFilter) ([]*model.Booking, error) {
	statuses := make([]string, 0, len(filter.Statuses))
	for _, s := range filter.Statuses {
		statuses = append(statuses, string(s))
	}

	order := "slot_date, slot_time"
	if filter.OrderBy == OrderByCreatedDesc {
		order = "created_at DESC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE supervisor_id = $1
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
		  AND ($3::date IS NULL OR slot_date >= $3::date)
		ORDER BY ` + order + `
		LIMIT $4
	`

	return r.list(ctx, "list bookings by supervisor", query, supervisorID, statuses, filter.FromDate, limit)
}

// CountActiveBySupervisor количество активных бронирований супервизора
func (r *BookingRepository) CountActiveBySupervisor(ctx context.Context, supervisorID int64) (int, error) {
	query := `
		SELECT COUNT(*) FROM bookings
		WHERE supervisor_id = $1 AND status IN ('PENDING', 'CONFIRMED')
	`

	var count int
	if err := r.QueryRow(ctx, query, supervisorID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active bookings: %w", err)
	}

	return count, nil
}

func (r *BookingRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.Booking, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var booking model.Booking
	var phone *string
	err := row.Scan(
		&booking.ID,
		&booking.SupervisorID,
		&booking.ChallengeID,
		&booking.Requester.Name,
		&booking.Requester.Email,
		&phone,
		&booking.Date,
		&booking.TimeOfDay,
		&booking.Status,
		&booking.CreatedAt,
		&booking.ExpiresAt,
		&booking.ReminderSent,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if phone != nil {
		booking.Requester.Phone = *phone
	}
	booking.Date = model.TruncateDate(booking.Date)
	return &booking, nil
}
