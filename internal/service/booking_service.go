package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Freeeeeet/evalcalendar/internal/model"
	"github.com/Freeeeeet/evalcalendar/internal/notify"
	"github.com/Freeeeeet/evalcalendar/internal/repository"
	"go.uber.org/zap"
)

const (
	maxRequesterName  = 150
	maxRequesterEmail = 255
	maxRequesterPhone = 30

	dashboardUpcomingLimit = 20
	historyLimit           = 100
)

// LifecycleConfig временные параметры жизненного цикла бронирования
type LifecycleConfig struct {
	BookingExpiry time.Duration  // срок ответа супервизора
	ReminderLead  time.Duration  // за сколько до начала напоминать
	ReminderSlack time.Duration  // допуск окна напоминания в обе стороны
	Location      *time.Location // зона, в которой заданы дата и время слотов
}

// DefaultLifecycleConfig 12 часов на ответ, напоминание за час с допуском 5 минут
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		BookingExpiry: 12 * time.Hour,
		ReminderLead:  60 * time.Minute,
		ReminderSlack: 5 * time.Minute,
		Location:      time.UTC,
	}
}

// Stores хранилища, общие для сервисов
type Stores struct {
	Tx         Transactor
	Slots      SlotStore
	Bookings   BookingStore
	Users      UserStore
	Challenges ChallengeStore
}

// RequestInput заявка на бронирование слота
type RequestInput struct {
	SupervisorID int64
	ChallengeID  int64
	Requester    model.Requester
	Date         time.Time
	TimeOfDay    string
}

// Dashboard заявки, ожидающие решения, и ближайшие подтверждённые
type Dashboard struct {
	Pending  []*model.Booking `json:"pending"`
	Upcoming []*model.Booking `json:"upcoming"`
}

// BookingService движок жизненного цикла бронирования.
// Единственный, кто пишет Booking.Status и ScheduleSlot.Available.
type BookingService struct {
	stores Stores
	events notify.Emitter
	cfg    LifecycleConfig
	clock  Clock
	logger *zap.Logger
}

func NewBookingService(stores Stores, events notify.Emitter, cfg LifecycleConfig, clock Clock, logger *zap.Logger) *BookingService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if clock == nil {
		clock = SystemClock
	}
	return &BookingService{
		stores: stores,
		events: events,
		cfg:    cfg,
		clock:  clock,
		logger: logger,
	}
}

// Config текущие параметры жизненного цикла
func (s *BookingService) Config() LifecycleConfig {
	return s.cfg
}

// RequestBooking резервирует слот и создаёт PENDING бронирование в одной транзакции
func (s *BookingService) RequestBooking(ctx context.Context, in RequestInput) (*model.Booking, error) {
	now := s.clock()

	key, err := model.NewSlotKey(in.SupervisorID, in.Date, in.TimeOfDay)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	requester, err := normalizeRequester(in.Requester)
	if err != nil {
		return nil, err
	}

	startsAt, err := key.StartsAt(s.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !startsAt.After(now) {
		return nil, fmt.Errorf("%w: slot is in the past", ErrSlotUnavailable)
	}

	challenge, err := s.stores.Challenges.GetByID(ctx, in.ChallengeID)
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	if challenge == nil || !challenge.IsActive {
		return nil, fmt.Errorf("challenge %d: %w", in.ChallengeID, ErrNotFound)
	}

	booking := &model.Booking{
		SupervisorID: key.SupervisorID,
		ChallengeID:  challenge.ID,
		Requester:    requester,
		Date:         key.Date,
		TimeOfDay:    key.TimeOfDay,
		Status:       model.BookingStatusPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.BookingExpiry),
	}

	err = s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		supervisor, err := s.stores.Users.GetForShare(ctx, key.SupervisorID)
		if err != nil {
			return fmt.Errorf("get supervisor: %w", err)
		}
		if !supervisor.CanSupervise() {
			return ErrSlotUnavailable
		}

		// Блокировка строки слота сериализует конкурирующие заявки на один ключ
		slot, err := s.stores.Slots.GetForUpdate(ctx, key)
		if err != nil {
			return fmt.Errorf("get slot: %w", err)
		}
		if slot == nil || !slot.Available {
			return ErrSlotUnavailable
		}

		active, err := s.stores.Bookings.HasActive(ctx, key)
		if err != nil {
			return err
		}
		if active {
			return ErrSlotUnavailable
		}

		if err := s.stores.Slots.SetAvailable(ctx, key, false); err != nil {
			return err
		}

		if err := s.stores.Bookings.Create(ctx, booking); err != nil {
			if errors.Is(err, repository.ErrDuplicateActiveBooking) {
				return ErrSlotUnavailable
			}
			return err
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) {
			s.logger.Info("Slot unavailable for booking request",
				zap.String("slot", key.String()),
				zap.Int64("challenge_id", in.ChallengeID))
		}
		return nil, err
	}

	s.logger.Info("Booking requested",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("supervisor_id", booking.SupervisorID),
		zap.Int64("challenge_id", booking.ChallengeID),
		zap.String("slot", key.String()),
		zap.Time("expires_at", booking.ExpiresAt),
	)

	s.emit(notify.EventRequestReceived, booking, now)
	s.emit(notify.EventNewRequestForSupervisor, booking, now)

	return booking, nil
}

// Confirm подтверждает PENDING бронирование; слот остаётся занятым
func (s *BookingService) Confirm(ctx context.Context, bookingID, supervisorID int64) (*model.Booking, error) {
	return s.transition(ctx, bookingID, ownedBy(supervisorID), model.BookingStatusConfirmed, false, notify.EventConfirmed)
}

// Reject отклоняет PENDING бронирование и освобождает слот в той же транзакции
func (s *BookingService) Reject(ctx context.Context, bookingID, supervisorID int64) (*model.Booking, error) {
	return s.transition(ctx, bookingID, ownedBy(supervisorID), model.BookingStatusRejected, true, notify.EventRejected)
}

// AutoCancel отменяет просроченную заявку. Вызывается только планировщиком.
func (s *BookingService) AutoCancel(ctx context.Context, bookingID int64) (*model.Booking, error) {
	return s.transition(ctx, bookingID, nil, model.BookingStatusAutoCancelled, true, notify.EventAutoCancelled)
}

func ownedBy(supervisorID int64) func(b *model.Booking) bool {
	return func(b *model.Booking) bool {
		return b.SupervisorID == supervisorID
	}
}

// transition переводит бронирование из PENDING в терминальный статус.
// Строка бронирования блокируется: из двух конкурентов побеждает первый, второй получает ErrNotPending.
func (s *BookingService) transition(
	ctx context.Context,
	bookingID int64,
	owner func(b *model.Booking) bool,
	to model.BookingStatus,
	release bool,
	kind notify.EventKind,
) (*model.Booking, error) {
	now := s.clock()
	var booking *model.Booking

	err := s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		b, err := s.stores.Bookings.GetForUpdate(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("get booking: %w", err)
		}

		// Чужое бронирование неотличимо от несуществующего
		if b == nil || (owner != nil && !owner(b)) {
			return ErrNotFound
		}

		if b.Status != model.BookingStatusPending {
			return ErrNotPending
		}

		if to == model.BookingStatusAutoCancelled && b.ExpiresAt.After(now) {
			return ErrNotExpired
		}

		if err := s.stores.Bookings.UpdateStatus(ctx, b.ID, to, now); err != nil {
			if errors.Is(err, repository.ErrStatusChanged) {
				return ErrNotPending
			}
			return err
		}

		if release {
			if err := s.stores.Slots.SetAvailable(ctx, b.SlotKey(), true); err != nil {
				return fmt.Errorf("release slot: %w", err)
			}
		}

		b.Status = to
		b.UpdatedAt = now
		booking = b
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotPending) {
			s.logger.Info("Booking already processed",
				zap.Int64("booking_id", bookingID),
				zap.String("target_status", string(to)))
		}
		return nil, err
	}

	s.logger.Info("Booking status changed",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("supervisor_id", booking.SupervisorID),
		zap.String("status", string(to)),
		zap.Bool("slot_released", release),
	)

	s.emit(kind, booking, now)

	return booking, nil
}

// SendReminder отправляет напоминание, если начало попадает в окно [lead-slack, lead+slack].
// Флаг reminder_sent взводится условным UPDATE, событие уходит только у победителя.
func (s *BookingService) SendReminder(ctx context.Context, bookingID int64) (bool, error) {
	now := s.clock()

	booking, err := s.stores.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return false, fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return false, ErrNotFound
	}
	if booking.Status != model.BookingStatusConfirmed || booking.ReminderSent {
		return false, nil
	}

	due, err := s.reminderDue(booking, now)
	if err != nil || !due {
		return false, err
	}

	flipped, err := s.stores.Bookings.MarkReminderSent(ctx, booking.ID, now)
	if err != nil {
		return false, err
	}
	if !flipped {
		return false, nil
	}

	booking.ReminderSent = true
	booking.UpdatedAt = now

	s.logger.Info("Reminder scheduled",
		zap.Int64("booking_id", booking.ID),
		zap.String("slot", booking.SlotKey().String()))

	s.emit(notify.EventReminder, booking, now)
	return true, nil
}

func (s *BookingService) reminderDue(b *model.Booking, now time.Time) (bool, error) {
	startsAt, err := b.SlotKey().StartsAt(s.cfg.Location)
	if err != nil {
		return false, fmt.Errorf("booking %d: %w", b.ID, err)
	}
	windowStart := now.Add(s.cfg.ReminderLead - s.cfg.ReminderSlack)
	windowEnd := now.Add(s.cfg.ReminderLead + s.cfg.ReminderSlack)
	return !startsAt.Before(windowStart) && !startsAt.After(windowEnd), nil
}

// ExpiredPending PENDING бронирования, срок которых истёк
func (s *BookingService) ExpiredPending(ctx context.Context) ([]*model.Booking, error) {
	return s.stores.Bookings.ListExpiredPending(ctx, s.clock())
}

// ReminderCandidates подтверждённые без напоминания, чьи даты близки к окну
func (s *BookingService) ReminderCandidates(ctx context.Context) ([]*model.Booking, error) {
	now := s.clock()
	from := model.TruncateDate(now.Add(s.cfg.ReminderLead - s.cfg.ReminderSlack).In(s.cfg.Location))
	to := model.TruncateDate(now.Add(s.cfg.ReminderLead + s.cfg.ReminderSlack).In(s.cfg.Location))
	return s.stores.Bookings.ListReminderCandidates(ctx, from, to)
}

// Get получает бронирование супервизора
func (s *BookingService) Get(ctx context.Context, bookingID, supervisorID int64) (*model.Booking, error) {
	booking, err := s.stores.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if booking == nil || booking.SupervisorID != supervisorID {
		return nil, ErrNotFound
	}
	return booking, nil
}

// ListForSupervisor бронирования супервизора, опционально по статусу
func (s *BookingService) ListForSupervisor(ctx context.Context, supervisorID int64, status *model.BookingStatus) ([]*model.Booking, error) {
	filter := repository.BookingFilter{OrderBy: repository.OrderBySlot}
	if status != nil {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *status)
		}
		filter.Statuses = []model.BookingStatus{*status}
	}
	return s.stores.Bookings.ListBySupervisor(ctx, supervisorID, filter)
}

// Dashboard заявки на рассмотрении и ближайшие подтверждённые оценки
func (s *BookingService) Dashboard(ctx context.Context, supervisorID int64) (*Dashboard, error) {
	pending, err := s.stores.Bookings.ListBySupervisor(ctx, supervisorID, repository.BookingFilter{
		Statuses: []model.BookingStatus{model.BookingStatusPending},
		OrderBy:  repository.OrderBySlot,
	})
	if err != nil {
		return nil, err
	}

	today := model.TruncateDate(s.clock().In(s.cfg.Location))
	upcoming, err := s.stores.Bookings.ListBySupervisor(ctx, supervisorID, repository.BookingFilter{
		Statuses: []model.BookingStatus{model.BookingStatusConfirmed},
		FromDate: &today,
		OrderBy:  repository.OrderBySlot,
		Limit:    dashboardUpcomingLimit,
	})
	if err != nil {
		return nil, err
	}

	return &Dashboard{Pending: pending, Upcoming: upcoming}, nil
}

// History последние бронирования супервизора
func (s *BookingService) History(ctx context.Context, supervisorID int64) ([]*model.Booking, error) {
	return s.stores.Bookings.ListBySupervisor(ctx, supervisorID, repository.BookingFilter{
		OrderBy: repository.OrderByCreatedDesc,
		Limit:   historyLimit,
	})
}

func (s *BookingService) emit(kind notify.EventKind, booking *model.Booking, now time.Time) {
	if s.events == nil {
		return
	}
	s.events.Emit(notify.NewEvent(kind, booking, now))
}

// normalizeRequester лимиты в символах, как VARCHAR в схеме
func normalizeRequester(r model.Requester) (model.Requester, error) {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)

	if r.Name == "" || utf8.RuneCountInString(r.Name) > maxRequesterName {
		return r, fmt.Errorf("%w: requester name is required (max %d chars)", ErrInvalidInput, maxRequesterName)
	}
	if utf8.RuneCountInString(r.Email) > maxRequesterEmail {
		return r, fmt.Errorf("%w: requester email is too long", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(r.Email)
	if err != nil || addr.Address != r.Email {
		return r, fmt.Errorf("%w: invalid requester email", ErrInvalidInput)
	}
	if utf8.RuneCountInString(r.Phone) > maxRequesterPhone {
		return r, fmt.Errorf("%w: requester phone is too long", ErrInvalidInput)
	}
	return r, nil
}
