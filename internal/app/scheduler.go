package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Freeeeeet/evalcalendar/internal/model"
	"github.com/Freeeeeet/evalcalendar/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	sweepRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evalcalendar",
		Name:      "sweep_runs_total",
		Help:      "Completed sweep cycles by task.",
	}, []string{"task"})
	sweepItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evalcalendar",
		Name:      "sweep_items_total",
		Help:      "Bookings processed by sweeps, by task and outcome.",
	}, []string{"task", "outcome"})
	sweepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evalcalendar",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of sweep cycles.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"task"})
)

// SchedulerCollectors метрики планировщика
func SchedulerCollectors() []prometheus.Collector {
	return []prometheus.Collector{sweepRuns, sweepItems, sweepDuration}
}

const (
	taskExpiry   = "expiry"
	taskReminder = "reminder"
)

// Lifecycle операции движка, которые вызывает планировщик.
// Планировщик не пишет статусы сам.
type Lifecycle interface {
	ExpiredPending(ctx context.Context) ([]*model.Booking, error)
	AutoCancel(ctx context.Context, bookingID int64) (*model.Booking, error)
	ReminderCandidates(ctx context.Context) ([]*model.Booking, error)
	SendReminder(ctx context.Context, bookingID int64) (bool, error)
}

// SchedulerConfig периоды фоновых задач
type SchedulerConfig struct {
	ExpiryInterval   time.Duration
	ReminderInterval time.Duration
}

// Scheduler управляет фоновыми задачами: отменой просроченных заявок и напоминаниями
type Scheduler struct {
	lifecycle Lifecycle
	cfg       SchedulerConfig
	logger    *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler создаёт новый планировщик
func NewScheduler(lifecycle Lifecycle, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		lifecycle: lifecycle,
		cfg:       cfg,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
}

// ValidateReminderWindow окно напоминания должно быть шире периода проверки,
// иначе бронирование может проскочить между двумя проходами
func ValidateReminderWindow(slack, interval time.Duration) error {
	if 2*slack <= interval {
		return fmt.Errorf("reminder window %s must exceed reminder sweep interval %s", 2*slack, interval)
	}
	return nil
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler",
		zap.Duration("expiry_interval", s.cfg.ExpiryInterval),
		zap.Duration("reminder_interval", s.cfg.ReminderInterval))

	s.wg.Add(2)
	go s.runTask(ctx, taskExpiry, s.cfg.ExpiryInterval, s.SweepExpired)
	go s.runTask(ctx, taskReminder, s.cfg.ReminderInterval, s.SweepReminders)
}

// Stop останавливает фоновые задачи и ждёт завершения текущего прохода
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

// RunOnce выполняет оба прохода синхронно
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.SweepExpired(ctx)
	s.SweepReminders(ctx)
}

func (s *Scheduler) runTask(ctx context.Context, name string, interval time.Duration, sweep func(ctx context.Context)) {
	defer s.wg.Done()

	// Первый запуск сразу при старте
	sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweep(ctx)
		case <-s.stopChan:
			s.logger.Info("Scheduler task stopped", zap.String("task", name))
			return
		case <-ctx.Done():
			s.logger.Info("Scheduler task cancelled", zap.String("task", name))
			return
		}
	}
}

// SweepExpired отменяет все PENDING заявки с истёкшим сроком.
// Ошибка по одному бронированию не прерывает проход.
func (s *Scheduler) SweepExpired(ctx context.Context) {
	timer := prometheus.NewTimer(sweepDuration.WithLabelValues(taskExpiry))
	defer timer.ObserveDuration()

	expired, err := s.lifecycle.ExpiredPending(ctx)
	if err != nil {
		s.logger.Error("Failed to list expired bookings", zap.Error(err))
		return
	}

	cancelled := 0
	for _, b := range expired {
		if err := s.guard(ctx, taskExpiry, b.ID, func(ctx context.Context) error {
			_, err := s.lifecycle.AutoCancel(ctx, b.ID)
			return err
		}); err != nil {
			// Супервизор успел принять решение между выборкой и отменой
			if errors.Is(err, service.ErrNotPending) || errors.Is(err, service.ErrNotExpired) {
				sweepItems.WithLabelValues(taskExpiry, "skipped").Inc()
				s.logger.Info("Booking no longer eligible for auto-cancel",
					zap.Int64("booking_id", b.ID),
					zap.Error(err))
				continue
			}
			sweepItems.WithLabelValues(taskExpiry, "error").Inc()
			s.logger.Error("Failed to auto-cancel booking",
				zap.Int64("booking_id", b.ID),
				zap.Error(err))
			continue
		}
		cancelled++
		sweepItems.WithLabelValues(taskExpiry, "cancelled").Inc()
	}

	sweepRuns.WithLabelValues(taskExpiry).Inc()
	if len(expired) > 0 {
		s.logger.Info("Expiry sweep completed",
			zap.Int("found", len(expired)),
			zap.Int("cancelled", cancelled))
	}
}

// SweepReminders отправляет напоминания о подтверждённых оценках
func (s *Scheduler) SweepReminders(ctx context.Context) {
	timer := prometheus.NewTimer(sweepDuration.WithLabelValues(taskReminder))
	defer timer.ObserveDuration()

	candidates, err := s.lifecycle.ReminderCandidates(ctx)
	if err != nil {
		s.logger.Error("Failed to list reminder candidates", zap.Error(err))
		return
	}

	sent := 0
	for _, b := range candidates {
		var ok bool
		if err := s.guard(ctx, taskReminder, b.ID, func(ctx context.Context) error {
			var err error
			ok, err = s.lifecycle.SendReminder(ctx, b.ID)
			return err
		}); err != nil {
			sweepItems.WithLabelValues(taskReminder, "error").Inc()
			s.logger.Error("Failed to send reminder",
				zap.Int64("booking_id", b.ID),
				zap.Error(err))
			continue
		}
		if ok {
			sent++
			sweepItems.WithLabelValues(taskReminder, "sent").Inc()
		}
	}

	sweepRuns.WithLabelValues(taskReminder).Inc()
	if sent > 0 {
		s.logger.Info("Reminder sweep completed",
			zap.Int("candidates", len(candidates)),
			zap.Int("sent", sent))
	}
}

// guard изолирует обработку одного бронирования, включая панику
func (s *Scheduler) guard(ctx context.Context, task string, bookingID int64, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s sweep panicked on booking %d: %v", task, bookingID, r)
		}
	}()
	return fn(ctx)
}
