package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Freeeeeet/evalcalendar/internal/model"
	"github.com/Freeeeeet/evalcalendar/internal/notify"
	"github.com/Freeeeeet/evalcalendar/internal/repository/memory"
	"github.com/Freeeeeet/evalcalendar/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type lifecycleMock struct {
	ExpiredPendingFn     func(ctx context.Context) ([]*model.Booking, error)
	AutoCancelFn         func(ctx context.Context, bookingID int64) (*model.Booking, error)
	ReminderCandidatesFn func(ctx context.Context) ([]*model.Booking, error)
	SendReminderFn       func(ctx context.Context, bookingID int64) (bool, error)
}

func (m *lifecycleMock) ExpiredPending(ctx context.Context) ([]*model.Booking, error) {
	if m.ExpiredPendingFn == nil {
		return nil, nil
	}
	return m.ExpiredPendingFn(ctx)
}

func (m *lifecycleMock) AutoCancel(ctx context.Context, bookingID int64) (*model.Booking, error) {
	return m.AutoCancelFn(ctx, bookingID)
}

func (m *lifecycleMock) ReminderCandidates(ctx context.Context) ([]*model.Booking, error) {
	if m.ReminderCandidatesFn == nil {
		return nil, nil
	}
	return m.ReminderCandidatesFn(ctx)
}

func (m *lifecycleMock) SendReminder(ctx context.Context, bookingID int64) (bool, error) {
	return m.SendReminderFn(ctx, bookingID)
}

func bookings(ids ...int64) []*model.Booking {
	out := make([]*model.Booking, 0, len(ids))
	for _, id := range ids {
		out = append(out, &model.Booking{ID: id})
	}
	return out
}

func TestSweepExpired_IsolatesFailures(t *testing.T) {
	var processed []int64
	m := &lifecycleMock{
		ExpiredPendingFn: func(context.Context) ([]*model.Booking, error) {
			return bookings(1, 2, 3, 4), nil
		},
		AutoCancelFn: func(_ context.Context, id int64) (*model.Booking, error) {
			processed = append(processed, id)
			switch id {
			case 2:
				return nil, errors.New("db timeout")
			case 3:
				panic("unexpected nil")
			}
			return &model.Booking{ID: id, Status: model.BookingStatusAutoCancelled}, nil
		},
	}

	s := NewScheduler(m, SchedulerConfig{ExpiryInterval: time.Minute, ReminderInterval: time.Minute}, zap.NewNop())
	s.SweepExpired(t.Context())

	assert.Equal(t, []int64{1, 2, 3, 4}, processed)
}

func counterValue(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, m.Write(&pb))
	return pb.GetCounter().GetValue()
}

func TestSweepExpired_LostRaceIsSkipped(t *testing.T) {
	m := &lifecycleMock{
		ExpiredPendingFn: func(context.Context) ([]*model.Booking, error) {
			return bookings(1, 2, 3, 4), nil
		},
		AutoCancelFn: func(_ context.Context, id int64) (*model.Booking, error) {
			switch id {
			case 1:
				return nil, service.ErrNotPending
			case 2:
				return nil, fmt.Errorf("booking %d: %w", id, service.ErrNotExpired)
			case 3:
				return nil, errors.New("db timeout")
			}
			return &model.Booking{ID: id, Status: model.BookingStatusAutoCancelled}, nil
		},
	}

	skipped := sweepItems.WithLabelValues(taskExpiry, "skipped")
	failed := sweepItems.WithLabelValues(taskExpiry, "error")
	cancelled := sweepItems.WithLabelValues(taskExpiry, "cancelled")
	skippedBefore, failedBefore, cancelledBefore := counterValue(t, skipped), counterValue(t, failed), counterValue(t, cancelled)

	s := NewScheduler(m, SchedulerConfig{ExpiryInterval: time.Minute, ReminderInterval: time.Minute}, zap.NewNop())
	s.SweepExpired(t.Context())

	assert.Equal(t, skippedBefore+2, counterValue(t, skipped))
	assert.Equal(t, failedBefore+1, counterValue(t, failed))
	assert.Equal(t, cancelledBefore+1, counterValue(t, cancelled))
}

func TestSweepReminders_IsolatesFailures(t *testing.T) {
	var processed []int64
	m := &lifecycleMock{
		ReminderCandidatesFn: func(context.Context) ([]*model.Booking, error) {
			return bookings(10, 11, 12), nil
		},
		SendReminderFn: func(_ context.Context, id int64) (bool, error) {
			processed = append(processed, id)
			if id == 10 {
				panic("boom")
			}
			return id == 12, nil
		},
	}

	s := NewScheduler(m, SchedulerConfig{ExpiryInterval: time.Minute, ReminderInterval: time.Minute}, zap.NewNop())
	s.SweepReminders(t.Context())

	assert.Equal(t, []int64{10, 11, 12}, processed)
}

func TestSweep_ListErrorSkipsCycle(t *testing.T) {
	m := &lifecycleMock{
		ExpiredPendingFn: func(context.Context) ([]*model.Booking, error) {
			return nil, errors.New("connection refused")
		},
		ReminderCandidatesFn: func(context.Context) ([]*model.Booking, error) {
			return nil, errors.New("connection refused")
		},
	}

	s := NewScheduler(m, SchedulerConfig{ExpiryInterval: time.Minute, ReminderInterval: time.Minute}, zap.NewNop())
	assert.NotPanics(t, func() { s.RunOnce(t.Context()) })
}

func TestScheduler_StartStop(t *testing.T) {
	var expiryRuns, reminderRuns atomic.Int32
	m := &lifecycleMock{
		ExpiredPendingFn: func(context.Context) ([]*model.Booking, error) {
			expiryRuns.Add(1)
			return nil, nil
		},
		ReminderCandidatesFn: func(context.Context) ([]*model.Booking, error) {
			reminderRuns.Add(1)
			return nil, nil
		},
	}

	s := NewScheduler(m, SchedulerConfig{ExpiryInterval: 10 * time.Millisecond, ReminderInterval: 10 * time.Millisecond}, zap.NewNop())
	s.Start(t.Context())

	require.Eventually(t, func() bool {
		return expiryRuns.Load() >= 2 && reminderRuns.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()

	stopped := expiryRuns.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, expiryRuns.Load())
}

func TestValidateReminderWindow(t *testing.T) {
	assert.NoError(t, ValidateReminderWindow(5*time.Minute, 5*time.Minute))
	assert.NoError(t, ValidateReminderWindow(5*time.Minute, 9*time.Minute))
	assert.Error(t, ValidateReminderWindow(5*time.Minute, 10*time.Minute))
	assert.Error(t, ValidateReminderWindow(time.Minute, 15*time.Minute))
}

// --- Сценарий на хранилище в памяти с виртуальными часами ---

type eventLog struct {
	mu    sync.Mutex
	kinds []notify.EventKind
}

func (l *eventLog) Emit(e notify.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.kinds = append(l.kinds, e.Kind)
}

func (l *eventLog) Count(kind notify.EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, k := range l.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func TestScheduler_LifecycleScenario(t *testing.T) {
	store := memory.NewStore()
	supervisor := store.AddUser(model.User{Name: "Anna", Email: "anna@example.com", Role: model.UserRoleSupervisor, IsActive: true})
	challenge := store.AddChallenge(model.Challenge{Name: "Backend", IsActive: true})
	stores := service.Stores{
		Tx:         store,
		Slots:      store.Slots(),
		Bookings:   store.Bookings(),
		Users:      store.Users(),
		Challenges: store.Challenges(),
	}

	now := time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	events := &eventLog{}

	svc := service.NewBookingService(stores, events, service.DefaultLifecycleConfig(), clock, zap.NewNop())
	availability := service.NewAvailabilityService(stores, zap.NewNop())
	s := NewScheduler(svc, SchedulerConfig{ExpiryInterval: 10 * time.Minute, ReminderInterval: 5 * time.Minute}, zap.NewNop())

	day := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	for _, tod := range []string{"09:00", "14:00"} {
		key, err := model.NewSlotKey(supervisor.ID, day, tod)
		require.NoError(t, err)
		_, err = availability.Declare(t.Context(), key)
		require.NoError(t, err)
	}

	request := func(tod string) *model.Booking {
		b, err := svc.RequestBooking(t.Context(), service.RequestInput{
			SupervisorID: supervisor.ID,
			ChallengeID:  challenge.ID,
			Requester:    model.Requester{Name: "Ivan", Email: "ivan@example.com"},
			Date:         day,
			TimeOfDay:    tod,
		})
		require.NoError(t, err)
		return b
	}

	stale := request("09:00")
	confirmed := request("14:00")
	_, err := svc.Confirm(t.Context(), confirmed.ID, supervisor.ID)
	require.NoError(t, err)

	// До истечения срока ничего не отменяется
	now = now.Add(11 * time.Hour)
	s.RunOnce(t.Context())
	b, err := svc.Get(t.Context(), stale.ID, supervisor.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, b.Status)

	now = time.Date(2025, 6, 9, 20, 5, 0, 0, time.UTC)
	s.RunOnce(t.Context())
	b, err = svc.Get(t.Context(), stale.ID, supervisor.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusAutoCancelled, b.Status)
	assert.Equal(t, 1, events.Count(notify.EventAutoCancelled))

	days, err := availability.AvailableMonth(t.Context(), supervisor.ID, 2025, 6)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, []string{"09:00"}, days[0].Times)

	// Напоминание за час до начала, ровно один раз
	now = time.Date(2025, 6, 10, 13, 2, 0, 0, time.UTC)
	s.RunOnce(t.Context())
	s.RunOnce(t.Context())
	assert.Equal(t, 1, events.Count(notify.EventReminder))
	assert.Equal(t, 1, events.Count(notify.EventAutoCancelled))
}
