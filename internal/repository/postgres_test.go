package repository_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/evalcalendar/internal/app"
	"github.com/Freeeeeet/evalcalendar/internal/model"
	"github.com/Freeeeeet/evalcalendar/internal/notify"
	"github.com/Freeeeeet/evalcalendar/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Интеграционные тесты запускаются только при заданном TEST_DATABASE_URL.
// База очищается перед каждым тестом.
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx := t.Context()
	pool, err := app.OpenPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrator, err := app.NewMigrator(pool, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, migrator.Run(ctx))
	require.NoError(t, migrator.Close())

	_, err = pool.Exec(ctx, `TRUNCATE bookings, schedule_slots, challenges, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return pool
}

type nopEmitter struct{}

func (nopEmitter) Emit(notify.Event) {}

type pgEnv struct {
	pool         *pgxpool.Pool
	stores       service.Stores
	bookings     *service.BookingService
	availability *service.AvailabilityService
	supervisorID int64
	challengeID  int64
}

func newPgEnv(t *testing.T, now func() time.Time) *pgEnv {
	pool := openTestPool(t)
	ctx := t.Context()
	stores := app.PostgresStores(pool)

	directory := service.NewDirectoryService(stores, zap.NewNop())
	supervisor, err := directory.RegisterSupervisor(ctx, service.SupervisorInput{Name: "Anna", Email: "anna@example.com"})
	require.NoError(t, err)
	challenge, err := directory.CreateChallenge(ctx, service.ChallengeInput{Name: "Backend"})
	require.NoError(t, err)
	supervisorID, challengeID := supervisor.ID, challenge.ID

	return &pgEnv{
		pool:         pool,
		stores:       stores,
		bookings:     service.NewBookingService(stores, nopEmitter{}, service.DefaultLifecycleConfig(), now, zap.NewNop()),
		availability: service.NewAvailabilityService(stores, zap.NewNop()),
		supervisorID: supervisorID,
		challengeID:  challengeID,
	}
}

func (e *pgEnv) declare(t *testing.T, day time.Time, tod string) model.SlotKey {
	t.Helper()
	key, err := model.NewSlotKey(e.supervisorID, day, tod)
	require.NoError(t, err)
	_, err = e.availability.Declare(t.Context(), key)
	require.NoError(t, err)
	return key
}

func (e *pgEnv) request(day time.Time, tod string) service.RequestInput {
	return service.RequestInput{
		SupervisorID: e.supervisorID,
		ChallengeID:  e.challengeID,
		Requester:    model.Requester{Name: "Ivan", Email: "ivan@example.com"},
		Date:         day,
		TimeOfDay:    tod,
	}
}

func TestPostgres_ConcurrentRequestsHoldOneSlot(t *testing.T) {
	now := time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC)
	env := newPgEnv(t, func() time.Time { return now })
	day := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	key := env.declare(t, day, "14:00")

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.bookings.RequestBooking(context.Background(), env.request(day, "14:00"))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, service.ErrSlotUnavailable), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	active, err := env.stores.Bookings.HasActive(t.Context(), key)
	require.NoError(t, err)
	assert.True(t, active)

	slot, err := env.stores.Slots.GetForUpdate(t.Context(), key)
	require.NoError(t, err)
	assert.False(t, slot.Available)
}

func TestPostgres_RejectReleasesSlot(t *testing.T) {
	now := time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC)
	env := newPgEnv(t, func() time.Time { return now })
	day := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	key := env.declare(t, day, "14:00")

	b, err := env.bookings.RequestBooking(t.Context(), env.request(day, "14:00"))
	require.NoError(t, err)

	rejected, err := env.bookings.Reject(t.Context(), b.ID, env.supervisorID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusRejected, rejected.Status)

	_, err = env.bookings.Confirm(t.Context(), b.ID, env.supervisorID)
	assert.ErrorIs(t, err, service.ErrNotPending)

	slot, err := env.stores.Slots.GetForUpdate(t.Context(), key)
	require.NoError(t, err)
	assert.True(t, slot.Available)

	// Освобождённый слот можно забронировать снова
	_, err = env.bookings.RequestBooking(t.Context(), env.request(day, "14:00"))
	require.NoError(t, err)
}

func TestPostgres_ReminderLatch(t *testing.T) {
	now := time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	env := newPgEnv(t, clock)
	day := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	env.declare(t, day, "14:00")

	b, err := env.bookings.RequestBooking(t.Context(), env.request(day, "14:00"))
	require.NoError(t, err)
	_, err = env.bookings.Confirm(t.Context(), b.ID, env.supervisorID)
	require.NoError(t, err)

	mu.Lock()
	now = time.Date(2025, 6, 10, 13, 0, 0, 0, time.UTC)
	mu.Unlock()

	candidates, err := env.bookings.ReminderCandidates(t.Context())
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	var wg sync.WaitGroup
	var sentMu sync.Mutex
	sent := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := env.bookings.SendReminder(context.Background(), b.ID)
			assert.NoError(t, err)
			if ok {
				sentMu.Lock()
				sent++
				sentMu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, sent)

	candidates, err = env.bookings.ReminderCandidates(t.Context())
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestPostgres_ExpiredPending(t *testing.T) {
	now := time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	env := newPgEnv(t, clock)
	day := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	key := env.declare(t, day, "09:00")

	b, err := env.bookings.RequestBooking(t.Context(), env.request(day, "09:00"))
	require.NoError(t, err)

	_, err = env.bookings.AutoCancel(t.Context(), b.ID)
	assert.ErrorIs(t, err, service.ErrNotExpired)

	mu.Lock()
	now = now.Add(12*time.Hour + time.Minute)
	mu.Unlock()

	expired, err := env.bookings.ExpiredPending(t.Context())
	require.NoError(t, err)
	require.Len(t, expired, 1)

	cancelled, err := env.bookings.AutoCancel(t.Context(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusAutoCancelled, cancelled.Status)

	slot, err := env.stores.Slots.GetForUpdate(t.Context(), key)
	require.NoError(t, err)
	assert.True(t, slot.Available)
}

func TestPostgres_DirectoryUniqueness(t *testing.T) {
	env := newPgEnv(t, time.Now)
	directory := service.NewDirectoryService(env.stores, zap.NewNop())

	_, err := directory.RegisterSupervisor(t.Context(), service.SupervisorInput{Name: "Anna", Email: "ANNA@example.com"})
	assert.ErrorIs(t, err, service.ErrConflict)

	challenge, err := env.stores.Challenges.GetByID(t.Context(), env.challengeID)
	require.NoError(t, err)
	require.NotNil(t, challenge)
	assert.Empty(t, challenge.Description)
	assert.True(t, challenge.IsActive)
}
