package service

import (
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/evalcalendar/internal/model"
	"github.com/Freeeeeet/evalcalendar/internal/notify"
	"github.com/Freeeeeet/evalcalendar/internal/repository/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Virtual clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Event recorder ---

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Emit(e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Kinds() []notify.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]notify.EventKind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (r *recorder) Count(kind notify.EventKind) int {
	n := 0
	for _, k := range r.Kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// --- Test environment ---

type testEnv struct {
	store        *memory.Store
	stores       Stores
	clock        *fakeClock
	events       *recorder
	bookings     *BookingService
	availability *AvailabilityService
	supervisors  *SupervisorService
	supervisor   *model.User
	challenge    *model.Challenge
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()

	store := memory.NewStore()
	stores := Stores{
		Tx:         store,
		Slots:      store.Slots(),
		Bookings:   store.Bookings(),
		Users:      store.Users(),
		Challenges: store.Challenges(),
	}

	supervisor := store.AddUser(model.User{
		Name:     "Anna Petrova",
		Email:    "anna@example.com",
		Role:     model.UserRoleSupervisor,
		IsActive: true,
	})
	challenge := store.AddChallenge(model.Challenge{Name: "Backend challenge", IsActive: true})

	clock := newFakeClock(now)
	events := &recorder{}
	logger := zap.NewNop()

	return &testEnv{
		store:        store,
		stores:       stores,
		clock:        clock,
		events:       events,
		bookings:     NewBookingService(stores, events, DefaultLifecycleConfig(), clock.Now, logger),
		availability: NewAvailabilityService(stores, logger),
		supervisors:  NewSupervisorService(stores, logger),
		supervisor:   supervisor,
		challenge:    challenge,
	}
}

func date(s string) time.Time {
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func (e *testEnv) declare(t *testing.T, day, tod string) {
	t.Helper()
	key, err := model.NewSlotKey(e.supervisor.ID, date(day), tod)
	require.NoError(t, err)
	ok, err := e.availability.Declare(t.Context(), key)
	require.NoError(t, err)
	require.True(t, ok)
}

func (e *testEnv) request(day, tod string) RequestInput {
	return RequestInput{
		SupervisorID: e.supervisor.ID,
		ChallengeID:  e.challenge.ID,
		Requester: model.Requester{
			Name:  "Ivan Sidorov",
			Email: "ivan@example.com",
			Phone: "+7 900 000-00-00",
		},
		Date:      date(day),
		TimeOfDay: tod,
	}
}

func (e *testEnv) slot(t *testing.T, day, tod string) *model.ScheduleSlot {
	t.Helper()
	key, err := model.NewSlotKey(e.supervisor.ID, date(day), tod)
	require.NoError(t, err)
	slot, err := e.stores.Slots.GetForUpdate(t.Context(), key)
	require.NoError(t, err)
	require.NotNil(t, slot)
	return slot
}

func (e *testEnv) booking(t *testing.T, id int64) *model.Booking {
	t.Helper()
	b, err := e.stores.Bookings.GetByID(t.Context(), id)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b
}

// assertConsistent slot.available == false тогда и только тогда, когда есть активное бронирование
func (e *testEnv) assertConsistent(t *testing.T, day, tod string) {
	t.Helper()
	slot := e.slot(t, day, tod)
	active, err := e.stores.Bookings.HasActive(t.Context(), slot.Key())
	require.NoError(t, err)
	require.Equal(t, !slot.Available, active, "slot %s available=%v active=%v", slot.Key(), slot.Available, active)
}
