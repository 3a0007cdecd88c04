// Package memory хранилище в памяти для разработки без Postgres и для тестов.
// Транзакции выполняются строго последовательно, откат восстанавливает снимок.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/evalcalendar/internal/model"
	"github.com/Freeeeeet/evalcalendar/internal/repository"
)

type txKey struct{}

var (
	errSlotNotFound = errors.New("slot not found")
	errUserNotFound = errors.New("user not found")
)

type state struct {
	slotSeq    int64
	bookingSeq int64
	slots      map[int64]*model.ScheduleSlot
	bookings   map[int64]*model.Booking
	users      map[int64]*model.User
	challenges map[int64]*model.Challenge
}

func (s *state) clone() *state {
	c := &state{
		slotSeq:    s.slotSeq,
		bookingSeq: s.bookingSeq,
		slots:      make(map[int64]*model.ScheduleSlot, len(s.slots)),
		bookings:   make(map[int64]*model.Booking, len(s.bookings)),
		users:      make(map[int64]*model.User, len(s.users)),
		challenges: make(map[int64]*model.Challenge, len(s.challenges)),
	}
	for id, v := range s.slots {
		cp := *v
		c.slots[id] = &cp
	}
	for id, v := range s.bookings {
		c.bookings[id] = v.Clone()
	}
	for id, v := range s.users {
		cp := *v
		c.users[id] = &cp
	}
	for id, v := range s.challenges {
		cp := *v
		c.challenges[id] = &cp
	}
	return c
}

// Store общий state для всех репозиториев в памяти
type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{
		state: &state{
			slots:      make(map[int64]*model.ScheduleSlot),
			bookings:   make(map[int64]*model.Booking),
			users:      make(map[int64]*model.User),
			challenges: make(map[int64]*model.Challenge),
		},
	}
}

// InTx выполняет fn под эксклюзивной блокировкой; при ошибке состояние откатывается
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	defer func() {
		if r := recover(); r != nil {
			s.state = snapshot
			panic(r)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*Store)
	return ok
}

// do выполняет операцию вне транзакции под блокировкой, внутри - как есть
func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if inTx(ctx) {
		return fn(s.state)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// AddUser добавляет пользователя (заполнение dev-окружения и тесты)
func (s *Store) AddUser(u model.User) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = int64(len(s.state.users) + 1)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.state.users[u.ID] = &u
	cp := u
	return &cp
}

// AddChallenge добавляет challenge
func (s *Store) AddChallenge(c model.Challenge) *model.Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = int64(len(s.state.challenges) + 1)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.state.challenges[c.ID] = &c
	cp := c
	return &cp
}

func (s *Store) Slots() *SlotRepository           { return &SlotRepository{store: s} }
func (s *Store) Bookings() *BookingRepository     { return &BookingRepository{store: s} }
func (s *Store) Users() *UserRepository           { return &UserRepository{store: s} }
func (s *Store) Challenges() *ChallengeRepository { return &ChallengeRepository{store: s} }

func sameKey(k model.SlotKey, supervisorID int64, date time.Time, timeOfDay string) bool {
	return k.SupervisorID == supervisorID && k.Date.Equal(model.TruncateDate(date)) && k.TimeOfDay == timeOfDay
}

func normalizeKey(k model.SlotKey) model.SlotKey {
	k.Date = model.TruncateDate(k.Date)
	return k
}

func hasActive(st *state, key model.SlotKey) bool {
	for _, b := range st.bookings {
		if b.Status.IsActive() && sameKey(key, b.SupervisorID, b.Date, b.TimeOfDay) {
			return true
		}
	}
	return false
}

// SlotRepository слоты в памяти
type SlotRepository struct {
	store *Store
}

func (r *SlotRepository) findByKey(st *state, key model.SlotKey) *model.ScheduleSlot {
	for _, slot := range st.slots {
		if sameKey(key, slot.SupervisorID, slot.Date, slot.TimeOfDay) {
			return slot
		}
	}
	return nil
}

func (r *SlotRepository) Insert(ctx context.Context, key model.SlotKey) (bool, error) {
	key = normalizeKey(key)
	var created bool
	err := r.store.do(ctx, func(st *state) error {
		if r.findByKey(st, key) != nil {
			return nil
		}
		st.slotSeq++
		st.slots[st.slotSeq] = &model.ScheduleSlot{
			ID:           st.slotSeq,
			SupervisorID: key.SupervisorID,
			Date:         key.Date,
			TimeOfDay:    key.TimeOfDay,
			Available:    true,
		}
		created = true
		return nil
	})
	return created, err
}

func (r *SlotRepository) GetForUpdate(ctx context.Context, key model.SlotKey) (*model.ScheduleSlot, error) {
	key = normalizeKey(key)
	var out *model.ScheduleSlot
	err := r.store.do(ctx, func(st *state) error {
		if slot := r.findByKey(st, key); slot != nil {
			cp := *slot
			out = &cp
		}
		return nil
	})
	return out, err
}

func (r *SlotRepository) GetByIDForUpdate(ctx context.Context, supervisorID, id int64) (*model.ScheduleSlot, error) {
	var out *model.ScheduleSlot
	err := r.store.do(ctx, func(st *state) error {
		if slot, ok := st.slots[id]; ok && slot.SupervisorID == supervisorID {
			cp := *slot
			out = &cp
		}
		return nil
	})
	return out, err
}

func (r *SlotRepository) SetAvailable(ctx context.Context, key model.SlotKey, available bool) error {
	key = normalizeKey(key)
	return r.store.do(ctx, func(st *state) error {
		if slot := r.findByKey(st, key); slot != nil {
			slot.Available = available
		}
		return nil
	})
}

func (r *SlotRepository) Delete(ctx context.Context, id int64) error {
	return r.store.do(ctx, func(st *state) error {
		if _, ok := st.slots[id]; !ok {
			return errSlotNotFound
		}
		delete(st.slots, id)
		return nil
	})
}

func (r *SlotRepository) ListRange(ctx context.Context, supervisorID int64, from, to time.Time, onlyAvailable bool) ([]*model.ScheduleSlot, error) {
	var out []*model.ScheduleSlot
	err := r.store.do(ctx, func(st *state) error {
		for _, slot := range st.slots {
			if slot.SupervisorID != supervisorID || slot.Date.Before(from) || !slot.Date.Before(to) {
				continue
			}
			if onlyAvailable && !slot.Available {
				continue
			}
			cp := *slot
			out = append(out, &cp)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].TimeOfDay < out[j].TimeOfDay
	})
	return out, err
}

// BookingRepository бронирования в памяти
type BookingRepository struct {
	store *Store
}

func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	return r.store.do(ctx, func(st *state) error {
		key := normalizeKey(booking.SlotKey())
		if booking.Status.IsActive() && hasActive(st, key) {
			return repository.ErrDuplicateActiveBooking
		}
		st.bookingSeq++
		booking.ID = st.bookingSeq
		booking.Date = key.Date
		booking.ReminderSent = false
		booking.UpdatedAt = booking.CreatedAt
		st.bookings[booking.ID] = booking.Clone()
		return nil
	})
}

func (r *BookingRepository) HasActive(ctx context.Context, key model.SlotKey) (bool, error) {
	key = normalizeKey(key)
	var exists bool
	err := r.store.do(ctx, func(st *state) error {
		exists = hasActive(st, key)
		return nil
	})
	return exists, err
}

func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	var out *model.Booking
	err := r.store.do(ctx, func(st *state) error {
		out = st.bookings[id].Clone()
		return nil
	})
	return out, err
}

func (r *BookingRepository) GetForUpdate(ctx context.Context, id int64) (*model.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, id int64, status model.BookingStatus, now time.Time) error {
	return r.store.do(ctx, func(st *state) error {
		b, ok := st.bookings[id]
		if !ok || b.Status != model.BookingStatusPending {
			return repository.ErrStatusChanged
		}
		b.Status = status
		b.UpdatedAt = now
		return nil
	})
}

func (r *BookingRepository) MarkReminderSent(ctx context.Context, id int64, now time.Time) (bool, error) {
	var flipped bool
	err := r.store.do(ctx, func(st *state) error {
		b, ok := st.bookings[id]
		if !ok || b.Status != model.BookingStatusConfirmed || b.ReminderSent {
			return nil
		}
		b.ReminderSent = true
		b.UpdatedAt = now
		flipped = true
		return nil
	})
	return flipped, err
}

func (r *BookingRepository) ListExpiredPending(ctx context.Context, now time.Time) ([]*model.Booking, error) {
	out, err := r.filter(ctx, func(b *model.Booking) bool {
		return b.Status == model.BookingStatusPending && !b.ExpiresAt.After(now)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, err
}

func (r *BookingRepository) ListReminderCandidates(ctx context.Context, from, to time.Time) ([]*model.Booking, error) {
	out, err := r.filter(ctx, func(b *model.Booking) bool {
		return b.Status == model.BookingStatusConfirmed && !b.ReminderSent &&
			!b.Date.Before(from) && !b.Date.After(to)
	})
	sortBySlot(out)
	return out, err
}

func (r *BookingRepository) ListBySupervisor(ctx context.Context, supervisorID int64, filter repository.BookingFilter) ([]*model.Booking, error) {
	out, err := r.filter(ctx, func(b *model.Booking) bool {
		if b.SupervisorID != supervisorID {
			return false
		}
		if filter.FromDate != nil && b.Date.Before(model.TruncateDate(*filter.FromDate)) {
			return false
		}
		if len(filter.Statuses) == 0 {
			return true
		}
		for _, s := range filter.Statuses {
			if b.Status == s {
				return true
			}
		}
		return false
	})
	if filter.OrderBy == repository.OrderByCreatedDesc {
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	} else {
		sortBySlot(out)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, err
}

func (r *BookingRepository) CountActiveBySupervisor(ctx context.Context, supervisorID int64) (int, error) {
	out, err := r.filter(ctx, func(b *model.Booking) bool {
		return b.SupervisorID == supervisorID && b.Status.IsActive()
	})
	return len(out), err
}

func (r *BookingRepository) filter(ctx context.Context, keep func(b *model.Booking) bool) ([]*model.Booking, error) {
	var out []*model.Booking
	err := r.store.do(ctx, func(st *state) error {
		for _, b := range st.bookings {
			if keep(b) {
				out = append(out, b.Clone())
			}
		}
		return nil
	})
	return out, err
}

func sortBySlot(bookings []*model.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		if !bookings[i].Date.Equal(bookings[j].Date) {
			return bookings[i].Date.Before(bookings[j].Date)
		}
		if bookings[i].TimeOfDay != bookings[j].TimeOfDay {
			return bookings[i].TimeOfDay < bookings[j].TimeOfDay
		}
		return bookings[i].ID < bookings[j].ID
	})
}

// UserRepository пользователи в памяти
type UserRepository struct {
	store *Store
}

func (r *UserRepository) get(ctx context.Context, match func(u *model.User) bool) (*model.User, error) {
	var out *model.User
	err := r.store.do(ctx, func(st *state) error {
		for _, u := range st.users {
			if match(u) {
				cp := *u
				out = &cp
				return nil
			}
		}
		return nil
	})
	return out, err
}

// Create проверяет уникальность email и чата, как индексы в Postgres
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.store.do(ctx, func(st *state) error {
		for _, u := range st.users {
			if u.Email == user.Email {
				return repository.ErrDuplicateUser
			}
			if user.TelegramChatID != nil && u.TelegramChatID != nil && *u.TelegramChatID == *user.TelegramChatID {
				return repository.ErrDuplicateUser
			}
		}
		user.ID = int64(len(st.users) + 1)
		user.CreatedAt = time.Now().UTC()
		cp := *user
		st.users[user.ID] = &cp
		return nil
	})
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.get(ctx, func(u *model.User) bool { return u.ID == id })
}

func (r *UserRepository) GetForUpdate(ctx context.Context, id int64) (*model.User, error) {
	return r.GetByID(ctx, id)
}

func (r *UserRepository) GetForShare(ctx context.Context, id int64) (*model.User, error) {
	return r.GetByID(ctx, id)
}

func (r *UserRepository) GetByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error) {
	return r.get(ctx, func(u *model.User) bool {
		return u.TelegramChatID != nil && *u.TelegramChatID == chatID
	})
}

func (r *UserRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.store.do(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return errUserNotFound
		}
		u.IsActive = active
		return nil
	})
}

// ChallengeRepository challenges в памяти
type ChallengeRepository struct {
	store *Store
}

func (r *ChallengeRepository) Create(ctx context.Context, c *model.Challenge) error {
	return r.store.do(ctx, func(st *state) error {
		c.ID = int64(len(st.challenges) + 1)
		c.CreatedAt = time.Now().UTC()
		cp := *c
		st.challenges[c.ID] = &cp
		return nil
	})
}

func (r *ChallengeRepository) GetByID(ctx context.Context, id int64) (*model.Challenge, error) {
	var out *model.Challenge
	err := r.store.do(ctx, func(st *state) error {
		if c, ok := st.challenges[id]; ok {
			cp := *c
			out = &cp
		}
		return nil
	})
	return out, err
}
