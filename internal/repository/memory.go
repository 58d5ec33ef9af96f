package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/community-events/internal/model"
	"github.com/google/uuid"
)

// MemoryStore keeps all data in process memory. A transaction holds the
// store mutex for its whole duration and works on a copy of the state that
// replaces the live state only on success.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	events        map[string]model.Event
	users         map[string]model.User
	registrations map[string]model.Registration
	notifications []model.Notification
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			events:        make(map[string]model.Event),
			users:         make(map[string]model.User),
			registrations: make(map[string]model.Registration),
		},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		events:        make(map[string]model.Event, len(s.events)),
		users:         make(map[string]model.User, len(s.users)),
		registrations: make(map[string]model.Registration, len(s.registrations)),
		notifications: append([]model.Notification(nil), s.notifications...),
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.registrations {
		c.registrations[k] = v
	}
	return c
}

// memView routes a repository call either to a transaction's private state
// or, outside a transaction, to the live state under the store lock.
type memView struct {
	store *MemoryStore
	tx    *memState
}

func (v *memView) do(fn func(st *memState) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

func newMemoryRepos(v *memView) Repos {
	return Repos{
		Events:        &memEventRepo{v: v},
		Users:         &memUserRepo{v: v},
		Registrations: &memRegistrationRepo{v: v},
		Notifications: &memNotificationRepo{v: v},
	}
}

// Repos returns repositories that lock the store per call.
func (s *MemoryStore) Repos() Repos {
	return newMemoryRepos(&memView{store: s})
}

// WithTx runs fn against a private copy of the state and publishes it when
// fn succeeds.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.state.clone()
	if err := fn(newMemoryRepos(&memView{store: s, tx: tx})); err != nil {
		return err
	}
	s.state = tx
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() {}

// ─── Events ──────────────────────────────────────────────────────────────────

type memEventRepo struct {
	v *memView
}

func (r *memEventRepo) Create(_ context.Context, event *model.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	return r.v.do(func(st *memState) error {
		st.events[event.ID] = *event
		return nil
	})
}

func (r *memEventRepo) List(context.Context) ([]model.Event, error) {
	var out []model.Event
	err := r.v.do(func(st *memState) error {
		for _, e := range st.events {
			out = append(out, e)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

func (r *memEventRepo) GetByID(_ context.Context, id string) (*model.Event, error) {
	var out *model.Event
	err := r.v.do(func(st *memState) error {
		e, ok := st.events[id]
		if !ok {
			return ErrNotFound
		}
		out = &e
		return nil
	})
	return out, err
}

func (r *memEventRepo) LockByID(ctx context.Context, id string) (*model.Event, error) {
	return r.GetByID(ctx, id)
}

func (r *memEventRepo) AdjustBookedCount(_ context.Context, id string, delta int) error {
	return r.v.do(func(st *memState) error {
		e, ok := st.events[id]
		if !ok {
			return ErrNotFound
		}
		e.BookedCount = max(e.BookedCount+delta, 0)
		st.events[id] = e
		return nil
	})
}

// ─── Users ───────────────────────────────────────────────────────────────────

type memUserRepo struct {
	v *memView
}

func (r *memUserRepo) Create(_ context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	return r.v.do(func(st *memState) error {
		for _, u := range st.users {
			if u.Email == user.Email {
				return ErrEmailTaken
			}
		}
		st.users[user.ID] = *user
		return nil
	})
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	var out *model.User
	err := r.v.do(func(st *memState) error {
		u, ok := st.users[id]
		if !ok {
			return ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *memUserRepo) LockByID(ctx context.Context, id string) (*model.User, error) {
	return r.GetByID(ctx, id)
}

func (r *memUserRepo) SavePenaltyState(_ context.Context, user *model.User) error {
	return r.v.do(func(st *memState) error {
		u, ok := st.users[user.ID]
		if !ok {
			return ErrNotFound
		}
		u.Penalties = user.Penalties
		u.PenaltyExpiresAt = user.PenaltyExpiresAt
		u.BannedUntil = user.BannedUntil
		u.UpdatedAt = user.UpdatedAt
		st.users[user.ID] = u
		return nil
	})
}

// ─── Registrations ───────────────────────────────────────────────────────────

type memRegistrationRepo struct {
	v *memView
}

// activeConflict mirrors the partial unique index on active registrations.
func activeConflict(st *memState, reg *model.Registration) bool {
	if !reg.IsActive() {
		return false
	}
	for id, other := range st.registrations {
		if id != reg.ID && other.IsActive() && other.EventID == reg.EventID && other.UserID == reg.UserID {
			return true
		}
	}
	return false
}

func (r *memRegistrationRepo) Create(_ context.Context, reg *model.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.New().String()
	}
	return r.v.do(func(st *memState) error {
		if activeConflict(st, reg) {
			return ErrAlreadyRegistered
		}
		st.registrations[reg.ID] = *reg
		return nil
	})
}

func (r *memRegistrationRepo) Update(_ context.Context, reg *model.Registration) error {
	return r.v.do(func(st *memState) error {
		if _, ok := st.registrations[reg.ID]; !ok {
			return ErrNotFound
		}
		if activeConflict(st, reg) {
			return ErrAlreadyRegistered
		}
		st.registrations[reg.ID] = *reg
		return nil
	})
}

func (r *memRegistrationRepo) GetByID(_ context.Context, id string) (*model.Registration, error) {
	var out *model.Registration
	err := r.v.do(func(st *memState) error {
		reg, ok := st.registrations[id]
		if !ok {
			return ErrNotFound
		}
		out = &reg
		return nil
	})
	return out, err
}

func (r *memRegistrationRepo) LockActiveByID(ctx context.Context, id string) (*model.Registration, error) {
	reg, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !reg.IsActive() {
		return nil, ErrNotFound
	}
	return reg, nil
}

func (r *memRegistrationRepo) LockForUser(_ context.Context, eventID, userID string) (*model.Registration, error) {
	var out *model.Registration
	err := r.v.do(func(st *memState) error {
		for _, reg := range st.registrations {
			if reg.EventID != eventID || reg.UserID != userID {
				continue
			}
			if out == nil || preferRegistration(&reg, out) {
				candidate := reg
				out = &candidate
			}
		}
		if out == nil {
			return ErrNotFound
		}
		return nil
	})
	return out, err
}

// preferRegistration orders like the SQL: active first, then newest update.
func preferRegistration(a, b *model.Registration) bool {
	if a.IsActive() != b.IsActive() {
		return a.IsActive()
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

func (r *memRegistrationRepo) ListByEvent(_ context.Context, eventID string) ([]model.Registration, error) {
	var out []model.Registration
	err := r.v.do(func(st *memState) error {
		for _, reg := range st.registrations {
			if reg.EventID == eventID {
				out = append(out, reg)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r *memRegistrationRepo) ListDueReminders(_ context.Context, from, to time.Time, limit int) ([]model.UpcomingReminder, error) {
	var out []model.UpcomingReminder
	err := r.v.do(func(st *memState) error {
		for _, reg := range st.registrations {
			if !reg.IsActive() || reg.ReminderSentAt != nil {
				continue
			}
			e, ok := st.events[reg.EventID]
			if !ok || !e.StartsAt.After(from) || e.StartsAt.After(to) {
				continue
			}
			out = append(out, model.UpcomingReminder{Registration: reg, Event: e})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Event.StartsAt.Before(out[j].Event.StartsAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *memRegistrationRepo) MarkReminderSent(_ context.Context, id string, at time.Time) error {
	return r.v.do(func(st *memState) error {
		reg, ok := st.registrations[id]
		if !ok {
			return ErrNotFound
		}
		reg.ReminderSentAt = &at
		st.registrations[id] = reg
		return nil
	})
}

// ─── Notifications ───────────────────────────────────────────────────────────

type memNotificationRepo struct {
	v *memView
}

func (r *memNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return r.v.do(func(st *memState) error {
		st.notifications = append(st.notifications, *n)
		return nil
	})
}

func (r *memNotificationRepo) ListByUser(_ context.Context, userID string, limit int) ([]model.Notification, error) {
	var out []model.Notification
	err := r.v.do(func(st *memState) error {
		for i := len(st.notifications) - 1; i >= 0; i-- {
			if st.notifications[i].UserID != userID {
				continue
			}
			out = append(out, st.notifications[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}
