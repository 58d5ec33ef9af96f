// Package repository implements persistence for the community events system.
//
// Each aggregate has a repository interface. Two implementations exist: a
// PostgreSQL one built on pgx (no ORM) and an in-memory one used for local
// runs and tests. Both run multi-step use cases inside a transaction through
// Store.WithTx.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/community-events/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrEventFull is returned when an event has no remaining capacity.
var ErrEventFull = errors.New("event is fully booked")

// ErrAlreadyRegistered is returned when a user already holds an active
// registration for the event.
var ErrAlreadyRegistered = errors.New("user already registered for this event")

// ErrEmailTaken is returned when a user with the same email exists.
var ErrEmailTaken = errors.New("email already in use")

// EventRepository handles persistence for events.
type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	List(ctx context.Context) ([]model.Event, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
	// LockByID reads the event and holds its row lock until the transaction ends.
	LockByID(ctx context.Context, id string) (*model.Event, error)
	// AdjustBookedCount adds delta to the event's booked seat counter.
	AdjustBookedCount(ctx context.Context, id string, delta int) error
}

// UserRepository handles persistence for users and their penalty state.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	LockByID(ctx context.Context, id string) (*model.User, error)
	// SavePenaltyState writes penalties, penalty_expires_at, banned_until and updated_at.
	SavePenaltyState(ctx context.Context, user *model.User) error
}

// RegistrationRepository handles persistence for registrations.
type RegistrationRepository interface {
	Create(ctx context.Context, reg *model.Registration) error
	Update(ctx context.Context, reg *model.Registration) error
	GetByID(ctx context.Context, id string) (*model.Registration, error)
	// LockActiveByID returns the registration only while its status is registered.
	LockActiveByID(ctx context.Context, id string) (*model.Registration, error)
	// LockForUser returns the user's registration for the event, preferring an
	// active one over the most recently updated cancelled one.
	LockForUser(ctx context.Context, eventID, userID string) (*model.Registration, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	// ListDueReminders returns active, not yet reminded registrations whose
	// event starts in (from, to].
	ListDueReminders(ctx context.Context, from, to time.Time, limit int) ([]model.UpcomingReminder, error)
	MarkReminderSent(ctx context.Context, id string, at time.Time) error
}

// NotificationRepository durably records user notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error)
}

// Repos groups the repositories bound to one connection or transaction.
type Repos struct {
	Events        EventRepository
	Users         UserRepository
	Registrations RegistrationRepository
	Notifications NotificationRepository
}

// Store owns the underlying storage and hands out repositories.
type Store interface {
	// Repos returns repositories that run each call on its own.
	Repos() Repos
	// WithTx runs fn inside one transaction. Returning an error rolls back.
	// fn must only use the repositories it is given.
	WithTx(ctx context.Context, fn func(Repos) error) error
	Ping(ctx context.Context) error
	Close()
}
