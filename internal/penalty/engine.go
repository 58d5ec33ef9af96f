// Package penalty implements the no-show penalty and ban policy applied to
// users when their event attendance is recorded.
//
// Expiry is lazy: there is no scheduler. Every entry point that reads or
// mutates penalty state first resets a user whose penalty window has passed.
package penalty

import (
	"context"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/community-events/internal/model"
	"github.com/sirupsen/logrus"
)

const (
	// BanThreshold is the number of active penalties that triggers a ban.
	BanThreshold = 3
	// Window is how long penalties stay active after the latest change.
	Window = 30 * 24 * time.Hour
)

const dateLayout = "2006-01-02"

// Store persists the penalty fields of a user.
type Store interface {
	SavePenaltyState(ctx context.Context, user *model.User) error
}

// Sink records a notification for a user. Delivery is fire-and-forget from
// the engine's point of view.
type Sink interface {
	Notify(ctx context.Context, userID, title, message string, severity model.Severity) error
}

// Engine applies penalty and ban transitions to a user record.
type Engine struct {
	store Store
	sink  Sink
	clock func() time.Time
	log   *logrus.Entry
}

// NewEngine constructs an Engine. A nil clock falls back to time.Now.
func NewEngine(store Store, sink Sink, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		store: store,
		sink:  sink,
		clock: clock,
		log:   logrus.WithField("component", "penalty_engine"),
	}
}

// Reset clears penalty and ban state when the penalty window has strictly
// passed. It reports whether anything changed.
func Reset(user *model.User, now time.Time) bool {
	if !user.PenaltiesExpired(now) {
		return false
	}
	user.Penalties = 0
	user.PenaltyExpiresAt = nil
	user.BannedUntil = nil
	user.UpdatedAt = now
	return true
}

// CheckAndResetPenalties resets an expired user, persists the change and
// emits a notification. It returns false without touching the user otherwise.
func (e *Engine) CheckAndResetPenalties(ctx context.Context, user *model.User) (bool, error) {
	if !Reset(user, e.now()) {
		return false, nil
	}
	if err := e.store.SavePenaltyState(ctx, user); err != nil {
		return true, fmt.Errorf("save reset penalties: %w", err)
	}

	e.log.WithField("user_id", user.ID).Info("penalties expired, reset to zero")
	e.notify(ctx, user.ID, "Penalties reset",
		"Your penalties have expired and were reset. You can register for events again.",
		model.SeveritySuccess)
	return true, nil
}

// AddPenalty records one more penalty and refreshes the penalty window.
// Reaching BanThreshold bans the user until the window ends. The count is
// not clamped: adding to a user already at the threshold keeps counting.
func (e *Engine) AddPenalty(ctx context.Context, user *model.User) error {
	if _, err := e.CheckAndResetPenalties(ctx, user); err != nil {
		return err
	}

	now := e.now()
	expiresAt := now.Add(Window)
	user.Penalties++
	user.PenaltyExpiresAt = &expiresAt
	banned := user.Penalties >= BanThreshold
	if banned {
		bannedUntil := expiresAt
		user.BannedUntil = &bannedUntil
	}
	user.UpdatedAt = now

	if err := e.store.SavePenaltyState(ctx, user); err != nil {
		return fmt.Errorf("save added penalty: %w", err)
	}

	log := e.log.WithFields(logrus.Fields{
		"user_id":   user.ID,
		"penalties": user.Penalties,
	})
	if banned {
		log.Warn("penalty threshold reached, user banned")
		e.notify(ctx, user.ID, "Registration ban",
			fmt.Sprintf("You have %d penalties and cannot register for events until %s.",
				user.Penalties, expiresAt.Format(dateLayout)),
			model.SeverityDanger)
		return nil
	}

	log.Info("penalty added")
	e.notify(ctx, user.ID, "Penalty added",
		fmt.Sprintf("You missed an event you registered for. You now have %d of %d penalties; they expire on %s.",
			user.Penalties, BanThreshold, expiresAt.Format(dateLayout)),
		model.SeverityWarning)
	return nil
}

// RemovePenalty takes one penalty back. It is a no-op for a user without
// penalties. Dropping below BanThreshold lifts an active ban.
func (e *Engine) RemovePenalty(ctx context.Context, user *model.User) error {
	if user.Penalties == 0 {
		return nil
	}

	now := e.now()
	user.Penalties--
	if user.Penalties > 0 {
		expiresAt := now.Add(Window)
		user.PenaltyExpiresAt = &expiresAt
	} else {
		user.PenaltyExpiresAt = nil
	}
	lifted := false
	if user.Penalties < BanThreshold && user.IsBanned(now) {
		user.BannedUntil = nil
		lifted = true
	}
	user.UpdatedAt = now

	if err := e.store.SavePenaltyState(ctx, user); err != nil {
		return fmt.Errorf("save removed penalty: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"user_id":    user.ID,
		"penalties":  user.Penalties,
		"ban_lifted": lifted,
	}).Info("penalty removed")

	if lifted {
		e.notify(ctx, user.ID, "Ban lifted",
			"Your registration ban was lifted. You can register for events again.",
			model.SeveritySuccess)
	}
	e.notify(ctx, user.ID, "Penalty removed",
		fmt.Sprintf("A penalty was removed from your account. You now have %d penalties.", user.Penalties),
		model.SeverityInfo)
	return nil
}

// IsBanned reports whether the user's ban window ends after now. It does not
// reset expired penalties; call CheckAndResetPenalties first when freshness
// matters.
func (e *Engine) IsBanned(user *model.User) bool {
	return user.IsBanned(e.now())
}

// CanRegisterForEvents resets expired state and then reports whether the
// user is free of bans and below the penalty threshold.
func (e *Engine) CanRegisterForEvents(ctx context.Context, user *model.User) (bool, error) {
	if _, err := e.CheckAndResetPenalties(ctx, user); err != nil {
		return false, err
	}
	if e.IsBanned(user) || user.Penalties >= BanThreshold {
		return false, nil
	}
	return true, nil
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

func (e *Engine) notify(ctx context.Context, userID, title, message string, severity model.Severity) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Notify(ctx, userID, title, message, severity); err != nil {
		e.log.WithFields(logrus.Fields{
			"user_id": userID,
			"title":   title,
		}).Errorf("failed to record notification: %v", err)
	}
}
