package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/community-events/internal/model"
	"github.com/Shivanand-hulikatti/community-events/internal/repository"
)

var (
	// ErrValidation marks malformed input to any operation.
	ErrValidation = errors.New("validation failed")
	// ErrEventEnded is returned when registering for an event that already started.
	ErrEventEnded = errors.New("event has already started")
	// ErrRegistrationClosed is matched by every *RegistrationClosedError.
	ErrRegistrationClosed = errors.New("registration closed")
)

// Machine-readable error kinds reported to callers.
const (
	KindNotFound           = "not_found"
	KindAlreadyRegistered  = "already_registered"
	KindAlreadyExists      = "already_exists"
	KindEventFull          = "event_full"
	KindRegistrationClosed = "registration_closed"
	KindEventEnded         = "event_ended"
	KindValidationFailed   = "validation_failed"
	KindInternal           = "internal"
)

// ClosedReason names why a user may not register.
type ClosedReason string

const (
	ClosedReasonBanned    ClosedReason = "banned"
	ClosedReasonPenalties ClosedReason = "penalties"
)

// RegistrationClosedError is returned when the penalty policy blocks a
// registration. It matches ErrRegistrationClosed with errors.Is.
type RegistrationClosedError struct {
	Reason           ClosedReason
	Penalties        int
	BannedUntil      *time.Time
	RemainingBanDays int
}

func newRegistrationClosedError(user *model.User, now time.Time) *RegistrationClosedError {
	e := &RegistrationClosedError{Penalties: user.Penalties}
	if user.IsBanned(now) {
		e.Reason = ClosedReasonBanned
		e.BannedUntil = user.BannedUntil
		e.RemainingBanDays = user.RemainingBanDays(now)
		return e
	}
	e.Reason = ClosedReasonPenalties
	return e
}

func (e *RegistrationClosedError) Error() string {
	if e.Reason == ClosedReasonBanned {
		return fmt.Sprintf("registration closed: banned for %d more days", e.RemainingBanDays)
	}
	return fmt.Sprintf("registration closed: %d active penalties", e.Penalties)
}

func (e *RegistrationClosedError) Is(target error) bool {
	return target == ErrRegistrationClosed
}

// Details returns the payload reported alongside the error.
func (e *RegistrationClosedError) Details() map[string]any {
	details := map[string]any{
		"reason":    string(e.Reason),
		"penalties": e.Penalties,
	}
	if e.Reason == ClosedReasonBanned {
		details["remaining_ban_days"] = e.RemainingBanDays
		if e.BannedUntil != nil {
			details["banned_until"] = e.BannedUntil.UTC().Format(time.RFC3339)
		}
	}
	return details
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Kind classifies err into one of the Kind constants.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidationFailed
	case errors.Is(err, repository.ErrNotFound):
		return KindNotFound
	case errors.Is(err, repository.ErrAlreadyRegistered):
		return KindAlreadyRegistered
	case errors.Is(err, repository.ErrEmailTaken):
		return KindAlreadyExists
	case errors.Is(err, repository.ErrEventFull):
		return KindEventFull
	case errors.Is(err, ErrRegistrationClosed):
		return KindRegistrationClosed
	case errors.Is(err, ErrEventEnded):
		return KindEventEnded
	default:
		return KindInternal
	}
}
