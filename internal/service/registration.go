package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Shivanand-hulikatti/community-events/internal/model"
	"github.com/Shivanand-hulikatti/community-events/internal/notify"
	"github.com/Shivanand-hulikatti/community-events/internal/penalty"
	"github.com/Shivanand-hulikatti/community-events/internal/repository"
	"github.com/sirupsen/logrus"
)

// RegistrationService runs the registration lifecycle: sign-up gated by the
// penalty policy, cancellation, and attendance marking, which is the only
// thing that changes a user's penalties.
//
// Each operation is one storage transaction. Notifications raised by the
// penalty engine are buffered and handed to the sink after commit.
type RegistrationService struct {
	store repository.Store
	sink  notify.Sink
	clock func() time.Time
	log   *logrus.Entry
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(store repository.Store, sink notify.Sink, clock func() time.Time) *RegistrationService {
	if clock == nil {
		clock = time.Now
	}
	return &RegistrationService{
		store: store,
		sink:  sink,
		clock: clock,
		log:   logrus.WithField("component", "registration_service"),
	}
}

// Register signs the user up for the event. A cancelled registration for
// the same pair is reactivated in place instead of inserting a new one.
//
// Policy rejections (RegistrationClosed, EventEnded, EventFull) still commit
// the transaction so that an expired-penalty reset performed by the check
// is kept.
func (s *RegistrationService) Register(ctx context.Context, eventID string, req model.RegisterRequest) (*model.Registration, error) {
	userID := strings.TrimSpace(req.UserID)
	if eventID == "" {
		return nil, validationError("event id is required")
	}
	if userID == "" {
		return nil, validationError("user_id is required")
	}

	outbox := notify.NewOutbox()
	var (
		reg       *model.Registration
		rejection error
	)
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		event, err := r.Events.LockByID(ctx, eventID)
		if err != nil {
			return fmt.Errorf("lock event: %w", err)
		}
		now := s.clock().UTC()

		existing, err := r.Registrations.LockForUser(ctx, eventID, userID)
		switch {
		case err == nil && existing.IsActive():
			return repository.ErrAlreadyRegistered
		case err == nil:
			if event.IsFull() {
				return repository.ErrEventFull
			}
			existing.Reactivate(now)
			if err := r.Registrations.Update(ctx, existing); err != nil {
				return fmt.Errorf("reactivate registration: %w", err)
			}
			if err := r.Events.AdjustBookedCount(ctx, eventID, 1); err != nil {
				return err
			}
			reg = existing
			return nil
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("find registration: %w", err)
		}

		user, err := r.Users.LockByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}

		engine := penalty.NewEngine(r.Users, outbox, s.clock)
		allowed, err := engine.CanRegisterForEvents(ctx, user)
		if err != nil {
			return err
		}
		switch {
		case !allowed:
			rejection = newRegistrationClosedError(user, engine.Now())
			return nil
		case event.HasStarted(now):
			rejection = ErrEventEnded
			return nil
		case event.IsFull():
			rejection = repository.ErrEventFull
			return nil
		}

		reg = &model.Registration{
			EventID:    eventID,
			UserID:     userID,
			Status:     model.RegistrationStatusRegistered,
			Attendance: model.AttendancePending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := r.Registrations.Create(ctx, reg); err != nil {
			return err
		}
		return r.Events.AdjustBookedCount(ctx, eventID, 1)
	})
	if err != nil {
		return nil, err
	}
	outbox.Flush(ctx, s.sink)

	log := s.log.WithFields(logrus.Fields{"event_id": eventID, "user_id": userID})
	if rejection != nil {
		log.Infof("registration rejected: %v", rejection)
		return nil, rejection
	}
	log.WithField("registration_id", reg.ID).Info("user registered")
	return reg, nil
}

// Unregister cancels the user's active registration and frees the seat.
func (s *RegistrationService) Unregister(ctx context.Context, eventID string, req model.UnregisterRequest) (*model.Registration, error) {
	userID := strings.TrimSpace(req.UserID)
	reason := strings.TrimSpace(req.Reason)
	if eventID == "" {
		return nil, validationError("event id is required")
	}
	if userID == "" {
		return nil, validationError("user_id is required")
	}
	if reason == "" {
		return nil, validationError("reason is required")
	}
	if utf8.RuneCountInString(reason) > maxReasonLength {
		return nil, validationError("reason must be at most %d characters", maxReasonLength)
	}

	var reg *model.Registration
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if _, err := r.Events.LockByID(ctx, eventID); err != nil {
			return fmt.Errorf("lock event: %w", err)
		}
		existing, err := r.Registrations.LockForUser(ctx, eventID, userID)
		if err != nil {
			return fmt.Errorf("find registration: %w", err)
		}
		if !existing.IsActive() {
			return fmt.Errorf("find registration: %w", repository.ErrNotFound)
		}

		existing.Cancel(reason, s.clock().UTC())
		if err := r.Registrations.Update(ctx, existing); err != nil {
			return fmt.Errorf("cancel registration: %w", err)
		}
		if err := r.Events.AdjustBookedCount(ctx, eventID, -1); err != nil {
			return err
		}
		reg = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"event_id":        eventID,
		"user_id":         userID,
		"registration_id": reg.ID,
	}).Info("registration cancelled")
	return reg, nil
}

// UpdateAttendance records the attendance outcome of an active registration.
// Becoming absent adds a penalty to the owner; correcting absent to present
// removes one. Other transitions have no penalty effect.
func (s *RegistrationService) UpdateAttendance(ctx context.Context, registrationID string, req model.AttendanceRequest) (*model.Registration, error) {
	if registrationID == "" {
		return nil, validationError("registration id is required")
	}
	next := req.Attendance
	if !next.Valid() || next == model.AttendancePending {
		return nil, validationError("attendance must be %q or %q", model.AttendancePresent, model.AttendanceAbsent)
	}

	outbox := notify.NewOutbox()
	var (
		reg      *model.Registration
		previous model.Attendance
	)
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		existing, err := r.Registrations.LockActiveByID(ctx, registrationID)
		if err != nil {
			return fmt.Errorf("find registration: %w", err)
		}
		owner, err := r.Users.LockByID(ctx, existing.UserID)
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}

		now := s.clock().UTC()
		previous = existing.Attendance
		existing.Attendance = next
		existing.AttendanceMarkedAt = &now
		existing.UpdatedAt = now
		if err := r.Registrations.Update(ctx, existing); err != nil {
			return fmt.Errorf("update attendance: %w", err)
		}

		engine := penalty.NewEngine(r.Users, outbox, s.clock)
		switch {
		case next == model.AttendanceAbsent && previous != model.AttendanceAbsent:
			if err := engine.AddPenalty(ctx, owner); err != nil {
				return err
			}
		case previous == model.AttendanceAbsent && next == model.AttendancePresent:
			if err := engine.RemovePenalty(ctx, owner); err != nil {
				return err
			}
		}
		reg = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	outbox.Flush(ctx, s.sink)

	s.log.WithFields(logrus.Fields{
		"registration_id": reg.ID,
		"user_id":         reg.UserID,
		"from":            previous,
		"to":              next,
	}).Info("attendance updated")
	return reg, nil
}
