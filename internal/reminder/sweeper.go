// Package reminder periodically notifies registered users about events that
// are about to start.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/community-events/internal/model"
	"github.com/Shivanand-hulikatti/community-events/internal/notify"
	"github.com/Shivanand-hulikatti/community-events/internal/repository"
	"github.com/sirupsen/logrus"
)

const batchSize = 200

// Sweeper sends one "Upcoming event" notification per active registration.
type Sweeper struct {
	registrations repository.RegistrationRepository
	sink          notify.Sink
	interval      time.Duration
	leadTime      time.Duration
	clock         func() time.Time
	log           *logrus.Entry
}

// NewSweeper constructs a Sweeper. A nil clock falls back to time.Now.
func NewSweeper(
	registrations repository.RegistrationRepository,
	sink notify.Sink,
	interval, leadTime time.Duration,
	clock func() time.Time,
) *Sweeper {
	if clock == nil {
		clock = time.Now
	}
	return &Sweeper{
		registrations: registrations,
		sink:          sink,
		interval:      interval,
		leadTime:      leadTime,
		clock:         clock,
		log:           logrus.WithField("component", "reminder_sweeper"),
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			sent, err := s.SweepOnce(ctx)
			if err != nil {
				s.log.Errorf("sweep failed: %v", err)
				continue
			}
			if sent == 0 {
				s.log.Debug("no upcoming events to remind about")
				continue
			}
			s.log.Infof("sent %d event reminders", sent)
		case <-ctx.Done():
			s.log.Info("stopping reminder sweeper")
			return
		}
	}
}

// SweepOnce notifies every due registration and stamps it as reminded. A
// registration whose notification fails is left unstamped for the next sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.clock().UTC()
	due, err := s.registrations.ListDueReminders(ctx, now, now.Add(s.leadTime), batchSize)
	if err != nil {
		return 0, fmt.Errorf("list due reminders: %w", err)
	}

	sent := 0
	for _, item := range due {
		reg := item.Registration
		logger := s.log.WithFields(logrus.Fields{
			"registration_id": reg.ID,
			"event_id":        item.Event.ID,
			"user_id":         reg.UserID,
		})

		if err := s.sink.Notify(ctx, reg.UserID, "Upcoming event", message(item.Event), model.SeverityInfo); err != nil {
			logger.Errorf("failed to send reminder: %v", err)
			continue
		}
		if err := s.registrations.MarkReminderSent(ctx, reg.ID, now); err != nil {
			logger.Errorf("failed to mark reminder sent: %v", err)
			continue
		}
		sent++
	}
	return sent, nil
}

func message(e model.Event) string {
	when := e.StartsAt.UTC().Format("Mon 2 Jan 15:04 MST")
	if e.Location == "" {
		return fmt.Sprintf("%s starts on %s.", e.Name, when)
	}
	return fmt.Sprintf("%s starts on %s at %s.", e.Name, when, e.Location)
}
