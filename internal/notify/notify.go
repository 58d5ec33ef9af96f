// Package notify records user notifications produced by the penalty engine
// and the reminder sweep.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/community-events/internal/model"
	"github.com/Shivanand-hulikatti/community-events/internal/repository"
	"github.com/sirupsen/logrus"
)

// Sink accepts one notification for a user.
type Sink interface {
	Notify(ctx context.Context, userID, title, message string, severity model.Severity) error
}

// StoreSink durably records notifications through a repository.
type StoreSink struct {
	repo  repository.NotificationRepository
	clock func() time.Time
}

// NewStoreSink constructs a StoreSink. A nil clock falls back to time.Now.
func NewStoreSink(repo repository.NotificationRepository, clock func() time.Time) *StoreSink {
	if clock == nil {
		clock = time.Now
	}
	return &StoreSink{repo: repo, clock: clock}
}

// Notify inserts the notification.
func (s *StoreSink) Notify(ctx context.Context, userID, title, message string, severity model.Severity) error {
	n := &model.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Severity:  severity,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}

type pending struct {
	userID   string
	title    string
	message  string
	severity model.Severity
}

// Outbox buffers notifications raised inside a transaction so they are only
// delivered once the transaction has committed. Notify never fails.
type Outbox struct {
	mu    sync.Mutex
	items []pending
}

// NewOutbox constructs an empty Outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Notify queues the notification.
func (o *Outbox) Notify(_ context.Context, userID, title, message string, severity model.Severity) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, pending{userID: userID, title: title, message: message, severity: severity})
	return nil
}

// Flush hands every queued notification to sink and empties the outbox.
// Delivery failures are logged and dropped; it returns how many were delivered.
func (o *Outbox) Flush(ctx context.Context, sink Sink) int {
	o.mu.Lock()
	items := o.items
	o.items = nil
	o.mu.Unlock()
	if sink == nil {
		return 0
	}

	delivered := 0
	for _, item := range items {
		if err := sink.Notify(ctx, item.userID, item.title, item.message, item.severity); err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "notify_outbox",
				"user_id":   item.userID,
				"title":     item.title,
			}).Errorf("failed to deliver notification: %v", err)
			continue
		}
		delivered++
	}
	return delivered
}
