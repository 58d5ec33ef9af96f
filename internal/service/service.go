// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Shivanand-hulikatti/community-events/internal/model"
	"github.com/Shivanand-hulikatti/community-events/internal/repository"
)

const (
	maxNameLength   = 200
	maxCapacity     = 100_000
	maxReasonLength = 500

	maxNotificationLimit = 100
)

// EventService orchestrates event-related business operations.
type EventService struct {
	store repository.Store
	clock func() time.Time
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(store repository.Store, clock func() time.Time) *EventService {
	if clock == nil {
		clock = time.Now
	}
	return &EventService{store: store, clock: clock}
}

// CreateEvent validates the request and delegates to the repository.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, validationError("event name is required")
	}
	if utf8.RuneCountInString(req.Name) > maxNameLength {
		return nil, validationError("event name must be at most %d characters", maxNameLength)
	}
	if req.StartsAt.IsZero() {
		return nil, validationError("starts_at is required")
	}
	if req.Capacity < 0 {
		return nil, validationError("capacity cannot be negative")
	}
	if req.Capacity > maxCapacity {
		return nil, validationError("capacity cannot exceed 100,000")
	}

	event := &model.Event{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Location:    strings.TrimSpace(req.Location),
		StartsAt:    req.StartsAt.UTC(),
		Capacity:    req.Capacity,
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.store.Repos().Events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

// ListEvents returns all events.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.store.Repos().Events.List(ctx)
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, validationError("event id is required")
	}
	event, err := s.store.Repos().Events.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// ListRegistrations returns all registrations for an event.
func (s *EventService) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	repos := s.store.Repos()
	if _, err := repos.Events.GetByID(ctx, eventID); err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return repos.Registrations.ListByEvent(ctx, eventID)
}

// isValidEmail does a basic structural check.
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
