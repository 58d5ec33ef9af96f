package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Shivanand-hulikatti/community-events/internal/model"
	"github.com/Shivanand-hulikatti/community-events/internal/notify"
	"github.com/Shivanand-hulikatti/community-events/internal/penalty"
	"github.com/Shivanand-hulikatti/community-events/internal/repository"
)

// UserService manages resident accounts and reports their penalty standing.
type UserService struct {
	store repository.Store
	sink  notify.Sink
	clock func() time.Time
}

// NewUserService constructs a UserService.
func NewUserService(store repository.Store, sink notify.Sink, clock func() time.Time) *UserService {
	if clock == nil {
		clock = time.Now
	}
	return &UserService{store: store, sink: sink, clock: clock}
}

// CreateUser validates and stores a new user with a clean penalty record.
func (s *UserService) CreateUser(ctx context.Context, req model.CreateUserRequest) (*model.User, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, validationError("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, validationError("name must be at most %d characters", maxNameLength)
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		return nil, validationError("email is required")
	}
	if !isValidEmail(email) {
		return nil, validationError("email is not a valid email address")
	}

	now := s.clock().UTC()
	user := &model.User{
		Name:      name,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Repos().Users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// GetUser returns the user after expiring stale penalties, together with
// their current registration eligibility.
func (s *UserService) GetUser(ctx context.Context, id string) (*model.UserStatus, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationError("user id is required")
	}

	outbox := notify.NewOutbox()
	var status *model.UserStatus
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		user, err := r.Users.LockByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		engine := penalty.NewEngine(r.Users, outbox, s.clock)
		canRegister, err := engine.CanRegisterForEvents(ctx, user)
		if err != nil {
			return err
		}
		now := engine.Now()
		status = &model.UserStatus{
			User:             *user,
			IsBanned:         user.IsBanned(now),
			CanRegister:      canRegister,
			RemainingBanDays: user.RemainingBanDays(now),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	outbox.Flush(ctx, s.sink)
	return status, nil
}

// ListNotifications returns the user's newest notifications first.
func (s *UserService) ListNotifications(ctx context.Context, id string, limit int) ([]model.Notification, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationError("user id is required")
	}
	if limit <= 0 || limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	repos := s.store.Repos()
	if _, err := repos.Users.GetByID(ctx, id); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return repos.Notifications.ListByUser(ctx, id, limit)
}
