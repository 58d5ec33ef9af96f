package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/community-events/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL SQLSTATE codes the repositories translate.
const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// repository code runs inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the pgx-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore over an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func newPostgresRepos(db DBTX) Repos {
	return Repos{
		Events:        &pgEventRepo{db: db},
		Users:         &pgUserRepo{db: db},
		Registrations: &pgRegistrationRepo{db: db},
		Notifications: &pgNotificationRepo{db: db},
	}
}

// Repos returns pool-backed repositories.
func (s *PostgresStore) Repos() Repos {
	return newPostgresRepos(s.pool)
}

// WithTx runs fn in a read-committed transaction. Row locks taken with
// SELECT ... FOR UPDATE are held until fn returns and the transaction ends.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(Repos) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(newPostgresRepos(tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func isUniqueViolation(err error) bool {
	return hasCode(err, uniqueViolation)
}

// isMissing reports whether a lookup found nothing. An id that is not a
// valid UUID cannot match any row either.
func isMissing(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || hasCode(err, invalidTextRepresentation)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// ─── Events ──────────────────────────────────────────────────────────────────

const eventColumns = `id, name, description, location, starts_at, capacity, booked_count, created_at`

type pgEventRepo struct {
	db DBTX
}

func scanEvent(row pgx.Row, e *model.Event) error {
	return row.Scan(&e.ID, &e.Name, &e.Description, &e.Location, &e.StartsAt, &e.Capacity, &e.BookedCount, &e.CreatedAt)
}

// Create inserts a new event, generating its UUID when missing.
func (r *pgEventRepo) Create(ctx context.Context, event *model.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO events (id, name, description, location, starts_at, capacity, booked_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.Name, event.Description, event.Location, event.StartsAt,
		event.Capacity, event.BookedCount, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// List returns all events ordered by start time.
func (r *pgEventRepo) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 ORDER BY starts_at ASC, created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetByID returns a single event or ErrNotFound.
func (r *pgEventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	return r.get(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
}

// LockByID acquires an exclusive row-level lock on the event. Concurrent
// registrations for the same event queue behind it, which keeps the
// capacity check and the booked_count update race-free.
func (r *pgEventRepo) LockByID(ctx context.Context, id string) (*model.Event, error) {
	return r.get(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id)
}

func (r *pgEventRepo) get(ctx context.Context, query, id string) (*model.Event, error) {
	var e model.Event
	if err := scanEvent(r.db.QueryRow(ctx, query, id), &e); err != nil {
		if isMissing(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

// AdjustBookedCount increments or decrements booked_count.
func (r *pgEventRepo) AdjustBookedCount(ctx context.Context, id string, delta int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE events SET booked_count = GREATEST(booked_count + $2, 0) WHERE id = $1`,
		id, delta,
	)
	if err != nil {
		return fmt.Errorf("adjust booked_count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ─── Users ───────────────────────────────────────────────────────────────────

const userColumns = `id, name, email, penalties, penalty_expires_at, banned_until, created_at, updated_at`

type pgUserRepo struct {
	db DBTX
}

func scanUser(row pgx.Row, u *model.User) error {
	return row.Scan(&u.ID, &u.Name, &u.Email, &u.Penalties, &u.PenaltyExpiresAt, &u.BannedUntil, &u.CreatedAt, &u.UpdatedAt)
}

// Create inserts a new user. A duplicate email yields ErrEmailTaken.
func (r *pgUserRepo) Create(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, name, email, penalties, penalty_expires_at, banned_until, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Name, user.Email, user.Penalties, user.PenaltyExpiresAt, user.BannedUntil,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID returns a single user or ErrNotFound.
func (r *pgUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// LockByID reads the user and locks the row for the rest of the transaction.
func (r *pgUserRepo) LockByID(ctx context.Context, id string) (*model.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (r *pgUserRepo) get(ctx context.Context, query, id string) (*model.User, error) {
	var u model.User
	if err := scanUser(r.db.QueryRow(ctx, query, id), &u); err != nil {
		if isMissing(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// SavePenaltyState writes the penalty fields of the user.
func (r *pgUserRepo) SavePenaltyState(ctx context.Context, user *model.User) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET penalties = $2, penalty_expires_at = $3, banned_until = $4, updated_at = $5
		 WHERE id = $1`,
		user.ID, user.Penalties, user.PenaltyExpiresAt, user.BannedUntil, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update penalty state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ─── Registrations ───────────────────────────────────────────────────────────

const registrationColumns = `id, event_id, user_id, status, attendance, attendance_marked_at,
	cancellation_reason, cancelled_at, reminder_sent_at, created_at, updated_at`

type pgRegistrationRepo struct {
	db DBTX
}

func registrationDest(reg *model.Registration) []any {
	return []any{
		&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.Attendance, &reg.AttendanceMarkedAt,
		&reg.CancellationReason, &reg.CancelledAt, &reg.ReminderSentAt, &reg.CreatedAt, &reg.UpdatedAt,
	}
}

// Create inserts a registration. The partial unique index on
// (event_id, user_id) WHERE status = 'registered' is the authority on
// duplicates; a violation maps to ErrAlreadyRegistered.
func (r *pgRegistrationRepo) Create(ctx context.Context, reg *model.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.New().String()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		reg.ID, reg.EventID, reg.UserID, reg.Status, reg.Attendance, reg.AttendanceMarkedAt,
		reg.CancellationReason, reg.CancelledAt, reg.ReminderSentAt, reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyRegistered
		}
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// Update writes the mutable fields of a registration.
func (r *pgRegistrationRepo) Update(ctx context.Context, reg *model.Registration) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE registrations
		 SET status = $2, attendance = $3, attendance_marked_at = $4, cancellation_reason = $5,
		     cancelled_at = $6, reminder_sent_at = $7, updated_at = $8
		 WHERE id = $1`,
		reg.ID, reg.Status, reg.Attendance, reg.AttendanceMarkedAt, reg.CancellationReason,
		reg.CancelledAt, reg.ReminderSentAt, reg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyRegistered
		}
		return fmt.Errorf("update registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID returns a registration in any status.
func (r *pgRegistrationRepo) GetByID(ctx context.Context, id string) (*model.Registration, error) {
	return r.get(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id)
}

// LockActiveByID locks an active registration by id.
func (r *pgRegistrationRepo) LockActiveByID(ctx context.Context, id string) (*model.Registration, error) {
	return r.get(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE id = $1 AND status = 'registered'
		 FOR UPDATE`,
		id,
	)
}

// LockForUser locks the registration a user holds for an event.
func (r *pgRegistrationRepo) LockForUser(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	return r.get(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1 AND user_id = $2
		 ORDER BY (status = 'registered') DESC, updated_at DESC
		 LIMIT 1
		 FOR UPDATE`,
		eventID, userID,
	)
}

func (r *pgRegistrationRepo) get(ctx context.Context, query string, args ...any) (*model.Registration, error) {
	var reg model.Registration
	if err := r.db.QueryRow(ctx, query, args...).Scan(registrationDest(&reg)...); err != nil {
		if isMissing(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return &reg, nil
}

// ListByEvent returns all registrations for a given event.
func (r *pgRegistrationRepo) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1
		 ORDER BY created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		var reg model.Registration
		if err := rows.Scan(registrationDest(&reg)...); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// ListDueReminders joins active registrations with their upcoming events.
func (r *pgRegistrationRepo) ListDueReminders(ctx context.Context, from, to time.Time, limit int) ([]model.UpcomingReminder, error) {
	rows, err := r.db.Query(ctx,
		`SELECT r.id, r.event_id, r.user_id, r.status, r.attendance, r.attendance_marked_at,
		        r.cancellation_reason, r.cancelled_at, r.reminder_sent_at, r.created_at, r.updated_at,
		        e.id, e.name, e.description, e.location, e.starts_at, e.capacity, e.booked_count, e.created_at
		 FROM registrations r
		 JOIN events e ON e.id = r.event_id
		 WHERE r.status = 'registered'
		   AND r.reminder_sent_at IS NULL
		   AND e.starts_at > $1 AND e.starts_at <= $2
		 ORDER BY e.starts_at ASC
		 LIMIT NULLIF($3::int, 0)`,
		from, to, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()

	var due []model.UpcomingReminder
	for rows.Next() {
		var item model.UpcomingReminder
		e := &item.Event
		dest := append(registrationDest(&item.Registration),
			&e.ID, &e.Name, &e.Description, &e.Location, &e.StartsAt, &e.Capacity, &e.BookedCount, &e.CreatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan due reminder: %w", err)
		}
		due = append(due, item)
	}
	return due, rows.Err()
}

// MarkReminderSent stamps reminder_sent_at so the sweep skips the row next time.
func (r *pgRegistrationRepo) MarkReminderSent(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE registrations SET reminder_sent_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ─── Notifications ───────────────────────────────────────────────────────────

type pgNotificationRepo struct {
	db DBTX
}

// Create inserts a notification.
func (r *pgNotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO notifications (id, user_id, title, message, severity, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.UserID, n.Title, n.Message, n.Severity, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListByUser returns a user's notifications, newest first. A limit of 0
// returns all of them.
func (r *pgNotificationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, title, message, severity, created_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT NULLIF($2::int, 0)`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Severity, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
