// Package model defines the core domain types for the community events system.
package model

import "time"

// Event represents a community event created by an administrator.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at"`
	Capacity    int       `json:"capacity"`
	BookedCount int       `json:"booked_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsFull returns true when a capacity is set and no seats remain.
func (e *Event) IsFull() bool {
	return e.Capacity > 0 && e.BookedCount >= e.Capacity
}

// HasStarted reports whether the event start lies strictly before now.
func (e *Event) HasStarted(now time.Time) bool {
	return e.StartsAt.Before(now)
}

// RegistrationStatus is the cancel sub-lifecycle of a registration.
type RegistrationStatus string

const (
	RegistrationStatusRegistered RegistrationStatus = "registered"
	RegistrationStatusCancelled  RegistrationStatus = "cancelled"
)

// Attendance is the admin-recorded outcome of a registration.
type Attendance string

const (
	AttendancePending Attendance = "pending"
	AttendancePresent Attendance = "present"
	AttendanceAbsent  Attendance = "absent"
)

// Valid reports whether a is one of the known attendance values.
func (a Attendance) Valid() bool {
	switch a {
	case AttendancePending, AttendancePresent, AttendanceAbsent:
		return true
	}
	return false
}

// Registration represents a user's registration for an event.
type Registration struct {
	ID                 string             `json:"id"`
	EventID            string             `json:"event_id"`
	UserID             string             `json:"user_id"`
	Status             RegistrationStatus `json:"status"`
	Attendance         Attendance         `json:"attendance"`
	AttendanceMarkedAt *time.Time         `json:"attendance_marked_at,omitempty"`
	CancellationReason string             `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty"`
	ReminderSentAt     *time.Time         `json:"reminder_sent_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// IsActive reports whether the registration currently holds a seat.
func (r *Registration) IsActive() bool {
	return r.Status == RegistrationStatusRegistered
}

// Reactivate turns a cancelled registration back into an active one.
func (r *Registration) Reactivate(now time.Time) {
	r.Status = RegistrationStatusRegistered
	r.CancellationReason = ""
	r.CancelledAt = nil
	r.UpdatedAt = now
}

// Cancel records the cancellation of an active registration.
func (r *Registration) Cancel(reason string, now time.Time) {
	r.Status = RegistrationStatusCancelled
	r.CancellationReason = reason
	r.CancelledAt = &now
	r.UpdatedAt = now
}

// UpcomingReminder pairs an active registration with the event it is for.
type UpcomingReminder struct {
	Registration Registration
	Event        Event
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at"`
	Capacity    int       `json:"capacity"`
}

// CreateUserRequest is the payload for creating a resident account.
type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RegisterRequest is the payload for registering for an event.
type RegisterRequest struct {
	UserID string `json:"user_id"`
}

// UnregisterRequest is the payload for cancelling a registration.
type UnregisterRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// AttendanceRequest is the payload for marking attendance.
type AttendanceRequest struct {
	Attendance Attendance `json:"attendance"`
}

// ErrorResponse is a standard JSON error envelope.
// Kind is a machine-readable error classification.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Kind    string         `json:"kind"`
	Details map[string]any `json:"details,omitempty"`
}
