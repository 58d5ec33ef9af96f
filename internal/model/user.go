package model

import (
	"math"
	"time"
)

// User is a resident account. The penalty fields are owned by the penalty
// engine and are never mutated elsewhere.
type User struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	Penalties        int        `json:"penalties"`
	PenaltyExpiresAt *time.Time `json:"penalty_expires_at"`
	BannedUntil      *time.Time `json:"banned_until"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsBanned reports whether a ban window is set and ends strictly after now.
// It does not look at penalty expiry.
func (u *User) IsBanned(now time.Time) bool {
	return u.BannedUntil != nil && u.BannedUntil.After(now)
}

// PenaltiesExpired reports whether the penalty window has strictly passed.
func (u *User) PenaltiesExpired(now time.Time) bool {
	return u.PenaltyExpiresAt != nil && u.PenaltyExpiresAt.Before(now)
}

// RemainingBanDays returns the whole days left on the ban, rounded up.
// Zero means the user is not banned.
func (u *User) RemainingBanDays(now time.Time) int {
	if !u.IsBanned(now) {
		return 0
	}
	left := u.BannedUntil.Sub(now)
	return int(math.Ceil(left.Hours() / 24))
}

// UserStatus is the read model returned for a user.
type UserStatus struct {
	User
	IsBanned         bool `json:"is_banned"`
	CanRegister      bool `json:"can_register"`
	RemainingBanDays int  `json:"remaining_ban_days"`
}
