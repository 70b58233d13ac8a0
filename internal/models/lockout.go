package models

import "time"

// LockoutRecord tracks failed logins and timed lockout for one account
type LockoutRecord struct {
	AccountID      string     `db:"account_id" json:"account_id"`
	FailedAttempts int        `db:"failed_attempts" json:"failed_attempts"`
	LastAttemptAt  *time.Time `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	LockedUntil    *time.Time `db:"locked_until" json:"locked_until,omitempty"`
	LockoutReason  *string    `db:"lockout_reason" json:"lockout_reason,omitempty"`
	LastIP         string     `db:"last_ip" json:"last_ip,omitempty"`
	LastUserAgent  string     `db:"last_user_agent" json:"last_user_agent,omitempty"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// IsLockedOut reports whether the lock is set and still in the future
func (r *LockoutRecord) IsLockedOut(now time.Time) bool {
	return r.LockedUntil != nil && r.LockedUntil.After(now)
}

// LockExpired reports whether a lock was set but has elapsed
func (r *LockoutRecord) LockExpired(now time.Time) bool {
	return r.LockedUntil != nil && !r.LockedUntil.After(now)
}

// ClearLock resets the record to an unlocked state with no failures
func (r *LockoutRecord) ClearLock() {
	r.FailedAttempts = 0
	r.LockedUntil = nil
	r.LockoutReason = nil
}

// LockoutStatus is the externally visible lockout state of an account
type LockoutStatus struct {
	AccountID         string     `json:"account_id"`
	IsLockedOut       bool       `json:"is_locked_out"`
	FailedAttempts    int        `json:"failed_attempts"`
	RemainingAttempts int        `json:"remaining_attempts"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	Reason            *string    `json:"reason,omitempty"`
}
