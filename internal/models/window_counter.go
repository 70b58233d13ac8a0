package models

import "time"

// Rate limit categories
const (
	WindowCategoryResetEmail = "reset_email"
	WindowCategoryResetIP    = "reset_ip"
)

// WindowCounter is a sliding-window attempt counter keyed by (identifier, category)
type WindowCounter struct {
	Identifier    string     `db:"identifier"`
	Category      string     `db:"category"`
	Count         int        `db:"count"`
	WindowStartAt time.Time  `db:"window_start_at"`
	LastAttemptAt time.Time  `db:"last_attempt_at"`
	BlockedUntil  *time.Time `db:"blocked_until"`
}

// WindowExpired reports whether the window started more than windowLength before now
func (c *WindowCounter) WindowExpired(now time.Time, windowLength time.Duration) bool {
	return now.Sub(c.WindowStartAt) > windowLength
}

// IsBlocked reports whether a block is set and still in force at now
func (c *WindowCounter) IsBlocked(now time.Time) bool {
	return c.BlockedUntil != nil && now.Before(*c.BlockedUntil)
}
