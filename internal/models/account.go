package models

import "time"

// Account is the subset of a member account the security engine needs
type Account struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Login outcomes
const (
	LoginOutcomeAllowed      = "allowed"
	LoginOutcomeChallenge    = "challenge"
	LoginOutcomeDenied       = "denied"
	LoginOutcomeLocked       = "locked"
	LoginOutcomeManualReview = "manual_review"
)

// LoginDecision is the result of evaluating a login attempt end to end
type LoginDecision struct {
	Outcome    string          `json:"outcome"`
	AccountID  string          `json:"account_id,omitempty"`
	Risk       *RiskAssessment `json:"risk,omitempty"`
	DeviceID   string          `json:"device_id,omitempty"`
	RetryAfter *time.Duration  `json:"-"`
}
