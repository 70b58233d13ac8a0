package models

import "time"

// ResetToken is a stored password-reset token. Only the SHA-256 hash of the bearer value is kept.
type ResetToken struct {
	ID        string    `db:"id" json:"id"`
	AccountID string    `db:"account_id" json:"account_id"`
	TokenHash string    `db:"token_hash" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Used      bool      `db:"used" json:"used"`
	IPAddress string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent string    `db:"user_agent" json:"user_agent,omitempty"`
}

// IsValid checks the token is unused and not past its expiry at now
func (t *ResetToken) IsValid(now time.Time) bool {
	return !t.Used && !now.After(t.ExpiresAt)
}
