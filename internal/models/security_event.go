package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Event types for the security event log
const (
	EventTypeLoginSuccess           = "login_success"
	EventTypeLoginFailed            = "login_failed"
	EventTypeLoginBlocked           = "login_blocked"
	EventTypePasswordResetRequested = "password_reset_requested"
	EventTypePasswordResetCompleted = "password_reset_completed"
	EventTypeAccountLocked          = "account_locked"
	EventTypeAccountUnlocked        = "account_unlocked"
	EventTypeDeviceTrusted          = "device_trusted"
	EventTypeDeviceRevoked          = "device_revoked"
)

// SecurityEvent is an append-only record of a security relevant action.
// Only IsSuspicious and SuspiciousReason may change after insert.
type SecurityEvent struct {
	ID               string        `db:"id" json:"id"`
	AccountID        *string       `db:"account_id" json:"account_id,omitempty"`
	EventType        string        `db:"event_type" json:"event_type"`
	IPAddress        string        `db:"ip_address" json:"ip_address"`
	Country          string        `db:"country" json:"country,omitempty"`
	City             string        `db:"city" json:"city,omitempty"`
	DeviceType       string        `db:"device_type" json:"device_type,omitempty"`
	Browser          string        `db:"browser" json:"browser,omitempty"`
	OS               string        `db:"os" json:"os,omitempty"`
	IsSuccessful     bool          `db:"is_successful" json:"is_successful"`
	IsSuspicious     bool          `db:"is_suspicious" json:"is_suspicious"`
	SuspiciousReason *string       `db:"suspicious_reason" json:"suspicious_reason,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	Extra            EventMetadata `db:"extra" json:"extra,omitempty"`
}

// AccountKey returns the account id or an empty string for anonymous events
func (e *SecurityEvent) AccountKey() string {
	if e.AccountID == nil {
		return ""
	}
	return *e.AccountID
}

// IsFailedLogin reports whether the event is an unsuccessful login
func (e *SecurityEvent) IsFailedLogin() bool {
	return e.EventType == EventTypeLoginFailed && !e.IsSuccessful
}

// EventMetadata holds additional context for security events
type EventMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (m *EventMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = make(EventMetadata)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return ErrBadRequest
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*m = EventMetadata(decoded)
	return nil
}

// Value implements driver.Valuer for JSONB
func (m EventMetadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(m))
}
