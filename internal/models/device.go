package models

import "time"

// Device is a client device remembered for an account
type Device struct {
	ID             string    `db:"id" json:"id"`
	AccountID      string    `db:"account_id" json:"account_id"`
	Fingerprint    string    `db:"fingerprint" json:"fingerprint"`
	DeviceType     string    `db:"device_type" json:"device_type"`
	Browser        string    `db:"browser" json:"browser"`
	BrowserVersion string    `db:"browser_version" json:"browser_version"`
	OS             string    `db:"os" json:"os"`
	OSVersion      string    `db:"os_version" json:"os_version"`
	LastUsedIP     string    `db:"last_used_ip" json:"last_used_ip"`
	FirstSeenAt    time.Time `db:"first_seen_at" json:"first_seen_at"`
	LastSeenAt     time.Time `db:"last_seen_at" json:"last_seen_at"`
	TotalLogins    int       `db:"total_logins" json:"total_logins"`
	IsTrusted      bool      `db:"is_trusted" json:"is_trusted"`
	IsActive       bool      `db:"is_active" json:"is_active"`
}

// DeviceInfo is the result of parsing a user-agent string
type DeviceInfo struct {
	DeviceType     string `json:"device_type"`
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browser_version"`
	OS             string `json:"os"`
	OSVersion      string `json:"os_version"`
}
