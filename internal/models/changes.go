package models

import (
	"strconv"
	"time"
)

// FieldChange describes one field that differs between two versions of an entity
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

type fieldPair struct {
	name     string
	old, new string
}

func collectChanges(pairs []fieldPair) []FieldChange {
	changes := make([]FieldChange, 0, len(pairs))
	for _, p := range pairs {
		if p.old != p.new {
			changes = append(changes, FieldChange{Field: p.name, OldValue: p.old, NewValue: p.new})
		}
	}
	return changes
}

// DiffLockout compares the administratively relevant fields of two lockout records.
// A nil old record is treated as the zero record.
func DiffLockout(old, updated *LockoutRecord) []FieldChange {
	if old == nil {
		old = &LockoutRecord{}
	}
	if updated == nil {
		updated = &LockoutRecord{}
	}
	return collectChanges([]fieldPair{
		{"failed_attempts", strconv.Itoa(old.FailedAttempts), strconv.Itoa(updated.FailedAttempts)},
		{"locked_until", formatTimePtr(old.LockedUntil), formatTimePtr(updated.LockedUntil)},
		{"lockout_reason", formatStringPtr(old.LockoutReason), formatStringPtr(updated.LockoutReason)},
	})
}

// DiffDevice compares the mutable fields of two device versions
func DiffDevice(old, updated *Device) []FieldChange {
	if old == nil {
		old = &Device{}
	}
	if updated == nil {
		updated = &Device{}
	}
	return collectChanges([]fieldPair{
		{"is_trusted", strconv.FormatBool(old.IsTrusted), strconv.FormatBool(updated.IsTrusted)},
		{"is_active", strconv.FormatBool(old.IsActive), strconv.FormatBool(updated.IsActive)},
		{"last_used_ip", old.LastUsedIP, updated.LastUsedIP},
		{"total_logins", strconv.Itoa(old.TotalLogins), strconv.Itoa(updated.TotalLogins)},
	})
}

// ChangesMetadata converts changes into event metadata
func ChangesMetadata(changes []FieldChange) EventMetadata {
	out := make([]interface{}, 0, len(changes))
	for _, c := range changes {
		out = append(out, map[string]interface{}{
			"field": c.Field,
			"old":   c.OldValue,
			"new":   c.NewValue,
		})
	}
	return EventMetadata{"changes": out}
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatStringPtr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
