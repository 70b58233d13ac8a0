package models

import (
	"testing"
	"time"
)

func TestDiffLockout_ReportsOnlyChangedFields(t *testing.T) {
	until := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reason := "manual lock"

	old := &LockoutRecord{AccountID: "42", FailedAttempts: 2}
	updated := &LockoutRecord{AccountID: "42", FailedAttempts: 2, LockedUntil: &until, LockoutReason: &reason}

	changes := DiffLockout(old, updated)

	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d: %+v", len(changes), changes)
	}
	if changes[0].Field != "locked_until" || changes[0].NewValue != "2026-03-01T12:00:00Z" {
		t.Errorf("unexpected locked_until change: %+v", changes[0])
	}
	if changes[1].Field != "lockout_reason" || changes[1].OldValue != "" || changes[1].NewValue != reason {
		t.Errorf("unexpected lockout_reason change: %+v", changes[1])
	}
}

func TestDiffLockout_NilOldTreatedAsZero(t *testing.T) {
	changes := DiffLockout(nil, &LockoutRecord{FailedAttempts: 1})

	if len(changes) != 1 || changes[0].Field != "failed_attempts" {
		t.Errorf("expected a single failed_attempts change, got %+v", changes)
	}
}

func TestDiffDevice_TrustElevation(t *testing.T) {
	old := &Device{ID: "d1", IsActive: true}
	updated := &Device{ID: "d1", IsActive: true, IsTrusted: true}

	changes := DiffDevice(old, updated)

	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0] != (FieldChange{Field: "is_trusted", OldValue: "false", NewValue: "true"}) {
		t.Errorf("unexpected change: %+v", changes[0])
	}
}

func TestDiffDevice_IdenticalHasNoChanges(t *testing.T) {
	d := &Device{ID: "d1", IsActive: true, TotalLogins: 3}
	if changes := DiffDevice(d, d); len(changes) != 0 {
		t.Errorf("expected no changes, got %+v", changes)
	}
}

func TestRiskLevel_RecommendedAction(t *testing.T) {
	tests := []struct {
		level    RiskLevel
		expected string
	}{
		{RiskLow, ActionAllow},
		{RiskMedium, ActionAdditionalVerify},
		{RiskHigh, ActionRequireMFA},
		{RiskCritical, ActionBlockManualReview},
	}

	for _, tt := range tests {
		if got := tt.level.RecommendedAction(); got != tt.expected {
			t.Errorf("%s: got %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestRiskAssessment_FinalizeSetsTwoFactor(t *testing.T) {
	a := &RiskAssessment{}
	a.Finalize()
	if a.RequiresTwoFactor || a.RecommendedAction != ActionAllow || a.RiskFactors == nil {
		t.Errorf("low risk should not require two factor: %+v", a)
	}

	a.AddFactor("New device", RiskMedium)
	a.AddFactor("New account", RiskLow)
	a.Finalize()
	if a.RiskLevel != RiskMedium || !a.RequiresTwoFactor {
		t.Errorf("expected medium risk with two factor, got %+v", a)
	}
}

func TestWindowCounter_Expiry(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	c := &WindowCounter{WindowStartAt: start}

	if c.WindowExpired(start.Add(time.Hour), time.Hour) {
		t.Error("window should still be open exactly at its length")
	}
	if !c.WindowExpired(start.Add(time.Hour+time.Second), time.Hour) {
		t.Error("window should be expired after its length")
	}
}

func TestResetToken_IsValid(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	token := &ResetToken{ExpiresAt: now}

	if !token.IsValid(now) {
		t.Error("token should be valid at exactly its expiry")
	}
	if token.IsValid(now.Add(time.Second)) {
		t.Error("token should be invalid after expiry")
	}
	token.Used = true
	if token.IsValid(now.Add(-time.Minute)) {
		t.Error("used token should be invalid")
	}
}
