package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
)

// LockoutRepository persists per-account lockout records
type LockoutRepository interface {
	Get(ctx context.Context, accountID string) (*models.LockoutRecord, error)
	Update(ctx context.Context, accountID string, mutate func(*models.LockoutRecord)) (*models.LockoutRecord, error)
}

// LockoutConfig holds lockout thresholds
type LockoutConfig struct {
	Enabled           bool
	MaxFailedAttempts int
	Window            time.Duration
	Duration          time.Duration
}

// LockoutService tracks failed logins per account and applies timed lockouts.
// Every read path fails open: an infrastructure error never locks anyone out.
type LockoutService struct {
	repo   LockoutRepository
	events EventRecorder
	config LockoutConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(repo LockoutRepository, events EventRecorder, config LockoutConfig, logger *slog.Logger) *LockoutService {
	if events == nil {
		events = NopEventRecorder{}
	}
	return &LockoutService{
		repo:   repo,
		events: events,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// unlockedStatus is the state reported for accounts with no effective lockout
func (s *LockoutService) unlockedStatus(accountID string) models.LockoutStatus {
	return models.LockoutStatus{
		AccountID:         accountID,
		RemainingAttempts: s.config.MaxFailedAttempts,
	}
}

// failOpen logs a persistence error and reports the account as not locked
func (s *LockoutService) failOpen(ctx context.Context, op, accountID string, err error) models.LockoutStatus {
	s.logger.ErrorContext(ctx, "lockout store unavailable, failing open",
		slog.String("operation", op),
		slog.String("account_id", accountID),
		slog.Any("error", err),
	)
	return s.unlockedStatus(accountID)
}

// Status returns the effective lockout state at the current time
func (s *LockoutService) Status(ctx context.Context, accountID string) models.LockoutStatus {
	if !s.config.Enabled {
		return s.unlockedStatus(accountID)
	}

	rec, err := s.repo.Get(ctx, accountID)
	if errors.Is(err, models.ErrNotFound) {
		return s.unlockedStatus(accountID)
	}
	if err != nil {
		return s.failOpen(ctx, "status", accountID, err)
	}

	return s.statusOf(rec, s.now())
}

func (s *LockoutService) statusOf(rec *models.LockoutRecord, now time.Time) models.LockoutStatus {
	status := s.unlockedStatus(rec.AccountID)

	if rec.IsLockedOut(now) {
		status.IsLockedOut = true
		status.FailedAttempts = rec.FailedAttempts
		status.RemainingAttempts = 0
		status.LockedUntil = rec.LockedUntil
		status.Reason = rec.LockoutReason
		return status
	}

	// Expired locks and failures older than the window no longer count
	if rec.LockExpired(now) || s.outsideWindow(rec, now) {
		return status
	}

	status.FailedAttempts = rec.FailedAttempts
	if remaining := s.config.MaxFailedAttempts - rec.FailedAttempts; remaining > 0 {
		status.RemainingAttempts = remaining
	} else {
		status.RemainingAttempts = 0
	}
	return status
}

func (s *LockoutService) outsideWindow(rec *models.LockoutRecord, now time.Time) bool {
	return rec.LastAttemptAt != nil && now.Sub(*rec.LastAttemptAt) > s.config.Window
}

// IsLockedOut reports whether the account is currently locked
func (s *LockoutService) IsLockedOut(ctx context.Context, accountID string) bool {
	return s.Status(ctx, accountID).IsLockedOut
}

// RemainingLockout returns the time left on an active lockout, or nil
func (s *LockoutService) RemainingLockout(ctx context.Context, accountID string) *time.Duration {
	status := s.Status(ctx, accountID)
	if !status.IsLockedOut || status.LockedUntil == nil {
		return nil
	}
	remaining := status.LockedUntil.Sub(s.now())
	return &remaining
}

// RecordFailedAttempt counts a failed login. Attempts made while the account is
// locked are not counted. Reaching the threshold locks the account.
func (s *LockoutService) RecordFailedAttempt(ctx context.Context, accountID, ipAddress, userAgent string) models.LockoutStatus {
	if !s.config.Enabled {
		return s.unlockedStatus(accountID)
	}

	now := s.now()
	var newlyLocked bool

	mutate := func(rec *models.LockoutRecord) {
		newlyLocked = false
		if rec.IsLockedOut(now) {
			return
		}
		if rec.LockExpired(now) {
			rec.ClearLock()
		}
		if s.outsideWindow(rec, now) {
			rec.FailedAttempts = 0
		}

		rec.FailedAttempts++
		rec.LastAttemptAt = &now
		rec.LastIP = ipAddress
		rec.LastUserAgent = userAgent

		if rec.FailedAttempts >= s.config.MaxFailedAttempts {
			until := now.Add(s.config.Duration)
			reason := fmt.Sprintf("Too many failed login attempts (%d)", rec.FailedAttempts)
			rec.LockedUntil = &until
			rec.LockoutReason = &reason
			newlyLocked = true
		}
	}

	rec, err := s.repo.Update(ctx, accountID, mutate)
	if errors.Is(err, models.ErrConflict) {
		rec, err = s.repo.Update(ctx, accountID, mutate)
	}
	if err != nil {
		return s.failOpen(ctx, "record_failed_attempt", accountID, err)
	}

	if newlyLocked {
		s.logger.WarnContext(ctx, "account locked after failed attempts",
			slog.String("account_id", accountID),
			slog.Int("failed_attempts", rec.FailedAttempts),
			slog.Time("locked_until", *rec.LockedUntil),
		)
		s.events.Record(ctx, &models.SecurityEvent{
			AccountID: accountRef(accountID),
			EventType: models.EventTypeAccountLocked,
			IPAddress: ipAddress,
			CreatedAt: now,
			Extra: models.EventMetadata{
				"reason":          *rec.LockoutReason,
				"failed_attempts": rec.FailedAttempts,
				"locked_until":    rec.LockedUntil.Format(time.RFC3339),
			},
		})
	}

	return s.statusOf(rec, now)
}

// ResetFailedAttempts clears failures and any lock after a successful login
func (s *LockoutService) ResetFailedAttempts(ctx context.Context, accountID string) {
	if !s.config.Enabled {
		return
	}

	rec, err := s.repo.Get(ctx, accountID)
	if errors.Is(err, models.ErrNotFound) {
		return
	}
	if err != nil {
		s.failOpen(ctx, "reset_failed_attempts", accountID, err)
		return
	}
	if rec.FailedAttempts == 0 && rec.LockedUntil == nil {
		return
	}

	if _, err := s.repo.Update(ctx, accountID, func(r *models.LockoutRecord) { r.ClearLock() }); err != nil {
		s.failOpen(ctx, "reset_failed_attempts", accountID, err)
	}
}

// Lockout locks an account manually for the given duration
func (s *LockoutService) Lockout(ctx context.Context, accountID string, duration time.Duration, reason string) (*models.LockoutStatus, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("lockout duration must be positive: %w", models.ErrBadRequest)
	}

	now := s.now()
	var changes []models.FieldChange

	mutate := func(rec *models.LockoutRecord) {
		before := *rec
		until := now.Add(duration)
		rec.LockedUntil = &until
		rec.LockoutReason = &reason
		changes = models.DiffLockout(&before, rec)
	}

	rec, err := s.repo.Update(ctx, accountID, mutate)
	if errors.Is(err, models.ErrConflict) {
		rec, err = s.repo.Update(ctx, accountID, mutate)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	s.events.Record(ctx, &models.SecurityEvent{
		AccountID: accountRef(accountID),
		EventType: models.EventTypeAccountLocked,
		CreatedAt: now,
		Extra:     models.ChangesMetadata(changes),
	})

	status := s.statusOf(rec, now)
	return &status, nil
}

// Unlock clears an account's lock and failure count
func (s *LockoutService) Unlock(ctx context.Context, accountID string) (*models.LockoutStatus, error) {
	now := s.now()

	if _, err := s.repo.Get(ctx, accountID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			status := s.unlockedStatus(accountID)
			return &status, nil
		}
		return nil, fmt.Errorf("failed to load lockout record: %w", err)
	}

	var changes []models.FieldChange
	rec, err := s.repo.Update(ctx, accountID, func(r *models.LockoutRecord) {
		before := *r
		r.ClearLock()
		changes = models.DiffLockout(&before, r)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unlock account: %w", err)
	}

	if len(changes) > 0 {
		s.events.Record(ctx, &models.SecurityEvent{
			AccountID:    accountRef(accountID),
			EventType:    models.EventTypeAccountUnlocked,
			IsSuccessful: true,
			CreatedAt:    now,
			Extra:        models.ChangesMetadata(changes),
		})
	}

	status := s.statusOf(rec, now)
	return &status, nil
}
