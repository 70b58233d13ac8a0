package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/models"
	pkgauth "github.com/BradenHooton/sentinel/pkg/auth"
	"github.com/BradenHooton/sentinel/pkg/logger"
)

// PasswordAccountStore is the account access a password reset needs
type PasswordAccountStore interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// PasswordResetService runs the reset flow: throttle, issue and mail a token, then
// redeem it for a new password
type PasswordResetService struct {
	accounts     PasswordAccountStore
	rateLimit    *RateLimitService
	tokens       *ResetTokenService
	lockout      LockoutGate
	mailer       ResetMailer
	events       EventRecorder
	timing       *auth.TimingDelay
	tokenTTL     time.Duration
	logger       *slog.Logger
	now          func() time.Time
	hashPassword func(string) (string, error)
}

func NewPasswordResetService(accounts PasswordAccountStore, rateLimit *RateLimitService, tokens *ResetTokenService,
	lockout LockoutGate, mailer ResetMailer, events EventRecorder, timing *auth.TimingDelay, tokenTTL time.Duration,
	logger *slog.Logger) *PasswordResetService {
	if mailer == nil {
		mailer = NopMailer{Logger: logger}
	}
	if events == nil {
		events = NopEventRecorder{}
	}
	return &PasswordResetService{
		accounts:     accounts,
		rateLimit:    rateLimit,
		tokens:       tokens,
		lockout:      lockout,
		mailer:       mailer,
		events:       events,
		timing:       timing,
		tokenTTL:     tokenTTL,
		logger:       logger,
		now:          time.Now,
		hashPassword: pkgauth.HashPassword,
	}
}

// Request starts a reset. The answer is the same whether or not the email has an
// account; only throttling is visible to the caller, as models.ErrRateLimitExceeded.
func (s *PasswordResetService) Request(ctx context.Context, email, ip, userAgent string) (RateLimitResult, error) {
	start := time.Now()
	defer s.timing.WaitFrom(ctx, start)

	limit := s.rateLimit.CheckRateLimit(ctx, email, ip)
	if !limit.Allowed {
		s.events.Record(ctx, &models.SecurityEvent{
			EventType: models.EventTypePasswordResetRequested,
			IPAddress: ip,
			CreatedAt: s.now(),
			Extra:     models.EventMetadata{"reason": "rate limited", "category": limit.Category},
		})
		return limit, models.ErrRateLimitExceeded
	}

	// Counted before the account lookup so unknown emails are throttled the same way
	s.rateLimit.RecordAttempt(ctx, email, ip)

	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, models.ErrNotFound) {
		s.logger.InfoContext(ctx, "password reset requested for unknown email",
			slog.String("email", logger.SanitizedEmail(email)),
			slog.String("ip_address", ip),
		)
		return limit, nil
	}
	if err != nil {
		return limit, fmt.Errorf("failed to load account: %w", err)
	}

	token, err := s.tokens.Issue(ctx, account.ID, ip, userAgent)
	if err != nil {
		return limit, err
	}

	if err := s.mailer.SendPasswordReset(ctx, account.Email, token, s.now().Add(s.tokenTTL)); err != nil {
		s.logger.ErrorContext(ctx, "failed to send password reset email",
			slog.String("account_id", account.ID),
			slog.Any("error", err),
		)
	}

	s.events.Record(ctx, &models.SecurityEvent{
		AccountID:    accountRef(account.ID),
		EventType:    models.EventTypePasswordResetRequested,
		IPAddress:    ip,
		IsSuccessful: true,
		CreatedAt:    s.now(),
	})
	return limit, nil
}

// Validate checks a token without consuming it
func (s *PasswordResetService) Validate(ctx context.Context, token string) error {
	_, err := s.tokens.GetValid(ctx, token)
	return err
}

// Complete burns the token and sets the new password. The password is validated
// first so a weak choice does not consume the token.
func (s *PasswordResetService) Complete(ctx context.Context, token, newPassword, ip, userAgent string) error {
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%v: %w", err, models.ErrBadRequest)
	}

	rec, err := s.tokens.Redeem(ctx, token)
	if err != nil {
		return err
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, rec.AccountID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.tokens.InvalidateAll(ctx, rec.AccountID); err != nil {
		s.logger.ErrorContext(ctx, "failed to invalidate remaining reset tokens",
			slog.String("account_id", rec.AccountID),
			slog.Any("error", err),
		)
	}
	s.lockout.ResetFailedAttempts(ctx, rec.AccountID)

	info := ParseUserAgent(userAgent)
	s.events.Record(ctx, &models.SecurityEvent{
		AccountID:    accountRef(rec.AccountID),
		EventType:    models.EventTypePasswordResetCompleted,
		IPAddress:    ip,
		DeviceType:   info.DeviceType,
		Browser:      info.Browser,
		OS:           info.OS,
		IsSuccessful: true,
		CreatedAt:    s.now(),
	})
	return nil
}
