package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/models"
	pkgauth "github.com/BradenHooton/sentinel/pkg/auth"
	"github.com/BradenHooton/sentinel/pkg/logger"
)

// AccountFinder looks accounts up by login email
type AccountFinder interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
}

// LockoutGate is the lockout surface a login needs
type LockoutGate interface {
	Status(ctx context.Context, accountID string) models.LockoutStatus
	RecordFailedAttempt(ctx context.Context, accountID, ipAddress, userAgent string) models.LockoutStatus
	ResetFailedAttempts(ctx context.Context, accountID string)
}

// RiskAssessor scores a login attempt
type RiskAssessor interface {
	Assess(ctx context.Context, accountID, ip, userAgent string) *models.RiskAssessment
}

// DeviceRegistrar records device sightings
type DeviceRegistrar interface {
	GetOrCreate(ctx context.Context, accountID, userAgent, ip string) (*models.Device, error)
}

// LoginService runs a login attempt through the lockout gate, password check and
// risk assessment, and records the outcome in the security event log
type LoginService struct {
	accounts AccountFinder
	lockout  LockoutGate
	risk     RiskAssessor
	devices  DeviceRegistrar
	events   EventRecorder
	notifier Notifier
	timing   *auth.TimingDelay
	logger   *slog.Logger
	now      func() time.Time
	pending  sync.WaitGroup
}

// notifyTimeout bounds one background notification delivery
const notifyTimeout = 10 * time.Second

func NewLoginService(accounts AccountFinder, lockout LockoutGate, risk RiskAssessor, devices DeviceRegistrar,
	events EventRecorder, notifier Notifier, timing *auth.TimingDelay, logger *slog.Logger) *LoginService {
	if events == nil {
		events = NopEventRecorder{}
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &LoginService{
		accounts: accounts,
		lockout:  lockout,
		risk:     risk,
		devices:  devices,
		events:   events,
		notifier: notifier,
		timing:   timing,
		logger:   logger,
		now:      time.Now,
	}
}

// outcomeFor maps a risk level to the login outcome
func outcomeFor(level models.RiskLevel) string {
	switch {
	case level >= models.RiskCritical:
		return models.LoginOutcomeManualReview
	case level >= models.RiskMedium:
		return models.LoginOutcomeChallenge
	default:
		return models.LoginOutcomeAllowed
	}
}

// Evaluate decides a login attempt. Unknown emails and wrong passwords produce the
// same denied outcome. Only infrastructure failures on the account lookup return an error.
func (s *LoginService) Evaluate(ctx context.Context, email, password, ip, userAgent string) (*models.LoginDecision, error) {
	start := time.Now()
	info := ParseUserAgent(userAgent)

	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, models.ErrNotFound) {
		s.logger.InfoContext(ctx, "login attempt for unknown account",
			slog.String("email", logger.SanitizedEmail(email)),
			slog.String("ip_address", ip),
		)
		s.recordLogin(ctx, "", models.EventTypeLoginFailed, false, ip, info, nil, models.EventMetadata{"reason": "unknown account"})
		s.timing.WaitFrom(ctx, start)
		return &models.LoginDecision{Outcome: models.LoginOutcomeDenied}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	if status := s.lockout.Status(ctx, account.ID); status.IsLockedOut {
		s.recordLogin(ctx, account.ID, models.EventTypeLoginBlocked, false, ip, info, nil, models.EventMetadata{"reason": "account locked"})
		s.timing.WaitFrom(ctx, start)
		return s.lockedDecision(account.ID, status), nil
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, password); err != nil {
		s.recordLogin(ctx, account.ID, models.EventTypeLoginFailed, false, ip, info, nil, models.EventMetadata{"reason": "invalid password"})
		status := s.lockout.RecordFailedAttempt(ctx, account.ID, ip, userAgent)
		s.timing.WaitFrom(ctx, start)
		if status.IsLockedOut {
			return s.lockedDecision(account.ID, status), nil
		}
		return &models.LoginDecision{Outcome: models.LoginOutcomeDenied}, nil
	}

	s.lockout.ResetFailedAttempts(ctx, account.ID)

	// Assess before registering the device so a first sighting counts as new
	assessment := s.risk.Assess(ctx, account.ID, ip, userAgent)

	decision := &models.LoginDecision{
		Outcome:   outcomeFor(assessment.RiskLevel),
		AccountID: account.ID,
		Risk:      assessment,
	}

	device, err := s.devices.GetOrCreate(ctx, account.ID, userAgent, ip)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to register device",
			slog.String("account_id", account.ID),
			slog.Any("error", err),
		)
	} else {
		decision.DeviceID = device.ID
	}

	s.recordLogin(ctx, account.ID, models.EventTypeLoginSuccess, true, ip, info, assessment.Location, models.EventMetadata{
		"risk_level":   assessment.RiskLevel.String(),
		"risk_factors": assessment.RiskFactors,
		"outcome":      decision.Outcome,
	})

	if assessment.RiskLevel >= models.RiskHigh {
		s.notifyAsync(ctx, account.ID,
			fmt.Sprintf("%s risk sign-in: %v", assessment.RiskLevel, assessment.RiskFactors), ip, assessment.Location)
	}

	return decision, nil
}

// notifyAsync delivers off the request path. The request context's values are kept
// but its cancellation is not, so a client disconnect does not drop the alert.
func (s *LoginService) notifyAsync(ctx context.Context, accountID, description, ip string, location *models.Location) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		s.notifier.NotifyUnusualActivity(bgCtx, accountID, description, ip, location)
	}()
}

// Wait blocks until every notification already dispatched has been delivered
func (s *LoginService) Wait() {
	s.pending.Wait()
}

func (s *LoginService) lockedDecision(accountID string, status models.LockoutStatus) *models.LoginDecision {
	decision := &models.LoginDecision{Outcome: models.LoginOutcomeLocked, AccountID: accountID}
	if status.LockedUntil != nil {
		retry := status.LockedUntil.Sub(s.now())
		decision.RetryAfter = &retry
	}
	return decision
}

func (s *LoginService) recordLogin(ctx context.Context, accountID, eventType string, success bool, ip string,
	info models.DeviceInfo, location *models.Location, extra models.EventMetadata) {
	event := &models.SecurityEvent{
		AccountID:    accountRef(accountID),
		EventType:    eventType,
		IPAddress:    ip,
		DeviceType:   info.DeviceType,
		Browser:      info.Browser,
		OS:           info.OS,
		IsSuccessful: success,
		CreatedAt:    s.now(),
		Extra:        extra,
	}
	if location != nil {
		event.Country = location.Country
		event.City = location.City
	}
	s.events.Record(ctx, event)
}
