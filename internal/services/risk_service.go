package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
)

// Risk factor labels
const (
	FactorNewLocation       = "New location"
	FactorAnonymizedNetwork = "VPN, proxy or Tor network"
	FactorNewDevice         = "New device"
	FactorUnusualHour       = "Unusual login time"
	FactorRecentFailures    = "Multiple recent failed login attempts"
	FactorNewAccount        = "New account"
	FactorCompoundHighRisk  = "Multiple high-risk signals"
	FactorAssessmentError   = "Risk assessment error"
)

const (
	loginHistorySampleLimit  = 500
	minHistoryForHourProfile = 5
)

// LoginHistoryReader reads past login events for an account
type LoginHistoryReader interface {
	ListSuccessfulLogins(ctx context.Context, accountID string, since time.Time, limit int) ([]*models.SecurityEvent, error)
	CountFailedLogins(ctx context.Context, accountID string, since time.Time) (int, error)
}

// AccountReader loads accounts
type AccountReader interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// DeviceTrustChecker answers whether a fingerprint is trusted for an account
type DeviceTrustChecker interface {
	IsTrusted(ctx context.Context, accountID, fingerprint string) (bool, error)
}

// RiskConfig holds the thresholds of the risk signals
type RiskConfig struct {
	ResolverTimeout  time.Duration
	UnusualHourStart int
	UnusualHourEnd   int
	FailureLookback  time.Duration
	FailureThreshold int
	NewAccountAge    time.Duration
	HistoryLookback  time.Duration
}

// RiskService scores a login attempt from location, device, timing, failure
// and account-age signals. Any internal error yields Medium, never Low.
type RiskService struct {
	accounts AccountReader
	history  LoginHistoryReader
	devices  DeviceTrustChecker
	resolver LocationResolver
	config   RiskConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewRiskService(accounts AccountReader, history LoginHistoryReader, devices DeviceTrustChecker, resolver LocationResolver, config RiskConfig, logger *slog.Logger) *RiskService {
	return &RiskService{
		accounts: accounts,
		history:  history,
		devices:  devices,
		resolver: resolver,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Assess evaluates all signals for the attempt and returns a finalized assessment
func (s *RiskService) Assess(ctx context.Context, accountID, ip, userAgent string) *models.RiskAssessment {
	assessment := &models.RiskAssessment{Fingerprint: Fingerprint(userAgent, ip)}

	if err := s.evaluate(ctx, assessment, accountID, ip); err != nil {
		return s.failSafeAssessment(ctx, accountID, assessment.Fingerprint, err)
	}

	assessment.Finalize()

	s.logger.InfoContext(ctx, "risk assessed",
		slog.String("account_id", accountID),
		slog.String("risk_level", assessment.RiskLevel.String()),
		slog.Any("risk_factors", assessment.RiskFactors),
	)
	return assessment
}

// failSafeAssessment replaces a partial assessment with Medium risk when evaluation fails
func (s *RiskService) failSafeAssessment(ctx context.Context, accountID, fingerprint string, err error) *models.RiskAssessment {
	s.logger.ErrorContext(ctx, "risk assessment failed, defaulting to medium risk",
		slog.String("account_id", accountID),
		slog.Any("error", err),
	)

	assessment := &models.RiskAssessment{
		RiskLevel:   models.RiskMedium,
		RiskFactors: []string{FactorAssessmentError},
		Fingerprint: fingerprint,
	}
	assessment.Finalize()
	return assessment
}

func (s *RiskService) evaluate(ctx context.Context, a *models.RiskAssessment, accountID, ip string) error {
	now := s.now()
	highSignals := 0

	resolveCtx, cancel := context.WithTimeout(ctx, s.config.ResolverTimeout)
	location, err := s.resolver.Resolve(resolveCtx, ip)
	cancel()
	if err != nil {
		return fmt.Errorf("location resolution failed: %w", err)
	}
	a.Location = location

	history, err := s.history.ListSuccessfulLogins(ctx, accountID, now.Add(-s.config.HistoryLookback), loginHistorySampleLimit)
	if err != nil {
		return fmt.Errorf("failed to load login history: %w", err)
	}

	// Location
	if location != nil && !location.IsLocal() && location.Country != "" &&
		len(history) > 0 && !seenCountry(history, location.Country) {
		a.AddFactor(FactorNewLocation, models.RiskMedium)
	}
	if location.IsAnonymized() {
		a.AddFactor(FactorAnonymizedNetwork, models.RiskHigh)
		highSignals++
	}

	// Device
	trusted, err := s.devices.IsTrusted(ctx, accountID, a.Fingerprint)
	if err != nil {
		return fmt.Errorf("failed to check device trust: %w", err)
	}
	if !trusted {
		a.AddFactor(FactorNewDevice, models.RiskMedium)
		a.RequiresDeviceVerification = true
	}

	// Time of day
	if s.unusualHour(now, history) {
		a.AddFactor(FactorUnusualHour, models.RiskMedium)
	}

	// Recent failures
	failures, err := s.history.CountFailedLogins(ctx, accountID, now.Add(-s.config.FailureLookback))
	if err != nil {
		return fmt.Errorf("failed to count failed logins: %w", err)
	}
	if failures >= s.config.FailureThreshold {
		a.AddFactor(FactorRecentFailures, models.RiskHigh)
		highSignals++
	}

	// Account age
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	if now.Sub(account.CreatedAt) < s.config.NewAccountAge {
		a.AddFactor(FactorNewAccount, models.RiskMedium)
	}

	if highSignals >= 2 {
		a.AddFactor(FactorCompoundHighRisk, models.RiskCritical)
	}

	return nil
}

func seenCountry(history []*models.SecurityEvent, country string) bool {
	for _, e := range history {
		if e.Country == country {
			return true
		}
	}
	return false
}

// unusualHour reports whether now falls in the configured band (UTC) and the
// account's own history does not show it logs in at that hour routinely.
func (s *RiskService) unusualHour(now time.Time, history []*models.SecurityEvent) bool {
	hour := now.UTC().Hour()
	if hour < s.config.UnusualHourStart || hour >= s.config.UnusualHourEnd {
		return false
	}

	if len(history) < minHistoryForHourProfile {
		return true
	}

	sameHour := 0
	for _, e := range history {
		if e.CreatedAt.UTC().Hour() == hour {
			sameHour++
		}
	}
	// Habitual if at least 10% of past logins happened in this hour
	return sameHour*10 < len(history)
}
