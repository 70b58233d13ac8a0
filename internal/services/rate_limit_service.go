package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/pkg/logger"
)

// RateLimitConfig holds the password-reset throttling limits
type RateLimitConfig struct {
	EmailMax int
	IPMax    int
	Window   time.Duration
}

// RateLimitResult is the outcome of CheckRateLimit
type RateLimitResult struct {
	Allowed    bool          `json:"allowed"`
	Message    string        `json:"message,omitempty"`
	RetryAfter time.Duration `json:"-"`
	Category   string        `json:"-"`
}

// RateLimitService throttles password-reset requests per email and per source IP
type RateLimitService struct {
	store  WindowCounterStore
	email  *ClockedWindowCounter
	ip     *ClockedWindowCounter
	config RateLimitConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(store WindowCounterStore, config RateLimitConfig, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		store:  store,
		email:  NewClockedWindowCounter(store, config.EmailMax, config.Window, logger),
		ip:     NewClockedWindowCounter(store, config.IPMax, config.Window, logger),
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CheckRateLimit evaluates the email category and then the IP category.
// The first blocked category decides the message. Store errors fail open.
func (s *RateLimitService) CheckRateLimit(ctx context.Context, email, ipAddress string) RateLimitResult {
	now := s.now()

	checks := []struct {
		counter    *ClockedWindowCounter
		identifier string
		category   string
	}{
		{s.email, normalizeEmail(email), models.WindowCategoryResetEmail},
		{s.ip, ipAddress, models.WindowCategoryResetIP},
	}

	for _, c := range checks {
		if c.identifier == "" {
			continue
		}

		decision, err := c.counter.Check(ctx, c.identifier, c.category, now)
		if err != nil {
			// Fail open: an unreachable store must not block every password reset
			s.logger.ErrorContext(ctx, "rate limit check failed, allowing request",
				slog.String("category", c.category),
				slog.Any("error", err),
			)
			continue
		}

		if !decision.Allowed {
			s.logger.WarnContext(ctx, "password reset rate limited",
				slog.String("category", c.category),
				slog.String("email", logger.SanitizedEmail(email)),
				slog.String("ip_address", ipAddress),
				slog.Duration("retry_after", decision.RetryAfter),
			)
			return RateLimitResult{
				Message:    retryMessage(decision.RetryAfter),
				RetryAfter: decision.RetryAfter,
				Category:   c.category,
			}
		}
	}

	return RateLimitResult{Allowed: true}
}

// RecordAttempt counts a request on both categories whatever its outcome, including
// requests for emails with no account, so throttling does not reveal which emails exist.
func (s *RateLimitService) RecordAttempt(ctx context.Context, email, ipAddress string) {
	now := s.now()

	if id := normalizeEmail(email); id != "" {
		if err := s.email.Record(ctx, id, models.WindowCategoryResetEmail, now); err != nil {
			s.logger.ErrorContext(ctx, "failed to record reset attempt",
				slog.String("category", models.WindowCategoryResetEmail),
				slog.Any("error", err),
			)
		}
	}

	if ipAddress != "" {
		if err := s.ip.Record(ctx, ipAddress, models.WindowCategoryResetIP, now); err != nil {
			s.logger.ErrorContext(ctx, "failed to record reset attempt",
				slog.String("category", models.WindowCategoryResetIP),
				slog.Any("error", err),
			)
		}
	}
}

// Cleanup deletes counters whose window started more than two window lengths ago
func (s *RateLimitService) Cleanup(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-2 * s.config.Window)

	deleted, err := s.store.DeleteStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up rate limit counters: %w", err)
	}
	return deleted, nil
}

// retryMessage renders the delay in whole minutes, rounded up
func retryMessage(retryAfter time.Duration) string {
	minutes := int(math.Ceil(retryAfter.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("Too many password reset requests. Please try again in %d %s.", minutes, unit)
}
