package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
)

// WindowCounterStore persists sliding-window counters keyed by (identifier, category)
type WindowCounterStore interface {
	Get(ctx context.Context, identifier, category string) (*models.WindowCounter, error)
	Update(ctx context.Context, identifier, category string, mutate func(*models.WindowCounter)) (*models.WindowCounter, error)
	// Block sets blockedUntil on an existing counter whose window still starts at
	// windowStart and is not yet blocked. It never creates a row; false means nothing matched.
	Block(ctx context.Context, identifier, category string, windowStart, blockedUntil time.Time) (bool, error)
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// WindowDecision is the outcome of ClockedWindowCounter.Check
type WindowDecision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// ClockedWindowCounter allows at most maxAttempts recorded attempts per window.
// Time is always passed in so callers own the clock.
type ClockedWindowCounter struct {
	store       WindowCounterStore
	maxAttempts int
	window      time.Duration
	logger      *slog.Logger
}

func NewClockedWindowCounter(store WindowCounterStore, maxAttempts int, window time.Duration, logger *slog.Logger) *ClockedWindowCounter {
	return &ClockedWindowCounter{
		store:       store,
		maxAttempts: maxAttempts,
		window:      window,
		logger:      logger,
	}
}

// fresh reports whether the stored window no longer applies at now
func (c *ClockedWindowCounter) fresh(wc *models.WindowCounter, now time.Time) bool {
	if wc.WindowExpired(now, c.window) {
		return true
	}
	return wc.BlockedUntil != nil && !wc.IsBlocked(now)
}

// Check evaluates the counter without recording an attempt. Once the threshold is
// reached the block is persisted until the end of the current window.
func (c *ClockedWindowCounter) Check(ctx context.Context, identifier, category string, now time.Time) (WindowDecision, error) {
	wc, err := c.store.Get(ctx, identifier, category)
	if errors.Is(err, models.ErrNotFound) {
		return WindowDecision{Allowed: true}, nil
	}
	if err != nil {
		return WindowDecision{}, err
	}

	if wc.IsBlocked(now) {
		return WindowDecision{RetryAfter: wc.BlockedUntil.Sub(now)}, nil
	}
	if c.fresh(wc, now) || wc.Count < c.maxAttempts {
		return WindowDecision{Allowed: true}, nil
	}

	blockedUntil := wc.WindowStartAt.Add(c.window)
	// A row rolled or removed since the read is left alone
	if _, err := c.store.Block(ctx, identifier, category, wc.WindowStartAt, blockedUntil); err != nil {
		// The decision stands: the count alone keeps the key blocked for this window
		c.logger.WarnContext(ctx, "failed to persist window block",
			slog.String("category", category),
			slog.Any("error", err),
		)
	}

	return WindowDecision{RetryAfter: blockedUntil.Sub(now)}, nil
}

// Record counts one attempt, starting a new window if the previous one has lapsed.
// A concurrent first insert is retried once as an update.
func (c *ClockedWindowCounter) Record(ctx context.Context, identifier, category string, now time.Time) error {
	mutate := func(wc *models.WindowCounter) {
		if c.fresh(wc, now) {
			wc.Count = 0
			wc.WindowStartAt = now
			wc.BlockedUntil = nil
		}
		wc.Count++
		wc.LastAttemptAt = now
	}

	_, err := c.store.Update(ctx, identifier, category, mutate)
	if errors.Is(err, models.ErrConflict) {
		_, err = c.store.Update(ctx, identifier, category, mutate)
	}
	return err
}
