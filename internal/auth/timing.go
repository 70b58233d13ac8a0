package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds the response padding applied to account-revealing paths
type TimingConfig struct {
	Base   time.Duration // minimum total duration of a padded call
	Jitter time.Duration // random extra on top of Base
}

// TimingDelay pads responses so that "no such account" and "wrong password" or
// "reset sent" take about the same time
type TimingDelay struct {
	config TimingConfig
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// cryptoJitter returns a secure random duration in [0, max)
func cryptoJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(randomBytes) % uint64(max))
}

// target is the padded duration for one call
func (td *TimingDelay) target() time.Duration {
	return td.config.Base + cryptoJitter(td.config.Jitter)
}

// WaitFrom sleeps until at least the padded duration has passed since start.
// It returns early when ctx is done. A nil TimingDelay does nothing.
func (td *TimingDelay) WaitFrom(ctx context.Context, start time.Time) {
	if td == nil {
		return
	}

	remaining := td.target() - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
