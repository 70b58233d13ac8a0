package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/stretchr/testify/assert"
)

func TestTimingDelay_WaitFrom_PadsToBase(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{Base: 100 * time.Millisecond})
	startTime := time.Now()

	timing.WaitFrom(context.Background(), startTime)

	elapsed := time.Since(startTime)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 300*time.Millisecond)
}

func TestTimingDelay_WaitFrom_AdjustsForElapsedTime(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{Base: 100 * time.Millisecond})
	startTime := time.Now()

	// Simulate some work already done
	time.Sleep(50 * time.Millisecond)

	timing.WaitFrom(context.Background(), startTime)

	elapsed := time.Since(startTime)
	// Should total approximately 100ms (base), not 150ms
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 140*time.Millisecond+100*time.Millisecond)
}

func TestTimingDelay_WaitFrom_AlreadyPastTarget(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{Base: 10 * time.Millisecond})
	startTime := time.Now().Add(-time.Second)

	before := time.Now()
	timing.WaitFrom(context.Background(), startTime)

	assert.Less(t, time.Since(before), 10*time.Millisecond)
}

func TestTimingDelay_WaitFrom_StopsOnCancel(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{Base: 5 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	before := time.Now()
	timing.WaitFrom(ctx, time.Now())

	assert.Less(t, time.Since(before), 100*time.Millisecond)
}

func TestTimingDelay_WaitFrom_Jitter(t *testing.T) {
	timing := auth.NewTimingDelay(auth.TimingConfig{Base: 20 * time.Millisecond, Jitter: 30 * time.Millisecond})
	startTime := time.Now()

	timing.WaitFrom(context.Background(), startTime)

	elapsed := time.Since(startTime)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Less(t, elapsed, 250*time.Millisecond)
}

func TestTimingDelay_Nil(t *testing.T) {
	var timing *auth.TimingDelay

	assert.NotPanics(t, func() {
		timing.WaitFrom(context.Background(), time.Now())
	})
}
