// Package retry provides the capped exponential backoff policy applied
// between pipeline stage attempts.
package retry

import (
	"context"
	"math"
	"time"
)

// Default backoff values.
const (
	DefaultInitialDelay = 250 * time.Millisecond
	DefaultMaxDelay     = 10 * time.Second
	DefaultMultiplier   = 2.0
)

// Backoff computes the delay before retrying a failed attempt. The zero
// value is usable and applies the defaults.
type Backoff struct {
	// InitialDelay is the delay after the first failed attempt.
	InitialDelay time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
	// Multiplier is the per-attempt growth factor.
	Multiplier float64
}

// Delay returns the wait before attempt n+1, where attempt counts completed
// failed attempts starting at 1.
func (b Backoff) Delay(attempt int) time.Duration {
	initial := b.InitialDelay
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	multiplier := b.Multiplier
	if multiplier <= 0 {
		multiplier = DefaultMultiplier
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt-1)))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	return delay
}

// Wait sleeps for the attempt's delay, returning early with the context
// error if the context is cancelled.
func (b Backoff) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(b.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
