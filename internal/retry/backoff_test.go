//nolint:testpackage // Testing internal defaults requires same package access
package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Delay_GrowsAndCaps(t *testing.T) {
	b := Backoff{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 400*time.Millisecond, b.Delay(3))
	assert.Equal(t, time.Second, b.Delay(10), "delay is capped at MaxDelay")
	assert.Equal(t, time.Second, b.Delay(60), "large exponents must not overflow past the cap")
}

func TestBackoff_Delay_ZeroValueUsesDefaults(t *testing.T) {
	var b Backoff
	assert.Equal(t, DefaultInitialDelay, b.Delay(1))
	assert.Equal(t, DefaultInitialDelay, b.Delay(0), "attempts below one clamp to one")
}

func TestBackoff_Wait_CancelledContext(t *testing.T) {
	b := Backoff{InitialDelay: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Wait(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
