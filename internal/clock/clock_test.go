package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock_SleepHonorsContext(t *testing.T) {
	c := NewRealClock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := c.Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRealClock_ZeroSleep(t *testing.T) {
	assert.NoError(t, NewRealClock().Sleep(context.Background(), 0))
}

func TestFakeClock_SleepAdvances(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)

	assert.NoError(t, c.Sleep(context.Background(), 2*time.Second))
	c.Advance(500 * time.Millisecond)

	assert.Equal(t, start.Add(2500*time.Millisecond), c.Now())
	assert.Equal(t, []time.Duration{2 * time.Second}, c.Slept())
}

func TestFakeClock_AdvanceNegativePanics(t *testing.T) {
	c := NewFakeClock(time.Now())
	assert.Panics(t, func() { c.Advance(-time.Second) })
}
