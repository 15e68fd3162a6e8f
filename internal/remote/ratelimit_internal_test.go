// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package remote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the limiter without real sleeping: sleepFunc advances
// the clock instead of blocking.
type fakeClock struct {
	now time.Time
}

func newLimiterWithClock(t *testing.T, max int, window time.Duration) (*slidingWindow, *fakeClock) {
	t.Helper()
	w, err := newSlidingWindow(RateLimitConfig{MaxRequests: max, Window: window})
	require.NoError(t, err)

	clock := &fakeClock{now: time.Unix(1000, 0)}
	w.nowFunc = func() time.Time { return clock.now }
	w.sleepFunc = func(_ context.Context, d time.Duration) error {
		clock.now = clock.now.Add(d)
		return nil
	}
	return w, clock
}

func TestSlidingWindowAllowsUpToMax(t *testing.T) {
	w, _ := newLimiterWithClock(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Wait(context.Background()))
	}
	assert.Equal(t, 3, w.Usage())
}

func TestSlidingWindowDelaysExtraCall(t *testing.T) {
	w, clock := newLimiterWithClock(t, 2, time.Minute)
	start := clock.now

	require.NoError(t, w.Wait(context.Background()))
	clock.now = clock.now.Add(10 * time.Second)
	require.NoError(t, w.Wait(context.Background()))

	// Window is saturated: the third call must wait until the oldest
	// timestamp (start) leaves the window.
	require.NoError(t, w.Wait(context.Background()))
	assert.False(t, clock.now.Before(start.Add(time.Minute)),
		"extra call should have waited for the window to roll")
}

func TestSlidingWindowUsageNeverExceedsMax(t *testing.T) {
	w, clock := newLimiterWithClock(t, 5, time.Minute)

	for i := 0; i < 12; i++ {
		require.NoError(t, w.Wait(context.Background()))
		assert.LessOrEqual(t, w.Usage(), 5)
		clock.now = clock.now.Add(time.Second)
	}
}

func TestSlidingWindowPrunesExpired(t *testing.T) {
	w, clock := newLimiterWithClock(t, 2, time.Minute)

	require.NoError(t, w.Wait(context.Background()))
	require.NoError(t, w.Wait(context.Background()))
	assert.Equal(t, 2, w.Usage())

	clock.now = clock.now.Add(2 * time.Minute)
	assert.Equal(t, 0, w.Usage())
}

func TestSlidingWindowZeroMaxDisablesLimiting(t *testing.T) {
	w, err := newSlidingWindow(RateLimitConfig{})
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.NoError(t, w.Wait(context.Background()))
	}
}

func TestSlidingWindowWaitAbortsOnContextCancel(t *testing.T) {
	w, err := newSlidingWindow(RateLimitConfig{MaxRequests: 1, Window: time.Hour})
	require.NoError(t, err)

	require.NoError(t, w.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = w.Wait(ctx)
	require.Error(t, err)
}

func TestSlidingWindowReset(t *testing.T) {
	w, _ := newLimiterWithClock(t, 2, time.Minute)
	require.NoError(t, w.Wait(context.Background()))
	w.Reset()
	assert.Equal(t, 0, w.Usage())
}
