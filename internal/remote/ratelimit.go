// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package remote

import (
	"context"
	"sync"
	"time"

	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// RateLimitConfig configures the sliding-window rate limiter.
type RateLimitConfig struct {
	// MaxRequests is the number of calls allowed within one window.
	// Zero disables limiting.
	MaxRequests int
	// Window is the sliding interval over which calls are counted.
	Window time.Duration
}

// Validate checks the config and applies defaults.
func (c *RateLimitConfig) Validate() error {
	if c.MaxRequests < 0 {
		return velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"rate limit max requests must not be negative, got %d", c.MaxRequests)
	}
	if c.Window < 0 {
		return velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"rate limit window must not be negative, got %s", c.Window)
	}
	if c.MaxRequests > 0 && c.Window == 0 {
		c.Window = time.Minute
	}
	return nil
}

// slidingWindow bounds calls to MaxRequests within a moving Window. A
// saturated window makes Wait block until the oldest recorded call falls
// outside the window, then re-check rather than sleeping a fixed amount.
type slidingWindow struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	stamps  []time.Time
	nowFunc func() time.Time
	// sleepFunc waits for d or until ctx is done; injectable for tests.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

func newSlidingWindow(cfg RateLimitConfig) (*slidingWindow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &slidingWindow{
		cfg:       cfg,
		nowFunc:   time.Now,
		sleepFunc: sleepContext,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return velerr.Wrap(ctx.Err(), velerr.CodeRemoteRateLimitAborted,
			"aborted while waiting for rate limit capacity")
	}
}

// Wait blocks until the window has capacity, then records the call.
func (w *slidingWindow) Wait(ctx context.Context) error {
	if w.cfg.MaxRequests <= 0 {
		return nil
	}

	for {
		w.mu.Lock()
		now := w.nowFunc()
		w.prune(now)

		if len(w.stamps) < w.cfg.MaxRequests {
			w.stamps = append(w.stamps, now)
			w.mu.Unlock()
			return nil
		}

		wait := w.stamps[0].Add(w.cfg.Window).Sub(now)
		w.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if err := w.sleepFunc(ctx, wait); err != nil {
			return err
		}
	}
}

// Usage returns the number of calls currently inside the window. Never
// exceeds MaxRequests.
func (w *slidingWindow) Usage() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.nowFunc())
	return len(w.stamps)
}

// prune drops timestamps that have left the window. Caller holds w.mu.
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.cfg.Window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// Reset clears the window. Intended for test isolation.
func (w *slidingWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stamps = w.stamps[:0]
}
