// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package remote

import (
	"sync"
	"time"

	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// BreakerState is the circuit breaker's current position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes required in
	// half-open before the breaker closes again.
	SuccessThreshold int
	// Cooldown is how long the breaker stays open before allowing a probe.
	Cooldown time.Duration
}

// Validate checks the config and applies defaults.
func (c *BreakerConfig) Validate() error {
	if c.FailureThreshold < 0 || c.SuccessThreshold < 0 || c.Cooldown < 0 {
		return velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"breaker thresholds and cooldown must not be negative (failures=%d successes=%d cooldown=%s)",
			c.FailureThreshold, c.SuccessThreshold, c.Cooldown)
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 2
	}
	if c.Cooldown == 0 {
		c.Cooldown = 30 * time.Second
	}
	return nil
}

// CircuitBreaker implements the closed → open → half-open → closed state
// machine. While open, Allow fails immediately without touching the
// network; after the cooldown the next Allow transitions to half-open and
// lets a probe through. Any failure in half-open reopens the breaker and
// resets its cooldown clock.
type CircuitBreaker struct {
	mu        sync.Mutex
	cfg       BreakerConfig
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
	nowFunc   func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg BreakerConfig) (*CircuitBreaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CircuitBreaker{
		cfg:     cfg,
		state:   BreakerClosed,
		nowFunc: time.Now,
	}, nil
}

// Allow reports whether a call may proceed. Returns a circuit-open error
// when the breaker is open and the cooldown has not elapsed.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if b.nowFunc().Sub(b.openedAt) < b.cfg.Cooldown {
			return velerr.New(velerr.CodeRemoteCircuitOpen,
				"service unavailable: circuit breaker is open",
				velerr.Field("cooldown", b.cfg.Cooldown.String()))
		}
		b.state = BreakerHalfOpen
		b.successes = 0
	}

	return nil
}

// RecordSuccess registers a successful call.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = BreakerClosed
			b.failures = 0
			b.successes = 0
		}
	case BreakerClosed:
		b.failures = 0
	}
}

// RecordFailure registers a failed call, opening the breaker when the
// consecutive-failure threshold is reached.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		// A probe failed: reopen and restart the cooldown clock.
		b.state = BreakerOpen
		b.openedAt = b.nowFunc()
		b.failures = 0
	case BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = BreakerOpen
			b.openedAt = b.nowFunc()
			b.failures = 0
		}
	}
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset returns the breaker to closed with all counters cleared. Intended
// for test isolation.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.successes = 0
}

// SetNowFunc overrides the time source (for testing).
func (b *CircuitBreaker) SetNowFunc(fn func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nowFunc = fn
}
