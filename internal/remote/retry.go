// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package remote

import (
	"time"

	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// RetryConfig configures exponential-backoff retries for transient
// failures. Client (4xx) errors are never retried regardless of config.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the delay before the first retry; each subsequent
	// retry doubles it.
	BaseDelay time.Duration
	// MaxDelay caps the backoff growth. Zero means no cap.
	MaxDelay time.Duration
}

// Validate checks the config and applies defaults.
func (c *RetryConfig) Validate() error {
	if c.MaxAttempts < 0 || c.BaseDelay < 0 || c.MaxDelay < 0 {
		return velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"retry attempts and delays must not be negative (attempts=%d base=%s max=%s)",
			c.MaxAttempts, c.BaseDelay, c.MaxDelay)
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = 200 * time.Millisecond
	}
	return nil
}

// backoffDelay returns baseDelay * 2^attempt, capped at MaxDelay.
// attempt is zero-based: the delay before retry n+1.
func (c RetryConfig) backoffDelay(attempt int) time.Duration {
	d := c.BaseDelay << uint(attempt)
	if d < c.BaseDelay {
		// Shift overflowed.
		d = c.MaxDelay
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}
