// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

// Package remote implements the resilient client for the external
// vector/graph service. Every outbound call passes through a circuit
// breaker, a sliding-window rate limiter, bounded exponential-backoff
// retries and a TTL response cache for idempotent reads.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// Config configures the resilient remote client.
type Config struct {
	// BaseURL is the root of the remote service, e.g. "https://vectors.example.com".
	BaseURL string
	// APIKey, when set, is sent as a bearer token.
	APIKey string
	// Timeout bounds each individual request attempt.
	Timeout time.Duration

	Breaker   BreakerConfig
	Retry     RetryConfig
	RateLimit RateLimitConfig
	Cache     ResponseCacheConfig

	// HTTPClient overrides the transport (for testing).
	HTTPClient *http.Client
}

// Validate checks the config and applies defaults.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return velerr.New(velerr.CodeConfigValidateInvalidValue, "remote base URL must not be empty")
	}
	if c.Timeout < 0 {
		return velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"remote timeout must not be negative, got %s", c.Timeout)
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if err := c.Breaker.Validate(); err != nil {
		return err
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	return c.RateLimit.Validate()
}

// Client is the single shared gateway to the remote service. It owns the
// breaker, limiter, response cache and metrics; higher components must
// route every remote hop through it. Construct one explicitly and pass it
// to whatever needs it; Reset exists for test isolation.
type Client struct {
	cfg       Config
	http      *http.Client
	breaker   *CircuitBreaker
	limiter   *slidingWindow
	respCache *responseCache
	metrics   *Metrics
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// New creates a resilient client for the service at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	breaker, err := NewCircuitBreaker(cfg.Breaker)
	if err != nil {
		return nil, err
	}
	limiter, err := newSlidingWindow(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		cfg:       cfg,
		http:      httpClient,
		breaker:   breaker,
		limiter:   limiter,
		respCache: newResponseCache(cfg.Cache),
		metrics:   &Metrics{},
		sleepFunc: sleepContext,
	}, nil
}

// Metrics returns the client's running request metrics.
func (c *Client) Metrics() MetricsSnapshot { return c.metrics.Snapshot() }

// BreakerState exposes the breaker position for diagnostics.
func (c *Client) BreakerState() BreakerState { return c.breaker.State() }

// RateLimitUsage reports calls currently inside the limiter window.
func (c *Client) RateLimitUsage() int { return c.limiter.Usage() }

// Reset clears breaker, limiter, cache and metrics state. Intended for
// test isolation.
func (c *Client) Reset() {
	c.breaker.Reset()
	c.limiter.Reset()
	c.respCache.clear()
	c.metrics.Reset()
}

// do executes one logical call: cache check (idempotent calls only),
// breaker gate, rate-limit wait, then the retry loop. out, when non-nil,
// receives the decoded JSON response.
func (c *Client) do(ctx context.Context, method, path string, in, out any, cacheable bool) error {
	start := time.Now()

	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return velerr.Wrapf(err, velerr.CodeRemoteRequestInvalid, "encoding request body for %s", path)
		}
	}

	key := cacheKey(method, path, body)
	if cacheable {
		if cached := c.respCache.get(key); cached != nil {
			return decodeBody(cached, out, path)
		}
	}

	if err := c.breaker.Allow(); err != nil {
		c.metrics.record(time.Since(start), true)
		return velerr.With(err, velerr.FieldEndpoint(path))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.record(time.Since(start), true)
		return err
	}

	raw, err := c.doWithRetry(ctx, method, path, body)
	c.metrics.record(time.Since(start), err != nil)
	if err != nil {
		return err
	}

	if cacheable {
		c.respCache.set(key, raw)
	}
	return decodeBody(raw, out, path)
}

// doWithRetry runs the bounded retry loop. Transient failures (5xx,
// timeouts, network errors) trip the breaker and are retried with
// exponential backoff; 4xx errors propagate immediately.
func (c *Client) doWithRetry(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.cfg.Retry.MaxAttempts; attempt++ {
		raw, err := c.attempt(ctx, method, path, body)
		if err == nil {
			c.breaker.RecordSuccess()
			return raw, nil
		}

		lastErr = err
		if !velerr.IsRetryable(err) {
			// Client errors are the caller's problem, not the service's;
			// they do not count against the breaker.
			return nil, err
		}

		c.breaker.RecordFailure()
		if attempt+1 >= c.cfg.Retry.MaxAttempts {
			break
		}

		delay := c.cfg.Retry.backoffDelay(attempt)
		slog.Warn("remote call failed, retrying",
			"method", method, "path", path,
			"attempt", attempt+1, "backoff", delay, "error", err)
		if serr := c.sleepFunc(ctx, delay); serr != nil {
			return nil, serr
		}
	}

	return nil, lastErr
}

// attempt performs a single HTTP exchange with the per-call timeout.
func (c *Client) attempt(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, velerr.Wrapf(err, velerr.CodeRemoteRequestInvalid, "building request for %s", path)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeoutErr(err) {
			return nil, velerr.Wrap(err, velerr.CodeRemoteTimeout, "remote call timed out",
				velerr.FieldEndpoint(path), velerr.Field("timeout", c.cfg.Timeout.String()))
		}
		return nil, velerr.Wrap(err, velerr.CodeRemoteUpstreamFailure, "remote call failed",
			velerr.FieldEndpoint(path))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, velerr.Wrap(err, velerr.CodeRemoteUpstreamFailure, "reading remote response",
			velerr.FieldEndpoint(path))
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, velerr.New(velerr.CodeRemoteUpstreamFailure, "remote service error",
			velerr.FieldEndpoint(path), velerr.Field("status", resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, velerr.New(velerr.CodeRemoteRequestInvalid, "remote rejected request",
			velerr.FieldEndpoint(path), velerr.Field("status", resp.StatusCode),
			velerr.Field("body", string(truncate(raw, 256))))
	}

	return raw, nil
}

func decodeBody(raw []byte, out any, path string) error {
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return velerr.Wrapf(err, velerr.CodeRemoteResponseInvalid, "decoding response from %s", path)
	}
	return nil
}

// isTimeoutErr distinguishes timeouts from other transport errors so
// callers can branch on the two failure classes.
func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
