// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

// Package cache implements the multi-tier embedding cache: an in-memory
// LRU in front of a local SQLite store in front of an optional shared
// remote tier. Entries are content-addressed by text and model version,
// expire after a retention window, and are promoted into faster tiers on
// lower-tier hits.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// Entry is one cached embedding.
type Entry struct {
	Text         string
	ModelVersion string
	Values       []float32
	CreatedAt    time.Time
}

// Layer is a single cache tier. Get returns (nil, nil) on an ordinary
// miss; errors signal tier failure, which the tiered cache degrades
// around rather than propagating.
type Layer interface {
	Name() string
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Key derives the content address for (text, modelVersion). Embeddings
// from different model versions never collide.
func Key(text, modelVersion string) string {
	h := sha256.New()
	h.Write([]byte(modelVersion))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Config configures the tiered cache.
type Config struct {
	// TTL is the retention window after which entries are expired.
	TTL time.Duration
	// SweepInterval is how often expired persistent entries are deleted.
	// Zero disables the background sweep.
	SweepInterval time.Duration
}

// DefaultTTL is the retention window for cached embeddings.
const DefaultTTL = 7 * 24 * time.Hour

// Tiered walks its layers fastest-first on reads and writes through all
// of them. It exclusively owns layer promotion. Layer failures are logged
// and the next tier consulted; the remote tier's absence is never fatal.
type Tiered struct {
	layers  []Layer
	ttl     time.Duration
	nowFunc func() time.Time
	done    chan struct{}
}

// NewTiered creates a tiered cache over layers, ordered fastest first.
func NewTiered(cfg Config, layers ...Layer) (*Tiered, error) {
	if len(layers) == 0 {
		return nil, velerr.New(velerr.CodeConfigValidateInvalidValue,
			"tiered cache requires at least one layer")
	}
	if cfg.TTL < 0 || cfg.SweepInterval < 0 {
		return nil, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"cache ttl and sweep interval must not be negative (ttl=%s sweep=%s)",
			cfg.TTL, cfg.SweepInterval)
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}

	t := &Tiered{
		layers:  layers,
		ttl:     cfg.TTL,
		nowFunc: time.Now,
		done:    make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go t.sweepLoop(cfg.SweepInterval)
	}
	return t, nil
}

// Get looks up the embedding for (text, modelVersion), walking tiers
// fastest-first. A hit at a lower tier is promoted into every faster tier
// before returning. Expired entries are skipped and lazily deleted.
// Returns (nil, nil) when no tier has a fresh entry.
func (t *Tiered) Get(ctx context.Context, text, modelVersion string) (*Entry, error) {
	key := Key(text, modelVersion)

	for i, layer := range t.layers {
		entry, err := layer.Get(ctx, key)
		if err != nil {
			// A failed tier degrades to the next one.
			slog.Warn("cache layer lookup failed, trying next tier",
				"layer", layer.Name(), "error", err)
			continue
		}
		if entry == nil {
			continue
		}

		if t.expired(*entry) {
			if derr := layer.Delete(ctx, key); derr != nil {
				slog.Warn("failed to delete expired cache entry",
					"layer", layer.Name(), "error", derr)
			}
			continue
		}

		t.promote(ctx, key, *entry, i)
		return entry, nil
	}

	return nil, nil
}

// Set writes the entry through every tier. Failures in slower tiers are
// logged, never fatal: local tiers keep serving regardless of the remote.
func (t *Tiered) Set(ctx context.Context, e Entry) error {
	if e.Text == "" || e.ModelVersion == "" {
		return velerr.New(velerr.CodeCacheKeyInvalid,
			"cache entries require text and model version")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.nowFunc()
	}

	key := Key(e.Text, e.ModelVersion)
	for _, layer := range t.layers {
		if err := layer.Set(ctx, key, e); err != nil {
			slog.Warn("cache layer write failed", "layer", layer.Name(), "error", err)
		}
	}
	return nil
}

// Clear empties every tier.
func (t *Tiered) Clear(ctx context.Context) error {
	var errs []error
	for _, layer := range t.layers {
		if err := layer.Clear(ctx); err != nil {
			slog.Warn("cache layer clear failed", "layer", layer.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(t.layers) && len(errs) > 0 {
		return velerr.Join(errs...)
	}
	return nil
}

// Close stops the background sweep.
func (t *Tiered) Close() error {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	return nil
}

// SetNowFunc overrides the time source (for testing).
func (t *Tiered) SetNowFunc(fn func() time.Time) {
	t.nowFunc = fn
}

// promote writes a lower-tier hit into every faster tier. Last write wins
// on concurrent populations; the race only risks redundant work.
func (t *Tiered) promote(ctx context.Context, key string, e Entry, hitTier int) {
	for i := 0; i < hitTier; i++ {
		if err := t.layers[i].Set(ctx, key, e); err != nil {
			slog.Warn("cache promotion failed", "layer", t.layers[i].Name(), "error", err)
		}
	}
}

func (t *Tiered) expired(e Entry) bool {
	return t.nowFunc().Sub(e.CreatedAt) > t.ttl
}

// sweepLoop periodically asks sweepable layers to delete expired entries.
func (t *Tiered) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Sweep(context.Background())
		case <-t.done:
			return
		}
	}
}

// sweeper is implemented by layers that can bulk-delete expired entries.
type sweeper interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// Sweep deletes expired entries from every layer that supports it.
func (t *Tiered) Sweep(ctx context.Context) {
	cutoff := t.nowFunc().Add(-t.ttl)
	for _, layer := range t.layers {
		s, ok := layer.(sweeper)
		if !ok {
			continue
		}
		n, err := s.DeleteExpired(ctx, cutoff)
		if err != nil {
			slog.Warn("cache sweep failed", "layer", layer.Name(), "error", err)
			continue
		}
		if n > 0 {
			slog.Debug("cache sweep removed expired entries", "layer", layer.Name(), "count", n)
		}
	}
}
