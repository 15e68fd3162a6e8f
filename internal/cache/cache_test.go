// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package cache_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vellum-dev/vellum/internal/cache"
)

// failingLayer simulates an unavailable tier (e.g. remote store down).
type failingLayer struct{}

func (f *failingLayer) Name() string { return "failing" }
func (f *failingLayer) Get(context.Context, string) (*cache.Entry, error) {
	return nil, errors.New("tier unavailable")
}
func (f *failingLayer) Set(context.Context, string, cache.Entry) error {
	return errors.New("tier unavailable")
}
func (f *failingLayer) Delete(context.Context, string) error { return errors.New("tier unavailable") }
func (f *failingLayer) Clear(context.Context) error          { return errors.New("tier unavailable") }

func newSQLiteLayer(t *testing.T, dir string) *cache.SQLiteLayer {
	t.Helper()
	layer, err := cache.NewSQLiteLayer(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = layer.Close() })
	return layer
}

func newTiered(t *testing.T, layers ...cache.Layer) *cache.Tiered {
	t.Helper()
	tc, err := cache.NewTiered(cache.Config{TTL: cache.DefaultTTL}, layers...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tc.Close() })
	return tc
}

func TestTieredMissReturnsNil(t *testing.T) {
	tc := newTiered(t, cache.NewMemoryLayer(8))

	entry, err := tc.Get(context.Background(), "never seen", "minilm-v1")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestTieredRoundTrip(t *testing.T) {
	tc := newTiered(t, cache.NewMemoryLayer(8), newSQLiteLayer(t, t.TempDir()))

	want := cache.Entry{
		Text:         "annotations on chapter three",
		ModelVersion: "minilm-v1",
		Values:       []float32{0.1, -0.5, 0.25},
	}
	require.NoError(t, tc.Set(context.Background(), want))

	got, err := tc.Get(context.Background(), want.Text, want.ModelVersion)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Values, got.Values)
	assert.Equal(t, want.ModelVersion, got.ModelVersion)
}

func TestTieredModelVersionsNeverCollide(t *testing.T) {
	tc := newTiered(t, cache.NewMemoryLayer(8))

	require.NoError(t, tc.Set(context.Background(), cache.Entry{
		Text: "same text", ModelVersion: "minilm-v1", Values: []float32{1},
	}))

	got, err := tc.Get(context.Background(), "same text", "minilm-v2")
	require.NoError(t, err)
	assert.Nil(t, got, "a different model version must be a miss")
}

func TestTieredPromotesLowerTierHits(t *testing.T) {
	mem := cache.NewMemoryLayer(8)
	sqlite := newSQLiteLayer(t, t.TempDir())
	tc := newTiered(t, mem, sqlite)

	// Seed only the persistent tier, simulating a fresh process.
	e := cache.Entry{Text: "persisted", ModelVersion: "minilm-v1", Values: []float32{2, 3}, CreatedAt: time.Now()}
	require.NoError(t, sqlite.Set(context.Background(), cache.Key(e.Text, e.ModelVersion), e))
	assert.Equal(t, 0, mem.Len())

	got, err := tc.Get(context.Background(), "persisted", "minilm-v1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, mem.Len(), "hit should have been promoted into the memory tier")
}

func TestTieredSurvivesProcessRestart(t *testing.T) {
	dir := t.TempDir()

	first := newTiered(t, cache.NewMemoryLayer(8), newSQLiteLayer(t, dir))
	require.NoError(t, first.Set(context.Background(), cache.Entry{
		Text: "durable", ModelVersion: "minilm-v1", Values: []float32{7, 8, 9},
	}))
	require.NoError(t, first.Close())

	// A fresh cache over the same database path simulates a restart.
	second := newTiered(t, cache.NewMemoryLayer(8), newSQLiteLayer(t, dir))
	got, err := second.Get(context.Background(), "durable", "minilm-v1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []float32{7, 8, 9}, got.Values)
}

func TestTieredExpiredEntriesAreSkipped(t *testing.T) {
	tc := newTiered(t, cache.NewMemoryLayer(8))
	now := time.Now()
	tc.SetNowFunc(func() time.Time { return now })

	require.NoError(t, tc.Set(context.Background(), cache.Entry{
		Text: "old", ModelVersion: "minilm-v1", Values: []float32{1},
	}))

	tc.SetNowFunc(func() time.Time { return now.Add(8 * 24 * time.Hour) })
	got, err := tc.Get(context.Background(), "old", "minilm-v1")
	require.NoError(t, err)
	assert.Nil(t, got, "entries past the retention window are expired")
}

func TestTieredDegradesWhenTierFails(t *testing.T) {
	sqlite := newSQLiteLayer(t, t.TempDir())
	tc := newTiered(t, &failingLayer{}, sqlite)

	e := cache.Entry{Text: "resilient", ModelVersion: "minilm-v1", Values: []float32{4}}
	require.NoError(t, tc.Set(context.Background(), e), "a failing tier must not fail the write")

	got, err := tc.Get(context.Background(), "resilient", "minilm-v1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []float32{4}, got.Values)
}

func TestTieredSweepDeletesExpiredPersistentEntries(t *testing.T) {
	sqlite := newSQLiteLayer(t, t.TempDir())
	tc := newTiered(t, sqlite)
	now := time.Now()
	tc.SetNowFunc(func() time.Time { return now })

	require.NoError(t, tc.Set(context.Background(), cache.Entry{
		Text: "stale", ModelVersion: "minilm-v1", Values: []float32{1}, CreatedAt: now.Add(-30 * 24 * time.Hour),
	}))
	require.NoError(t, tc.Set(context.Background(), cache.Entry{
		Text: "fresh", ModelVersion: "minilm-v1", Values: []float32{2}, CreatedAt: now,
	}))

	tc.Sweep(context.Background())

	stale, err := sqlite.Get(context.Background(), cache.Key("stale", "minilm-v1"))
	require.NoError(t, err)
	assert.Nil(t, stale)

	fresh, err := sqlite.Get(context.Background(), cache.Key("fresh", "minilm-v1"))
	require.NoError(t, err)
	assert.NotNil(t, fresh)
}

func TestTieredClear(t *testing.T) {
	mem := cache.NewMemoryLayer(8)
	tc := newTiered(t, mem, newSQLiteLayer(t, t.TempDir()))

	require.NoError(t, tc.Set(context.Background(), cache.Entry{
		Text: "gone soon", ModelVersion: "minilm-v1", Values: []float32{1},
	}))
	require.NoError(t, tc.Clear(context.Background()))

	got, err := tc.Get(context.Background(), "gone soon", "minilm-v1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTieredRejectsEntryWithoutKeyParts(t *testing.T) {
	tc := newTiered(t, cache.NewMemoryLayer(8))
	err := tc.Set(context.Background(), cache.Entry{Text: "", ModelVersion: "m", Values: []float32{1}})
	require.Error(t, err)
}
