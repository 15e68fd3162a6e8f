// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

// Package embed turns text into embedding vectors through a pluggable
// backend, with the multi-tier cache checked before any computation.
package embed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vellum-dev/vellum/internal/cache"
	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// Vector is one embedding with its provenance. For a fixed ModelVersion
// the dimension is constant, and identical (Text, ModelVersion) pairs
// always produce the same cached vector.
type Vector struct {
	Text         string
	Values       []float32
	ModelVersion string
	CreatedAt    time.Time
}

// BatchResult reports an embedBatch outcome.
type BatchResult struct {
	Vectors       []Vector
	CachedCount   int
	ComputedCount int
	Duration      time.Duration
}

// Backend computes embeddings. Implementations must be idempotent for
// identical input and model version.
type Backend interface {
	Name() string
	ModelVersion() string
	Dimensions() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Close() error
}

// ServiceConfig tunes the embedding service.
type ServiceConfig struct {
	// BatchSize chunks uncached texts sent to the backend.
	BatchSize int
	// Concurrency bounds parallel backend chunks during a batch.
	Concurrency int
}

const (
	defaultBatchSize   = 32
	defaultConcurrency = 4
)

// Service orchestrates cache-checked embedding. The cache is optional;
// a nil cache computes everything.
type Service struct {
	backend Backend
	cache   *cache.Tiered
	cfg     ServiceConfig
}

// NewService creates an embedding service over backend. cache may be nil.
func NewService(backend Backend, tiered *cache.Tiered, cfg ServiceConfig) (*Service, error) {
	if backend == nil {
		return nil, velerr.New(velerr.CodeEmbedBackendNotFound, "embedding service requires a backend")
	}
	if cfg.BatchSize < 0 || cfg.Concurrency < 0 {
		return nil, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"embedding batch size and concurrency must not be negative (batch=%d concurrency=%d)",
			cfg.BatchSize, cfg.Concurrency)
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = defaultConcurrency
	}

	return &Service{backend: backend, cache: tiered, cfg: cfg}, nil
}

// Backend exposes the underlying backend for diagnostics.
func (s *Service) Backend() Backend { return s.backend }

// Embed returns the embedding for text, serving from the cache when the
// same (text, model version) pair was embedded before.
func (s *Service) Embed(ctx context.Context, text string) (Vector, error) {
	if text == "" {
		return Vector{}, velerr.New(velerr.CodeEmbedInputInvalid, "cannot embed empty text")
	}

	modelVersion := s.backend.ModelVersion()
	if cached := s.cacheGet(ctx, text, modelVersion); cached != nil {
		return *cached, nil
	}

	values, err := s.backend.Embed(ctx, text)
	if err != nil {
		return Vector{}, err
	}

	v := Vector{Text: text, Values: values, ModelVersion: modelVersion, CreatedAt: time.Now()}
	s.cacheSet(ctx, v)
	return v, nil
}

// EmbedBatch embeds texts, computing only the uncached subset in
// backend-sized chunks with bounded fan-out, and merges results
// preserving the original order.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) (BatchResult, error) {
	start := time.Now()
	if len(texts) == 0 {
		return BatchResult{Duration: time.Since(start)}, nil
	}
	for _, text := range texts {
		if text == "" {
			return BatchResult{}, velerr.New(velerr.CodeEmbedInputInvalid, "cannot embed empty text in batch")
		}
	}

	modelVersion := s.backend.ModelVersion()
	vectors := make([]Vector, len(texts))

	// Partition into cached and uncached, remembering original positions.
	var uncachedIdx []int
	for i, text := range texts {
		if cached := s.cacheGet(ctx, text, modelVersion); cached != nil {
			vectors[i] = *cached
			continue
		}
		uncachedIdx = append(uncachedIdx, i)
	}
	cachedCount := len(texts) - len(uncachedIdx)

	if err := s.computeChunks(ctx, texts, uncachedIdx, modelVersion, vectors); err != nil {
		return BatchResult{}, err
	}

	return BatchResult{
		Vectors:       vectors,
		CachedCount:   cachedCount,
		ComputedCount: len(uncachedIdx),
		Duration:      time.Since(start),
	}, nil
}

// computeChunks embeds the uncached positions chunk by chunk with bounded
// concurrency, writing each result back to its original index.
func (s *Service) computeChunks(ctx context.Context, texts []string, uncachedIdx []int, modelVersion string, vectors []Vector) error {
	if len(uncachedIdx) == 0 {
		return nil
	}

	var chunks [][]int
	for i := 0; i < len(uncachedIdx); i += s.cfg.BatchSize {
		end := i + s.cfg.BatchSize
		if end > len(uncachedIdx) {
			end = len(uncachedIdx)
		}
		chunks = append(chunks, uncachedIdx[i:end])
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	sem := make(chan struct{}, s.cfg.Concurrency)

	for _, chunk := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(chunk []int) {
			defer wg.Done()
			defer func() { <-sem }()

			chunkTexts := make([]string, len(chunk))
			for i, idx := range chunk {
				chunkTexts[i] = texts[idx]
			}

			values, err := s.backend.EmbedBatch(ctx, chunkTexts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			if len(values) != len(chunk) {
				if firstErr == nil {
					firstErr = velerr.Errorf(velerr.CodeEmbedUpstreamFailure,
						"backend returned %d embeddings for %d texts", len(values), len(chunk))
				}
				return
			}

			now := time.Now()
			for i, idx := range chunk {
				vectors[idx] = Vector{
					Text:         texts[idx],
					Values:       values[i],
					ModelVersion: modelVersion,
					CreatedAt:    now,
				}
			}
		}(chunk)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}

	// Populate the cache after the fan-in; a concurrent writer racing on
	// the same key only causes redundant recomputation, never bad data.
	for _, idx := range uncachedIdx {
		s.cacheSet(ctx, vectors[idx])
	}
	return nil
}

func (s *Service) cacheGet(ctx context.Context, text, modelVersion string) *Vector {
	if s.cache == nil {
		return nil
	}
	entry, err := s.cache.Get(ctx, text, modelVersion)
	if err != nil || entry == nil {
		return nil
	}
	return &Vector{
		Text:         entry.Text,
		Values:       entry.Values,
		ModelVersion: entry.ModelVersion,
		CreatedAt:    entry.CreatedAt,
	}
}

func (s *Service) cacheSet(ctx context.Context, v Vector) {
	if s.cache == nil {
		return
	}
	err := s.cache.Set(ctx, cache.Entry{
		Text:         v.Text,
		ModelVersion: v.ModelVersion,
		Values:       v.Values,
		CreatedAt:    v.CreatedAt,
	})
	if err != nil {
		slog.Warn("failed to cache embedding", "error", err)
	}
}

// Close releases the backend.
func (s *Service) Close() error {
	return s.backend.Close()
}
