// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

// Package store defines the vector store: durable storage for embedding
// vectors with metadata and brute-force cosine similarity search.
package store

import (
	"context"
	"time"
)

// StoredVector is a persisted embedding with its provenance. Created on
// indexing; deleted when its document is deleted or explicitly evicted.
type StoredVector struct {
	ID           string
	DocumentID   string
	ParagraphID  string
	Text         string
	Values       []float32
	ModelVersion string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// SearchOptions filters and bounds a similarity search.
type SearchOptions struct {
	// Threshold keeps only results with similarity >= Threshold.
	Threshold float64
	// TopK truncates the ranked results. Zero means no truncation.
	TopK int
	// DocumentID, when set, restricts candidates to one document.
	DocumentID string
	// ExcludeIDs removes specific vectors from the candidate set.
	ExcludeIDs []string
}

// SearchResult is one ranked similarity match.
type SearchResult struct {
	Vector     StoredVector
	Similarity float64
}

// VectorStore persists vectors and ranks semantic similarity. It is the
// sole owner of persisted vectors and their deletion.
type VectorStore interface {
	Store(ctx context.Context, v StoredVector) error
	StoreBatch(ctx context.Context, vs []StoredVector) error
	Get(ctx context.Context, id string) (StoredVector, error)
	GetByDocument(ctx context.Context, documentID string) ([]StoredVector, error)
	FindSimilar(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error)
	Delete(ctx context.Context, id string) error
	DeleteByDocument(ctx context.Context, documentID string) error
	Close() error
}
