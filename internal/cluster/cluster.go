// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

// Package cluster groups embedding vectors with a selectable algorithm:
// k-means, hierarchical agglomerative, density-based, or remote
// graph-neural clustering. All local variants give total coverage: every
// input id lands in exactly one cluster or the outlier set.
package cluster

import (
	"time"

	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// Algorithm selects the clustering strategy.
type Algorithm string

const (
	AlgorithmKMeans       Algorithm = "kmeans"
	AlgorithmHierarchical Algorithm = "hierarchical"
	AlgorithmDensity      Algorithm = "density"
	AlgorithmGraphNeural  Algorithm = "graph-neural"
)

// Config tunes one clustering run.
type Config struct {
	Algorithm Algorithm

	// NumClusters is the target cluster count (kmeans, hierarchical,
	// graph-neural).
	NumClusters int
	// MaxIterations caps the kmeans assign/recompute loop. Defaults to 100.
	MaxIterations int
	// Epsilon is the density neighborhood radius (euclidean distance).
	Epsilon float64
	// MinPoints is the minimum neighborhood size for a density core point.
	MinPoints int
	// UseAttention is forwarded to the graph-neural endpoint.
	UseAttention bool
	// Seed makes kmeans++ seeding reproducible. Zero means seeded from
	// the clock.
	Seed int64
}

const defaultMaxIterations = 100

// Validate checks algorithm-specific knobs and applies defaults.
func (c *Config) Validate() error {
	switch c.Algorithm {
	case AlgorithmKMeans, AlgorithmHierarchical, AlgorithmGraphNeural:
		if c.NumClusters < 1 {
			return velerr.Errorf(velerr.CodeClusterConfigInvalid,
				"%s clustering requires a positive cluster count, got %d", c.Algorithm, c.NumClusters)
		}
	case AlgorithmDensity:
		if c.Epsilon <= 0 {
			return velerr.Errorf(velerr.CodeClusterConfigInvalid,
				"density clustering requires a positive epsilon, got %g", c.Epsilon)
		}
		if c.MinPoints < 1 {
			return velerr.Errorf(velerr.CodeClusterConfigInvalid,
				"density clustering requires min points >= 1, got %d", c.MinPoints)
		}
	default:
		return velerr.Errorf(velerr.CodeClusterConfigInvalid, "unknown clustering algorithm %q", c.Algorithm)
	}

	if c.MaxIterations < 0 {
		return velerr.Errorf(velerr.CodeClusterConfigInvalid,
			"max iterations must not be negative, got %d", c.MaxIterations)
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = defaultMaxIterations
	}
	return nil
}

// Cluster is one group in a clustering result. Size always equals
// len(Members). Cohesion is the mean cosine similarity of members to the
// centroid; a singleton cluster has cohesion 1.
type Cluster struct {
	ID       string
	Members  []string
	Centroid []float32
	Size     int
	Cohesion float64
}

// Result is a full partition of the input ids.
type Result struct {
	Clusters      []Cluster
	Outliers      []string
	TotalClusters int
	Metadata      Metadata
}

// Metadata describes how a result was produced.
type Metadata struct {
	Algorithm  Algorithm
	Iterations int
	// Silhouette is the partition quality score in [-1, 1]. Nil when the
	// partition is degenerate (fewer than two multi-member clusters).
	Silhouette *float64
	ModelInfo  string
	Duration   time.Duration
}
