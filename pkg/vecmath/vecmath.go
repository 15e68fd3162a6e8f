// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

// Package vecmath provides the small set of vector operations the
// embedding pipeline and similarity search are built on.
package vecmath

import (
	"math"

	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// Dot returns the dot product of two equal-length vectors.
// Callers are expected to have validated dimensions.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Norm returns the Euclidean (L2) norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity dot(a,b) / (‖a‖·‖b‖).
// Vectors of unequal dimension are a fatal programming/data error.
// When either vector has zero magnitude the similarity is 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, velerr.Errorf(velerr.CodeEmbedDimensionMismatch,
			"cosine similarity requires equal dimensions, got %d and %d", len(a), len(b))
	}

	na := Norm(a)
	nb := Norm(b)
	if na == 0 || nb == 0 {
		return 0, nil
	}

	return Dot(a, b) / (na * nb), nil
}

// Normalize returns v scaled to unit L2 norm. A zero vector is returned
// unchanged rather than dividing by zero.
func Normalize(v []float32) []float32 {
	n := Norm(v)
	if n == 0 {
		return v
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// MeanPool averages token vectors into a single vector, counting only
// positions where mask is non-zero. With an all-zero mask (or no tokens)
// it returns a zero vector of dimension dim.
func MeanPool(tokens [][]float32, mask []float32, dim int) []float32 {
	out := make([]float32, dim)

	var count float64
	for i, tok := range tokens {
		if i < len(mask) && mask[i] == 0 {
			continue
		}
		for j := 0; j < dim && j < len(tok); j++ {
			out[j] += tok[j]
		}
		count++
	}

	if count == 0 {
		return out
	}
	for j := range out {
		out[j] = float32(float64(out[j]) / count)
	}
	return out
}

// EuclideanDistance returns the L2 distance between two equal-length vectors.
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
