// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package cluster

import (
	"math/rand"
	"time"

	"github.com/vellum-dev/vellum/pkg/vecmath"
)

// kmeans partitions points into cfg.NumClusters groups. Centroids are
// seeded with kmeans++ and refined by assign/recompute rounds until the
// assignment is stable or cfg.MaxIterations is hit. Returns per-point
// labels and the number of iterations run.
func kmeans(points []point, cfg Config) ([]int, int) {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	centroids := seedPlusPlus(points, cfg.NumClusters, rng)
	assignments := make([]int, len(points))
	for i := range assignments {
		assignments[i] = -1
	}

	iterations := 0
	for ; iterations < cfg.MaxIterations; iterations++ {
		changed := false
		for i, p := range points {
			nearest := nearestCentroid(p.vec, centroids)
			if nearest != assignments[i] {
				assignments[i] = nearest
				changed = true
			}
		}
		if !changed {
			break
		}

		// Recompute each centroid as the mean of its members. A centroid
		// that lost all members keeps its previous position.
		for c := range centroids {
			var members []point
			for i, p := range points {
				if assignments[i] == c {
					members = append(members, p)
				}
			}
			if len(members) > 0 {
				centroids[c] = meanVector(members)
			}
		}
	}
	return assignments, iterations
}

// seedPlusPlus picks k initial centroids: the first uniformly at random,
// each subsequent one with probability proportional to the squared
// distance from the nearest centroid already chosen.
func seedPlusPlus(points []point, k int, rng *rand.Rand) [][]float32 {
	centroids := make([][]float32, 0, k)
	first := points[rng.Intn(len(points))]
	centroids = append(centroids, first.vec)

	for len(centroids) < k {
		weights := make([]float64, len(points))
		var total float64
		for i, p := range points {
			d := distanceToNearest(p.vec, centroids)
			weights[i] = d * d
			total += weights[i]
		}

		// All remaining points coincide with a centroid; pick uniformly.
		if total == 0 {
			centroids = append(centroids, points[rng.Intn(len(points))].vec)
			continue
		}

		target := rng.Float64() * total
		var cum float64
		chosen := len(points) - 1
		for i, w := range weights {
			cum += w
			if cum >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, points[chosen].vec)
	}
	return centroids
}

func nearestCentroid(vec []float32, centroids [][]float32) int {
	best := 0
	bestDist := vecmath.EuclideanDistance(vec, centroids[0])
	for i := 1; i < len(centroids); i++ {
		if d := vecmath.EuclideanDistance(vec, centroids[i]); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func distanceToNearest(vec []float32, centroids [][]float32) float64 {
	best := vecmath.EuclideanDistance(vec, centroids[0])
	for i := 1; i < len(centroids); i++ {
		if d := vecmath.EuclideanDistance(vec, centroids[i]); d < best {
			best = d
		}
	}
	return best
}
