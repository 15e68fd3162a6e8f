// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package cluster

import (
	"github.com/vellum-dev/vellum/pkg/vecmath"
)

// hierarchical runs agglomerative clustering: every point starts as its
// own cluster and the two clusters with the nearest centroids merge until
// the target count remains.
func hierarchical(points []point, target int) []int {
	type agg struct {
		members  []int
		centroid []float32
	}

	clusters := make([]*agg, len(points))
	for i, p := range points {
		clusters[i] = &agg{members: []int{i}, centroid: p.vec}
	}

	for len(clusters) > target {
		bestA, bestB := 0, 1
		bestDist := vecmath.EuclideanDistance(clusters[0].centroid, clusters[1].centroid)
		for a := 0; a < len(clusters); a++ {
			for b := a + 1; b < len(clusters); b++ {
				if d := vecmath.EuclideanDistance(clusters[a].centroid, clusters[b].centroid); d < bestDist {
					bestA, bestB, bestDist = a, b, d
				}
			}
		}

		merged := &agg{members: append(clusters[bestA].members, clusters[bestB].members...)}
		mergedPoints := make([]point, len(merged.members))
		for i, idx := range merged.members {
			mergedPoints[i] = points[idx]
		}
		merged.centroid = meanVector(mergedPoints)

		next := make([]*agg, 0, len(clusters)-1)
		for i, c := range clusters {
			if i != bestA && i != bestB {
				next = append(next, c)
			}
		}
		clusters = append(next, merged)
	}

	assignments := make([]int, len(points))
	for label, c := range clusters {
		for _, idx := range c.members {
			assignments[idx] = label
		}
	}
	return assignments
}
