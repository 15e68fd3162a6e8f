// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package cluster

import (
	"github.com/vellum-dev/vellum/pkg/vecmath"
)

// density groups points whose epsilon-neighborhood holds at least
// minPoints members (the point itself included), expanding each group
// through the neighborhoods of its core points. Points reachable from no
// core point are labeled -1 and become outliers.
func density(points []point, epsilon float64, minPoints int) []int {
	const (
		unvisited = -2
		noise     = -1
	)

	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}

	nextLabel := 0
	for i := range points {
		if labels[i] != unvisited {
			continue
		}

		neighbors := neighborhood(points, i, epsilon)
		if len(neighbors) < minPoints {
			labels[i] = noise
			continue
		}

		label := nextLabel
		nextLabel++
		labels[i] = label

		// Expand: frontier grows as new core points contribute their
		// neighborhoods.
		frontier := neighbors
		for len(frontier) > 0 {
			j := frontier[0]
			frontier = frontier[1:]

			if labels[j] == noise {
				labels[j] = label // border point adopted by the cluster
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = label

			jNeighbors := neighborhood(points, j, epsilon)
			if len(jNeighbors) >= minPoints {
				frontier = append(frontier, jNeighbors...)
			}
		}
	}

	return labels
}

// neighborhood returns the indices within epsilon of points[i], i included.
func neighborhood(points []point, i int, epsilon float64) []int {
	var out []int
	for j := range points {
		if vecmath.EuclideanDistance(points[i].vec, points[j].vec) <= epsilon {
			out = append(out, j)
		}
	}
	return out
}
