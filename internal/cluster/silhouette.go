// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package cluster

import (
	velerr "github.com/vellum-dev/vellum/pkg/errors"
	"github.com/vellum-dev/vellum/pkg/vecmath"
)

// silhouette scores a partition in [-1, 1] from mean intra-cluster
// distance against the nearest other cluster's mean distance. Points in
// singleton clusters and outliers are excluded from the aggregate. A
// partition with fewer than two clusters, or without at least two
// scorable points, is degenerate and returns a typed error instead of a
// meaningless number.
func silhouette(points []point, assignments []int) (float64, error) {
	groups := make(map[int][]int)
	for i, label := range assignments {
		if label >= 0 {
			groups[label] = append(groups[label], i)
		}
	}
	if len(groups) < 2 {
		return 0, velerr.Errorf(velerr.CodeClusterDegenerate,
			"silhouette requires at least 2 clusters, got %d", len(groups))
	}

	var total float64
	var scored int
	for label, members := range groups {
		if len(members) < 2 {
			continue // singleton: a(i) is undefined
		}
		for _, i := range members {
			a := meanDistance(points, i, members)
			b := nearestOtherMean(points, i, label, groups)

			maxAB := a
			if b > maxAB {
				maxAB = b
			}
			if maxAB > 0 {
				total += (b - a) / maxAB
			}
			scored++
		}
	}

	if scored < 2 {
		return 0, velerr.New(velerr.CodeClusterDegenerate,
			"silhouette requires at least 2 points in multi-member clusters")
	}
	return total / float64(scored), nil
}

// meanDistance is the mean distance from points[i] to the other members.
func meanDistance(points []point, i int, members []int) float64 {
	var sum float64
	var count int
	for _, j := range members {
		if j == i {
			continue
		}
		sum += vecmath.EuclideanDistance(points[i].vec, points[j].vec)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// nearestOtherMean is the smallest mean distance from points[i] to any
// cluster it does not belong to.
func nearestOtherMean(points []point, i, own int, groups map[int][]int) float64 {
	best := -1.0
	for label, members := range groups {
		if label == own {
			continue
		}
		var sum float64
		for _, j := range members {
			sum += vecmath.EuclideanDistance(points[i].vec, points[j].vec)
		}
		mean := sum / float64(len(members))
		if best < 0 || mean < best {
			best = mean
		}
	}
	return best
}
