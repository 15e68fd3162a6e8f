// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package health_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vellum-dev/vellum/pkg/health"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		services map[string]health.Status
		want     health.Status
	}{
		{
			name: "all healthy",
			services: map[string]health.Status{
				"embeddings": health.StatusHealthy,
				"vector":     health.StatusHealthy,
			},
			want: health.StatusHealthy,
		},
		{
			name: "all unhealthy",
			services: map[string]health.Status{
				"embeddings": health.StatusUnhealthy,
				"vector":     health.StatusUnhealthy,
			},
			want: health.StatusUnhealthy,
		},
		{
			name: "mixed is degraded",
			services: map[string]health.Status{
				"embeddings": health.StatusHealthy,
				"vector":     health.StatusUnhealthy,
			},
			want: health.StatusDegraded,
		},
		{
			name: "degraded service counts as not healthy",
			services: map[string]health.Status{
				"embeddings": health.StatusHealthy,
				"cluster":    health.StatusDegraded,
			},
			want: health.StatusDegraded,
		},
		{
			name:     "empty map is unhealthy",
			services: map[string]health.Status{},
			want:     health.StatusUnhealthy,
		},
		{
			name: "single healthy service",
			services: map[string]health.Status{
				"vector": health.StatusHealthy,
			},
			want: health.StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, health.Aggregate(tt.services))
		})
	}
}
