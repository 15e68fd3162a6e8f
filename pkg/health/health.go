// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package health

import "time"

// Status is the aggregate health of the remote vector/graph service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Report aggregates per-service probe results into an overall status.
type Report struct {
	Status   Status            `json:"status"`
	Services map[string]Status `json:"services"`
	CheckedAt time.Time        `json:"checked_at"`
}

// Aggregate reduces per-service statuses: all healthy → healthy, all
// unhealthy → unhealthy, anything in between → degraded. An empty map
// is unhealthy (nothing could be probed).
func Aggregate(services map[string]Status) Status {
	if len(services) == 0 {
		return StatusUnhealthy
	}

	healthy := 0
	for _, s := range services {
		if s == StatusHealthy {
			healthy++
		}
	}

	switch healthy {
	case len(services):
		return StatusHealthy
	case 0:
		return StatusUnhealthy
	default:
		return StatusDegraded
	}
}
