// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package remote

import (
	"sync"
	"time"
)

// emaAlpha is the smoothing factor for the moving-average latency.
const emaAlpha = 0.2

// Metrics tracks running request statistics for the client.
type Metrics struct {
	mu           sync.Mutex
	requestCount int64
	errorCount   int64
	emaLatency   time.Duration
}

// MetricsSnapshot is a point-in-time copy safe to serialize.
type MetricsSnapshot struct {
	RequestCount int64         `json:"request_count"`
	ErrorCount   int64         `json:"error_count"`
	EMALatency   time.Duration `json:"ema_latency_ns"`
}

func (m *Metrics) record(latency time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requestCount++
	if failed {
		m.errorCount++
	}

	if m.emaLatency == 0 {
		m.emaLatency = latency
		return
	}
	m.emaLatency = time.Duration(emaAlpha*float64(latency) + (1-emaAlpha)*float64(m.emaLatency))
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		RequestCount: m.requestCount,
		ErrorCount:   m.errorCount,
		EMALatency:   m.emaLatency,
	}
}

// Reset zeroes all counters. Intended for test isolation.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.errorCount = 0
	m.emaLatency = 0
}
