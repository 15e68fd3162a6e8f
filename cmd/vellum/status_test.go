// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vellum-dev/vellum/pkg/health"
)

func runStatusAgainst(t *testing.T, handler http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	old := defaultHTTPClient
	defaultHTTPClient = srv.Client()
	t.Cleanup(func() { defaultHTTPClient = old })

	addr := strings.TrimPrefix(srv.URL, "http://")

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"status", "--address", addr})

	require.NoError(t, root.Execute())
	return buf.String()
}

func TestStatusCommand_Healthy(t *testing.T) {
	out := runStatusAgainst(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(health.Report{
			Status: health.StatusHealthy,
			Services: map[string]health.Status{
				"store":      health.StatusHealthy,
				"embeddings": health.StatusHealthy,
			},
		})
	}))

	assert.Contains(t, out, "healthy")
	assert.Contains(t, out, "store")
	assert.Contains(t, out, "embeddings")
}

func TestStatusCommand_Unhealthy503(t *testing.T) {
	out := runStatusAgainst(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(health.Report{Status: health.StatusUnhealthy})
	}))

	assert.Contains(t, out, "unhealthy")
}

func TestStatusCommand_NotRunning(t *testing.T) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	// Port 1 is essentially never listening.
	root.SetArgs([]string{"status", "--address", "127.0.0.1:1"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "not running")
}
