// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ErrServerNotRunning indicates the ops server refused the connection.
var ErrServerNotRunning = errors.New("server is not running (connection refused)")

// defaultHTTPClient is the package-level HTTP client used by ops commands.
// Overridden in tests via httptest.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

// opsClient provides HTTP access to a running Vellum ops server.
type opsClient struct {
	baseURL string
	http    *http.Client
}

// newOpsClient creates a client targeting the given host:port address.
func newOpsClient(addr string) *opsClient {
	return &opsClient{
		baseURL: "http://" + addr,
		http:    defaultHTTPClient,
	}
}

// getJSON performs a GET request and decodes the JSON response into dest.
// Returns ErrServerNotRunning on connection refused. A 503 still carries
// a decodable body, so only non-JSON failures are treated as errors.
func (c *opsClient) getJSON(path string, dest interface{}) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		if isDialError(err) {
			return ErrServerNotRunning
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	return nil
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
