// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package embed_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vellum-dev/vellum/internal/embed"
	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

func artifactServer(t *testing.T, body []byte, failures int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if int(calls.Add(1)) <= failures {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestFetchArtifactDownloadsAndVerifies(t *testing.T) {
	body := []byte("margin 2.0\nmanuscript 1.5\n")
	sum := sha256.Sum256(body)
	srv, _ := artifactServer(t, body, 0)
	dest := filepath.Join(t.TempDir(), "models", "weights.txt")

	var progress []embed.Progress
	err := embed.FetchArtifact(context.Background(), embed.FetchRequest{
		URL:        srv.URL,
		Dest:       dest,
		SHA256:     hex.EncodeToString(sum[:]),
		OnProgress: func(p embed.Progress) { progress = append(progress, p) },
	})
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, got)

	require.NotEmpty(t, progress)
	last := progress[len(progress)-1]
	assert.Equal(t, int64(len(body)), last.Loaded)
	assert.InDelta(t, 100.0, last.Percentage, 0.01)
}

func TestFetchArtifactChecksumMismatch(t *testing.T) {
	srv, calls := artifactServer(t, []byte("tampered content"), 0)
	dest := filepath.Join(t.TempDir(), "weights.txt")

	err := embed.FetchArtifact(context.Background(), embed.FetchRequest{
		URL:     srv.URL,
		Dest:    dest,
		SHA256:  "deadbeef",
		Retries: 3,
	})
	require.Error(t, err)
	assert.True(t, velerr.IsChecksumMismatch(err))
	assert.Contains(t, err.Error(), "deadbeef", "diagnostic must name the expected digest")

	// A mismatch is not transient, so no retries are spent on it.
	assert.Equal(t, int32(1), calls.Load())

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "corrupt artifact must not be installed")
}

func TestFetchArtifactRetriesTransientFailures(t *testing.T) {
	body := []byte("weights")
	srv, calls := artifactServer(t, body, 2)
	dest := filepath.Join(t.TempDir(), "weights.txt")

	err := embed.FetchArtifact(context.Background(), embed.FetchRequest{
		URL:     srv.URL,
		Dest:    dest,
		Retries: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchArtifactExhaustsRetries(t *testing.T) {
	srv, calls := artifactServer(t, nil, 100)
	dest := filepath.Join(t.TempDir(), "weights.txt")

	err := embed.FetchArtifact(context.Background(), embed.FetchRequest{
		URL:     srv.URL,
		Dest:    dest,
		Retries: 1,
	})
	require.Error(t, err)
	assert.True(t, velerr.HasCode(err, velerr.CodeEmbedModelFetchFailure))
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchArtifactRequiresURLAndDest(t *testing.T) {
	err := embed.FetchArtifact(context.Background(), embed.FetchRequest{URL: "http://x"})
	require.Error(t, err)
}
