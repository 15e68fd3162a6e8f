// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// Progress reports model artifact download progress. Total is -1 when
// the server did not send a Content-Length.
type Progress struct {
	Loaded     int64
	Total      int64
	Percentage float64
}

// FetchRequest describes one artifact download.
type FetchRequest struct {
	URL  string
	Dest string
	// SHA256, when non-empty, is the expected hex digest of the artifact.
	SHA256 string
	// Retries bounds additional attempts after the first failure.
	Retries int
	// OnProgress is invoked as bytes arrive; may be nil.
	OnProgress func(Progress)
	// HTTPClient defaults to a client with a 5 minute timeout.
	HTTPClient *http.Client
}

const fetchBackoffBase = 500 * time.Millisecond

// FetchArtifact downloads req.URL to req.Dest, verifying the checksum
// when one is expected. The file is written to a temp path and renamed
// only after verification, so a partial or corrupt download never
// shadows a good artifact.
func FetchArtifact(ctx context.Context, req FetchRequest) error {
	if req.URL == "" || req.Dest == "" {
		return velerr.New(velerr.CodeEmbedModelFetchFailure, "artifact fetch requires both URL and destination")
	}
	client := req.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}

	var lastErr error
	for attempt := 0; attempt <= req.Retries; attempt++ {
		if attempt > 0 {
			delay := fetchBackoffBase << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return velerr.Wrap(ctx.Err(), velerr.CodeEmbedModelFetchFailure,
					"aborted while retrying artifact download")
			}
		}

		lastErr = fetchOnce(ctx, client, req)
		if lastErr == nil {
			return nil
		}
		// A checksum mismatch on an intact transfer will not heal on
		// retry; surface it immediately.
		if velerr.IsChecksumMismatch(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func fetchOnce(ctx context.Context, client *http.Client, req FetchRequest) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return velerr.Wrapf(err, velerr.CodeEmbedModelFetchFailure, "building request for %s", req.URL)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return velerr.Wrapf(err, velerr.CodeEmbedModelFetchFailure, "downloading %s", req.URL)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return velerr.Errorf(velerr.CodeEmbedModelFetchFailure,
			"downloading %s: unexpected status %d", req.URL, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o755); err != nil {
		return velerr.Wrapf(err, velerr.CodeEmbedModelFetchFailure, "creating artifact directory for %s", req.Dest)
	}

	tmp, err := os.CreateTemp(filepath.Dir(req.Dest), ".vellum-fetch-*")
	if err != nil {
		return velerr.Wrap(err, velerr.CodeEmbedModelFetchFailure, "creating temp artifact file")
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	hasher := sha256.New()
	writer := &progressWriter{
		dst:    io.MultiWriter(tmp, hasher),
		total:  resp.ContentLength,
		report: req.OnProgress,
	}
	_, copyErr := io.Copy(writer, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		return velerr.Wrapf(copyErr, velerr.CodeEmbedModelFetchFailure, "reading artifact body from %s", req.URL)
	}
	if closeErr != nil {
		return velerr.Wrap(closeErr, velerr.CodeEmbedModelFetchFailure, "flushing artifact to disk")
	}

	if req.SHA256 != "" {
		actual := hex.EncodeToString(hasher.Sum(nil))
		if actual != req.SHA256 {
			return velerr.New(velerr.CodeEmbedChecksumMismatch,
				fmt.Sprintf("artifact checksum mismatch for %s: expected %s, got %s", req.URL, req.SHA256, actual))
		}
	}

	if err := os.Rename(tmpPath, req.Dest); err != nil {
		return velerr.Wrapf(err, velerr.CodeEmbedModelFetchFailure, "moving artifact into place at %s", req.Dest)
	}
	return nil
}

type progressWriter struct {
	dst    io.Writer
	loaded int64
	total  int64
	report func(Progress)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	w.loaded += int64(n)
	if w.report != nil {
		pct := float64(0)
		if w.total > 0 {
			pct = float64(w.loaded) / float64(w.total) * 100
		}
		w.report(Progress{Loaded: w.loaded, Total: w.total, Percentage: pct})
	}
	return n, err
}
