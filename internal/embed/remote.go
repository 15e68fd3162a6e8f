// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package embed

import (
	"context"

	"github.com/vellum-dev/vellum/internal/remote"
	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// RemoteConfig holds remote embedding backend configuration.
type RemoteConfig struct {
	// ModelVersion identifies the model served by the remote service.
	ModelVersion string
	Dimensions   int
}

// Remote computes embeddings through the vector service, inheriting its
// circuit breaker, rate limiter, and retry behavior.
type Remote struct {
	client *remote.Client
	cfg    RemoteConfig
}

// NewRemote creates a backend over an already-configured service client.
func NewRemote(client *remote.Client, cfg RemoteConfig) (*Remote, error) {
	if client == nil {
		return nil, velerr.New(velerr.CodeEmbedBackendNotFound, "remote backend requires a service client")
	}
	if cfg.ModelVersion == "" {
		return nil, velerr.New(velerr.CodeConfigValidateInvalidValue, "remote backend requires a model version")
	}
	if cfg.Dimensions <= 0 {
		return nil, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"remote backend dimensions must be positive, got %d", cfg.Dimensions)
	}
	return &Remote{client: client, cfg: cfg}, nil
}

func (r *Remote) Name() string         { return "remote" }
func (r *Remote) ModelVersion() string { return r.cfg.ModelVersion }
func (r *Remote) Dimensions() int      { return r.cfg.Dimensions }

func (r *Remote) Embed(ctx context.Context, text string) ([]float32, error) {
	values, err := r.client.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(values) != r.cfg.Dimensions {
		return nil, velerr.Errorf(velerr.CodeEmbedDimensionMismatch,
			"remote service returned %d dimensions, expected %d", len(values), r.cfg.Dimensions)
	}
	return values, nil
}

func (r *Remote) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		values, err := r.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = values
	}
	return out, nil
}

func (r *Remote) Close() error { return nil }
