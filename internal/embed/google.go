// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package embed

import (
	"context"

	"google.golang.org/genai"

	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// GoogleConfig holds Gemini embedding backend configuration.
type GoogleConfig struct {
	APIKey string
	// Model defaults to gemini-embedding-001.
	Model string
	// Dimensions defaults to 768.
	Dimensions int
}

const (
	defaultGoogleModel      = "gemini-embedding-001"
	defaultGoogleDimensions = 768
)

// Google computes embeddings through the Gemini API.
type Google struct {
	client *genai.Client
	cfg    GoogleConfig
}

// NewGoogle creates the Gemini backend. Returns an error if the API key
// is missing.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, velerr.New(velerr.CodeConfigValidateInvalidValue, "google backend requires an api_key")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGoogleModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = defaultGoogleDimensions
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, velerr.Wrap(err, velerr.CodeEmbedModelInitFailure, "creating gemini client")
	}

	return &Google{client: client, cfg: cfg}, nil
}

func (g *Google) Name() string         { return "google" }
func (g *Google) ModelVersion() string { return g.cfg.Model }
func (g *Google) Dimensions() int      { return g.cfg.Dimensions }

func (g *Google) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := g.client.Models.EmbedContent(ctx, g.cfg.Model, genai.Text(text), nil)
	if err != nil {
		return nil, velerr.Wrap(err, velerr.CodeEmbedUpstreamFailure, "gemini embed request")
	}
	if len(res.Embeddings) == 0 || len(res.Embeddings[0].Values) == 0 {
		return nil, velerr.New(velerr.CodeEmbedUpstreamFailure, "gemini returned an empty embedding")
	}

	values := res.Embeddings[0].Values
	if len(values) != g.cfg.Dimensions {
		return nil, velerr.Errorf(velerr.CodeEmbedDimensionMismatch,
			"gemini model %s returned %d dimensions, expected %d", g.cfg.Model, len(values), g.cfg.Dimensions)
	}
	return values, nil
}

func (g *Google) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		values, err := g.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = values
	}
	return out, nil
}

func (g *Google) Close() error { return nil }
