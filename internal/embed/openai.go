// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package embed

import (
	"context"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// OpenAIConfig holds OpenAI embedding backend configuration.
type OpenAIConfig struct {
	APIKey string
	// Model defaults to text-embedding-3-small.
	Model string
	// Dimensions defaults to the model's native size (1536 for
	// text-embedding-3-small).
	Dimensions int
	BaseURL    string // optional, useful for testing against a mock server
}

const (
	defaultOpenAIModel      = "text-embedding-3-small"
	defaultOpenAIDimensions = 1536
)

// OpenAI computes embeddings through the OpenAI Embeddings API.
type OpenAI struct {
	client openaisdk.Client
	cfg    OpenAIConfig
}

// NewOpenAI creates the OpenAI backend. Returns an error if the API key
// is missing.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, velerr.New(velerr.CodeConfigValidateInvalidValue, "openai backend requires an api_key")
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = defaultOpenAIDimensions
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{client: openaisdk.NewClient(opts...), cfg: cfg}, nil
}

func (o *OpenAI) Name() string         { return "openai" }
func (o *OpenAI) ModelVersion() string { return o.cfg.Model }
func (o *OpenAI) Dimensions() int      { return o.cfg.Dimensions }

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	res, err := o.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: o.cfg.Model,
	})
	if err != nil {
		return nil, velerr.Wrapf(err, velerr.CodeEmbedUpstreamFailure, "openai embeddings request for %d texts", len(texts))
	}
	if len(res.Data) != len(texts) {
		return nil, velerr.Errorf(velerr.CodeEmbedUpstreamFailure,
			"openai returned %d embeddings for %d texts", len(res.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, d := range res.Data {
		values := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			values[j] = float32(v)
		}
		if len(values) != o.cfg.Dimensions {
			return nil, velerr.Errorf(velerr.CodeEmbedDimensionMismatch,
				"openai model %s returned %d dimensions, expected %d", o.cfg.Model, len(values), o.cfg.Dimensions)
		}
		out[i] = values
	}
	return out, nil
}

func (o *OpenAI) Close() error { return nil }
