// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package cache

import (
	"context"
	"time"

	"github.com/vellum-dev/vellum/internal/remote"
	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// remoteNamespace is the vector namespace holding the shared cache.
const remoteNamespace = "embedding-cache"

// RemoteLayer is the slowest tier: a shared store on the remote vector
// service, keyed by content address via metadata-filter lookups. All its
// failures are soft — the tiered cache logs and keeps serving from the
// local tiers.
type RemoteLayer struct {
	client *remote.Client
}

// NewRemoteLayer creates the shared remote tier over client.
func NewRemoteLayer(client *remote.Client) (*RemoteLayer, error) {
	if client == nil {
		return nil, velerr.New(velerr.CodeConfigValidateInvalidValue,
			"remote cache layer requires a client")
	}
	return &RemoteLayer{client: client}, nil
}

func (r *RemoteLayer) Name() string { return "remote" }

func (r *RemoteLayer) Get(ctx context.Context, key string) (*Entry, error) {
	matches, err := r.client.SearchVectors(ctx, remote.SearchRequest{
		Namespace: remoteNamespace,
		TopK:      1,
		Filter:    map[string]any{"key": key},
	})
	if err != nil {
		return nil, velerr.Wrap(err, velerr.CodeCacheLayerFailure, "remote cache lookup")
	}
	if len(matches) == 0 {
		return nil, nil
	}

	m := matches[0]
	e := Entry{Values: m.Values}
	if text, ok := m.Metadata["text"].(string); ok {
		e.Text = text
	}
	if mv, ok := m.Metadata["model_version"].(string); ok {
		e.ModelVersion = mv
	}
	if ts, ok := m.Metadata["created_at"].(float64); ok {
		e.CreatedAt = time.Unix(0, int64(ts))
	}
	return &e, nil
}

func (r *RemoteLayer) Set(ctx context.Context, key string, e Entry) error {
	err := r.client.UpsertVectors(ctx, remoteNamespace, []remote.Vector{{
		ID:     key,
		Values: e.Values,
		Metadata: map[string]any{
			"key":           key,
			"text":          e.Text,
			"model_version": e.ModelVersion,
			"created_at":    e.CreatedAt.UnixNano(),
		},
	}})
	return velerr.Wrap(err, velerr.CodeCacheLayerFailure, "remote cache write")
}

func (r *RemoteLayer) Delete(ctx context.Context, key string) error {
	err := r.client.DeleteVectors(ctx, remoteNamespace, []string{key})
	return velerr.Wrap(err, velerr.CodeCacheLayerFailure, "remote cache delete")
}

// Clear is intentionally scoped to nothing: the shared tier is used by
// other processes, so a local Clear must not wipe it.
func (r *RemoteLayer) Clear(_ context.Context) error {
	return nil
}
