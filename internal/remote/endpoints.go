// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package remote

import (
	"context"
	"net/http"
	"time"

	velerr "github.com/vellum-dev/vellum/pkg/errors"
	"github.com/vellum-dev/vellum/pkg/health"
)

// Vector is a remote-side vector with its payload.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchRequest queries a vector namespace. When Vector is empty the
// backend performs a pure metadata-filter lookup instead of a similarity
// ranking, which the shared cache tier uses to fetch by key.
type SearchRequest struct {
	Namespace     string         `json:"namespace"`
	Vector        []float32      `json:"vector,omitempty"`
	TopK          int            `json:"topK,omitempty"`
	MinSimilarity float64        `json:"minSimilarity,omitempty"`
	Filter        map[string]any `json:"filter,omitempty"`
}

// SearchMatch is one ranked result from a vector search.
type SearchMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Values   []float32      `json:"values,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// GraphQueryResult holds rows returned by a Cypher-like graph query.
type GraphQueryResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// GNNClusterRequest carries the graph the remote clustering model runs on.
type GNNClusterRequest struct {
	NodeIDs      []string    `json:"nodeIds"`
	NodeFeatures [][]float32 `json:"nodeFeatures"`
	EdgeWeights  [][]float64 `json:"edgeWeights,omitempty"`
	NumClusters  int         `json:"numClusters,omitempty"`
	UseAttention bool        `json:"useAttention,omitempty"`
}

// GNNClusterResponse maps each node to a cluster label; -1 marks outliers.
type GNNClusterResponse struct {
	Assignments []int       `json:"assignments"`
	Centroids   [][]float32 `json:"centroids,omitempty"`
	ModelInfo   string      `json:"modelInfo,omitempty"`
}

// GNNTrainRequest submits labeled examples for remote model training.
type GNNTrainRequest struct {
	NodeFeatures [][]float32 `json:"nodeFeatures"`
	Labels       []int       `json:"labels"`
	Epochs       int         `json:"epochs,omitempty"`
}

// healthServices are the per-service probes aggregated by OverallHealth.
var healthServices = []string{"embeddings", "vector", "graph", "cluster"}

// Embed requests an embedding for text from the remote service.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, velerr.New(velerr.CodeRemoteRequestInvalid, "embed text must not be empty")
	}

	var resp struct {
		Embedding []float32 `json:"embedding"`
	}
	req := map[string]string{"text": text}
	if err := c.do(ctx, http.MethodPost, "/v1/embeddings", req, &resp, false); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, velerr.New(velerr.CodeRemoteResponseInvalid, "remote returned empty embedding")
	}
	return resp.Embedding, nil
}

// UpsertVectors writes vectors into a namespace. Mutating: bypasses the
// response cache and invalidates cached vector reads.
func (c *Client) UpsertVectors(ctx context.Context, namespace string, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	req := map[string]any{"namespace": namespace, "vectors": vectors}
	if err := c.do(ctx, http.MethodPost, "/v1/vector/upsert", req, nil, false); err != nil {
		return err
	}
	c.respCache.invalidate("/v1/vector")
	return nil
}

// SearchVectors runs a similarity (or pure filter) search in a namespace.
// Idempotent: responses are cached for the configured TTL.
func (c *Client) SearchVectors(ctx context.Context, req SearchRequest) ([]SearchMatch, error) {
	var resp struct {
		Matches []SearchMatch `json:"matches"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/vector/search", req, &resp, true); err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

// DeleteVectors removes vectors by ID from a namespace.
func (c *Client) DeleteVectors(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	req := map[string]any{"namespace": namespace, "ids": ids}
	if err := c.do(ctx, http.MethodDelete, "/v1/vector/delete", req, nil, false); err != nil {
		return err
	}
	c.respCache.invalidate("/v1/vector")
	return nil
}

// GraphQuery executes a Cypher-like query against the labeled graph.
func (c *Client) GraphQuery(ctx context.Context, query string, params map[string]any) (GraphQueryResult, error) {
	if query == "" {
		return GraphQueryResult{}, velerr.New(velerr.CodeRemoteRequestInvalid, "graph query must not be empty")
	}

	var resp GraphQueryResult
	req := map[string]any{"query": query, "params": params}
	if err := c.do(ctx, http.MethodPost, "/v1/graph/query", req, &resp, true); err != nil {
		return GraphQueryResult{}, err
	}
	return resp, nil
}

// ClusterGNN delegates clustering to the remote graph-neural endpoint.
func (c *Client) ClusterGNN(ctx context.Context, req GNNClusterRequest) (GNNClusterResponse, error) {
	if len(req.NodeIDs) != len(req.NodeFeatures) {
		return GNNClusterResponse{}, velerr.Errorf(velerr.CodeRemoteRequestInvalid,
			"gnn request has %d node ids but %d feature rows", len(req.NodeIDs), len(req.NodeFeatures))
	}

	var resp GNNClusterResponse
	if err := c.do(ctx, http.MethodPost, "/v1/cluster/gnn", req, &resp, false); err != nil {
		return GNNClusterResponse{}, err
	}
	if len(resp.Assignments) != len(req.NodeIDs) {
		return GNNClusterResponse{}, velerr.Errorf(velerr.CodeRemoteResponseInvalid,
			"gnn returned %d assignments for %d nodes", len(resp.Assignments), len(req.NodeIDs))
	}
	return resp, nil
}

// TrainGNN submits a training job for the remote clustering model.
func (c *Client) TrainGNN(ctx context.Context, req GNNTrainRequest) error {
	if len(req.NodeFeatures) != len(req.Labels) {
		return velerr.Errorf(velerr.CodeRemoteRequestInvalid,
			"gnn training has %d feature rows but %d labels", len(req.NodeFeatures), len(req.Labels))
	}
	return c.do(ctx, http.MethodPost, "/v1/cluster/gnn/train", req, nil, false)
}

// ServiceHealth probes one remote service's health endpoint.
func (c *Client) ServiceHealth(ctx context.Context, service string) (health.Status, error) {
	var resp struct {
		Status health.Status `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/"+service+"/health", nil, &resp, true); err != nil {
		return health.StatusUnhealthy, err
	}
	if resp.Status == "" {
		resp.Status = health.StatusHealthy
	}
	return resp.Status, nil
}

// OverallHealth probes every known service and aggregates the results.
// Probe failures mark the service unhealthy rather than failing the report.
func (c *Client) OverallHealth(ctx context.Context) health.Report {
	services := make(map[string]health.Status, len(healthServices))
	for _, svc := range healthServices {
		status, err := c.ServiceHealth(ctx, svc)
		if err != nil {
			status = health.StatusUnhealthy
		}
		services[svc] = status
	}

	return health.Report{
		Status:    health.Aggregate(services),
		Services:  services,
		CheckedAt: time.Now(),
	}
}
