// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package cluster

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vellum-dev/vellum/internal/remote"
	"github.com/vellum-dev/vellum/internal/store"
	velerr "github.com/vellum-dev/vellum/pkg/errors"
	"github.com/vellum-dev/vellum/pkg/vecmath"
)

// point pairs an embedding id with its vector for the duration of a run.
type point struct {
	id  string
	vec []float32
}

// Engine loads vectors from the store and runs the configured algorithm.
// The remote client is only needed for graph-neural clustering.
type Engine struct {
	store  store.VectorStore
	client *remote.Client
}

// NewEngine creates a clustering engine. client may be nil when the
// graph-neural algorithm is never used.
func NewEngine(vs store.VectorStore, client *remote.Client) (*Engine, error) {
	if vs == nil {
		return nil, velerr.New(velerr.CodeClusterConfigInvalid, "clustering engine requires a vector store")
	}
	return &Engine{store: vs, client: client}, nil
}

// Cluster partitions the given embedding ids.
func (e *Engine) Cluster(ctx context.Context, embeddingIDs []string, cfg Config) (*Result, error) {
	start := time.Now()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(embeddingIDs) == 0 {
		return nil, velerr.New(velerr.CodeClusterInputInvalid, "cannot cluster an empty id set")
	}

	points, err := e.loadPoints(ctx, embeddingIDs)
	if err != nil {
		return nil, err
	}

	switch cfg.Algorithm {
	case AlgorithmKMeans, AlgorithmHierarchical:
		if cfg.NumClusters > len(points) {
			return nil, velerr.Errorf(velerr.CodeClusterInputInvalid,
				"cannot form %d clusters from %d vectors", cfg.NumClusters, len(points))
		}
	}

	var (
		assignments []int
		iterations  int
		modelInfo   string
	)
	switch cfg.Algorithm {
	case AlgorithmKMeans:
		assignments, iterations = kmeans(points, cfg)
	case AlgorithmHierarchical:
		assignments = hierarchical(points, cfg.NumClusters)
	case AlgorithmDensity:
		assignments = density(points, cfg.Epsilon, cfg.MinPoints)
	case AlgorithmGraphNeural:
		assignments, modelInfo, err = e.clusterRemote(ctx, points, cfg)
		if err != nil {
			return nil, err
		}
	}

	res := buildResult(points, assignments)
	res.Metadata = Metadata{
		Algorithm:  cfg.Algorithm,
		Iterations: iterations,
		ModelInfo:  modelInfo,
		Duration:   time.Since(start),
	}
	if sil, err := silhouette(points, assignments); err == nil {
		res.Metadata.Silhouette = &sil
	}
	return res, nil
}

// loadPoints fetches each id's vector and checks dimensional consistency.
func (e *Engine) loadPoints(ctx context.Context, ids []string) ([]point, error) {
	seen := make(map[string]struct{}, len(ids))
	points := make([]point, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, velerr.Errorf(velerr.CodeClusterInputInvalid, "duplicate embedding id %q", id)
		}
		seen[id] = struct{}{}

		sv, err := e.store.Get(ctx, id)
		if err != nil {
			return nil, velerr.Wrapf(err, velerr.CodeClusterInputInvalid, "loading vector %s", id)
		}
		if len(points) > 0 && len(sv.Values) != len(points[0].vec) {
			return nil, velerr.Errorf(velerr.CodeClusterInputInvalid,
				"vector %s has %d dimensions, others have %d", id, len(sv.Values), len(points[0].vec))
		}
		points = append(points, point{id: id, vec: sv.Values})
	}
	return points, nil
}

// clusterRemote delegates to the graph-neural endpoint. Edge weights are
// the pairwise cosine similarities of the node features.
func (e *Engine) clusterRemote(ctx context.Context, points []point, cfg Config) ([]int, string, error) {
	if e.client == nil {
		return nil, "", velerr.New(velerr.CodeClusterConfigInvalid,
			"graph-neural clustering requires a remote client")
	}

	req := remote.GNNClusterRequest{
		NodeIDs:      make([]string, len(points)),
		NodeFeatures: make([][]float32, len(points)),
		EdgeWeights:  make([][]float64, len(points)),
		NumClusters:  cfg.NumClusters,
		UseAttention: cfg.UseAttention,
	}
	for i, p := range points {
		req.NodeIDs[i] = p.id
		req.NodeFeatures[i] = p.vec
		req.EdgeWeights[i] = make([]float64, len(points))
		for j := range points {
			sim, err := vecmath.Cosine(p.vec, points[j].vec)
			if err != nil {
				return nil, "", err
			}
			req.EdgeWeights[i][j] = sim
		}
	}

	resp, err := e.client.ClusterGNN(ctx, req)
	if err != nil {
		return nil, "", velerr.Wrap(err, velerr.CodeClusterRemoteFailure, "graph-neural clustering")
	}
	return resp.Assignments, resp.ModelInfo, nil
}

// buildResult turns per-point labels (-1 marks outliers) into clusters
// with centroids and cohesion, preserving total coverage.
func buildResult(points []point, assignments []int) *Result {
	groups := make(map[int][]point)
	var outliers []string
	for i, p := range points {
		label := assignments[i]
		if label < 0 {
			outliers = append(outliers, p.id)
			continue
		}
		groups[label] = append(groups[label], p)
	}

	labels := make([]int, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	clusters := make([]Cluster, 0, len(labels))
	for _, label := range labels {
		members := groups[label]
		centroid := meanVector(members)

		ids := make([]string, len(members))
		for i, m := range members {
			ids[i] = m.id
		}
		clusters = append(clusters, Cluster{
			ID:       uuid.NewString(),
			Members:  ids,
			Centroid: centroid,
			Size:     len(ids),
			Cohesion: cohesion(members, centroid),
		})
	}

	return &Result{
		Clusters:      clusters,
		Outliers:      outliers,
		TotalClusters: len(clusters),
	}
}

// meanVector is the component-wise mean of the members' vectors.
func meanVector(members []point) []float32 {
	if len(members) == 0 {
		return nil
	}
	dim := len(members[0].vec)
	sum := make([]float64, dim)
	for _, m := range members {
		for i, v := range m.vec {
			sum[i] += float64(v)
		}
	}
	out := make([]float32, dim)
	for i := range sum {
		out[i] = float32(sum[i] / float64(len(members)))
	}
	return out
}

// cohesion is the mean cosine similarity of members to the centroid. A
// singleton cluster is perfectly cohesive.
func cohesion(members []point, centroid []float32) float64 {
	if len(members) <= 1 {
		return 1.0
	}
	var total float64
	for _, m := range members {
		sim, err := vecmath.Cosine(m.vec, centroid)
		if err != nil {
			continue
		}
		total += sim
	}
	return total / float64(len(members))
}
