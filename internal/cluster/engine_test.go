// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package cluster_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vellum-dev/vellum/internal/cluster"
	"github.com/vellum-dev/vellum/internal/remote"
	"github.com/vellum-dev/vellum/internal/store"
	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// mapStore serves vectors for clustering without touching disk.
type mapStore struct {
	vectors map[string]store.StoredVector
}

func newMapStore(vectors ...store.StoredVector) *mapStore {
	m := &mapStore{vectors: make(map[string]store.StoredVector)}
	for _, v := range vectors {
		m.vectors[v.ID] = v
	}
	return m
}

func (m *mapStore) Store(_ context.Context, v store.StoredVector) error {
	m.vectors[v.ID] = v
	return nil
}

func (m *mapStore) StoreBatch(ctx context.Context, vs []store.StoredVector) error {
	for _, v := range vs {
		if err := m.Store(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

func (m *mapStore) Get(_ context.Context, id string) (store.StoredVector, error) {
	v, ok := m.vectors[id]
	if !ok {
		return store.StoredVector{}, velerr.Errorf(velerr.CodeStoreVectorNotFound, "vector %s not found", id)
	}
	return v, nil
}

func (m *mapStore) GetByDocument(_ context.Context, docID string) ([]store.StoredVector, error) {
	var out []store.StoredVector
	for _, v := range m.vectors {
		if v.DocumentID == docID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *mapStore) FindSimilar(context.Context, []float32, store.SearchOptions) ([]store.SearchResult, error) {
	return nil, nil
}

func (m *mapStore) Delete(_ context.Context, id string) error {
	delete(m.vectors, id)
	return nil
}

func (m *mapStore) DeleteByDocument(_ context.Context, docID string) error {
	for id, v := range m.vectors {
		if v.DocumentID == docID {
			delete(m.vectors, id)
		}
	}
	return nil
}

func (m *mapStore) Close() error { return nil }

func vec(id string, values ...float32) store.StoredVector {
	return store.StoredVector{ID: id, DocumentID: "doc-1", Values: values, ModelVersion: "test-v1"}
}

// twoGroups returns six points forming two well-separated groups.
func twoGroups() (*mapStore, []string) {
	s := newMapStore(
		vec("a1", 1, 0, 0),
		vec("a2", 0.9, 0.1, 0),
		vec("a3", 0.95, 0, 0.05),
		vec("b1", 0, 0, 1),
		vec("b2", 0, 0.1, 0.9),
		vec("b3", 0.05, 0, 0.95),
	)
	return s, []string{"a1", "a2", "a3", "b1", "b2", "b3"}
}

func newEngine(t *testing.T, s store.VectorStore, client *remote.Client) *cluster.Engine {
	t.Helper()
	e, err := cluster.NewEngine(s, client)
	require.NoError(t, err)
	return e
}

// assertCoverage checks the partition is total and disjoint.
func assertCoverage(t *testing.T, res *cluster.Result, inputCount int) {
	t.Helper()
	seen := make(map[string]int)
	total := 0
	for _, c := range res.Clusters {
		assert.Equal(t, len(c.Members), c.Size)
		total += c.Size
		for _, id := range c.Members {
			seen[id]++
		}
	}
	for _, id := range res.Outliers {
		seen[id]++
	}
	assert.Equal(t, inputCount, total+len(res.Outliers))
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %s must appear exactly once", id)
	}
}

func TestKMeansSeparatesGroups(t *testing.T) {
	s, ids := twoGroups()
	e := newEngine(t, s, nil)

	res, err := e.Cluster(context.Background(), ids, cluster.Config{
		Algorithm:   cluster.AlgorithmKMeans,
		NumClusters: 2,
		Seed:        42,
	})
	require.NoError(t, err)

	assertCoverage(t, res, len(ids))
	require.Equal(t, 2, res.TotalClusters)
	assert.Empty(t, res.Outliers)

	for _, c := range res.Clusters {
		assert.Equal(t, 3, c.Size, "each group has three members")
		assert.Greater(t, c.Cohesion, 0.9)
	}

	require.NotNil(t, res.Metadata.Silhouette)
	assert.Greater(t, *res.Metadata.Silhouette, 0.5, "well-separated groups score high")
	assert.LessOrEqual(t, *res.Metadata.Silhouette, 1.0)
}

func TestKMeansCentroidIsMemberMean(t *testing.T) {
	s, ids := twoGroups()
	e := newEngine(t, s, nil)
	ctx := context.Background()

	res, err := e.Cluster(ctx, ids, cluster.Config{
		Algorithm:   cluster.AlgorithmKMeans,
		NumClusters: 2,
		Seed:        7,
	})
	require.NoError(t, err)

	for _, c := range res.Clusters {
		dim := len(c.Centroid)
		mean := make([]float64, dim)
		for _, id := range c.Members {
			sv, err := s.Get(ctx, id)
			require.NoError(t, err)
			for i, v := range sv.Values {
				mean[i] += float64(v)
			}
		}
		for i := range mean {
			assert.InDelta(t, mean[i]/float64(c.Size), float64(c.Centroid[i]), 1e-5)
		}
	}
}

func TestHierarchicalReachesTargetCount(t *testing.T) {
	s, ids := twoGroups()
	e := newEngine(t, s, nil)

	res, err := e.Cluster(context.Background(), ids, cluster.Config{
		Algorithm:   cluster.AlgorithmHierarchical,
		NumClusters: 2,
	})
	require.NoError(t, err)

	assertCoverage(t, res, len(ids))
	assert.Equal(t, 2, res.TotalClusters)
	for _, c := range res.Clusters {
		assert.Equal(t, 3, c.Size)
	}
}

func TestDensityMarksOutliers(t *testing.T) {
	s := newMapStore(
		vec("a1", 1, 0),
		vec("a2", 0.95, 0),
		vec("a3", 0.9, 0),
		vec("lone", -5, 5),
	)
	e := newEngine(t, s, nil)

	res, err := e.Cluster(context.Background(), []string{"a1", "a2", "a3", "lone"}, cluster.Config{
		Algorithm: cluster.AlgorithmDensity,
		Epsilon:   0.2,
		MinPoints: 2,
	})
	require.NoError(t, err)

	assertCoverage(t, res, 4)
	require.Equal(t, 1, res.TotalClusters)
	assert.Equal(t, 3, res.Clusters[0].Size)
	assert.Equal(t, []string{"lone"}, res.Outliers)
	assert.Nil(t, res.Metadata.Silhouette, "single cluster has no silhouette")
}

func TestGraphNeuralDelegatesToRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/cluster/gnn", r.URL.Path)

		var req remote.GNNClusterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.EdgeWeights, len(req.NodeIDs))
		assert.True(t, req.UseAttention)

		// First two nodes together, third an outlier.
		_ = json.NewEncoder(w).Encode(remote.GNNClusterResponse{
			Assignments: []int{0, 0, -1},
			ModelInfo:   "gnn-v3",
		})
	}))
	defer srv.Close()

	client, err := remote.New(remote.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	s := newMapStore(vec("n1", 1, 0), vec("n2", 0.9, 0.1), vec("n3", 0, 1))
	e := newEngine(t, s, client)

	res, err := e.Cluster(context.Background(), []string{"n1", "n2", "n3"}, cluster.Config{
		Algorithm:    cluster.AlgorithmGraphNeural,
		NumClusters:  2,
		UseAttention: true,
	})
	require.NoError(t, err)

	assertCoverage(t, res, 3)
	require.Equal(t, 1, res.TotalClusters)
	assert.ElementsMatch(t, []string{"n1", "n2"}, res.Clusters[0].Members)
	assert.Equal(t, []string{"n3"}, res.Outliers)
	assert.Equal(t, "gnn-v3", res.Metadata.ModelInfo)
}

func TestGraphNeuralWithoutClientFails(t *testing.T) {
	s, ids := twoGroups()
	e := newEngine(t, s, nil)

	_, err := e.Cluster(context.Background(), ids, cluster.Config{
		Algorithm:   cluster.AlgorithmGraphNeural,
		NumClusters: 2,
	})
	require.Error(t, err)
}

func TestClusterInputValidation(t *testing.T) {
	s, _ := twoGroups()
	e := newEngine(t, s, nil)
	ctx := context.Background()
	kmeans2 := cluster.Config{Algorithm: cluster.AlgorithmKMeans, NumClusters: 2, Seed: 1}

	_, err := e.Cluster(ctx, nil, kmeans2)
	require.Error(t, err)
	assert.True(t, velerr.IsInvalidInput(err), "empty input")

	_, err = e.Cluster(ctx, []string{"a1", "a1"}, kmeans2)
	require.Error(t, err, "duplicate ids")

	_, err = e.Cluster(ctx, []string{"a1", "ghost"}, kmeans2)
	require.Error(t, err, "unknown id")

	_, err = e.Cluster(ctx, []string{"a1"}, kmeans2)
	require.Error(t, err, "more clusters than vectors")

	_, err = e.Cluster(ctx, []string{"a1", "a2"}, cluster.Config{Algorithm: "voronoi"})
	require.Error(t, err, "unknown algorithm")

	_, err = e.Cluster(ctx, []string{"a1", "a2"}, cluster.Config{Algorithm: cluster.AlgorithmDensity})
	require.Error(t, err, "density without epsilon")
}

func TestSingletonClusterCohesion(t *testing.T) {
	s := newMapStore(vec("a", 1, 0), vec("b", 0, 1))
	e := newEngine(t, s, nil)

	res, err := e.Cluster(context.Background(), []string{"a", "b"}, cluster.Config{
		Algorithm:   cluster.AlgorithmKMeans,
		NumClusters: 2,
		Seed:        3,
	})
	require.NoError(t, err)

	require.Equal(t, 2, res.TotalClusters)
	for _, c := range res.Clusters {
		assert.Equal(t, 1.0, c.Cohesion, "singleton clusters are perfectly cohesive")
	}
	assert.Nil(t, res.Metadata.Silhouette, "all-singleton partition is degenerate")
}
