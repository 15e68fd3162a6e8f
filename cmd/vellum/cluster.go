// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vellum-dev/vellum/internal/cluster"
	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

func newClusterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Cluster the vectors of a document",
		Long:  "Group a document's stored vectors into clusters using the configured algorithm.",
		RunE:  runCluster,
	}

	cmd.Flags().String("document", "", "document id whose vectors to cluster")
	cmd.Flags().String("algorithm", "", "override cluster.algorithm (kmeans, hierarchical, density, graph-neural)")
	cmd.Flags().IntP("clusters", "k", 0, "target cluster count (kmeans, hierarchical, graph-neural)")
	cmd.Flags().Int64("seed", 0, "seed for reproducible kmeans runs")
	_ = cmd.MarkFlagRequired("document")

	return cmd
}

func runCluster(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	app, err := WireApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	documentID, _ := cmd.Flags().GetString("document")
	svs, err := app.Store.GetByDocument(cmd.Context(), documentID)
	if err != nil {
		return err
	}
	if len(svs) == 0 {
		return velerr.Errorf(velerr.CodeCLIInputInvalid, "document %q has no stored vectors", documentID)
	}

	ids := make([]string, len(svs))
	for i, sv := range svs {
		ids[i] = sv.ID
	}

	ccfg := cluster.Config{
		Algorithm:     cluster.Algorithm(cfg.Cluster.Algorithm),
		MaxIterations: cfg.Cluster.MaxIterations,
		Epsilon:       cfg.Cluster.Epsilon,
		MinPoints:     cfg.Cluster.MinPoints,
	}
	if alg, _ := cmd.Flags().GetString("algorithm"); alg != "" {
		ccfg.Algorithm = cluster.Algorithm(alg)
	}
	if k, _ := cmd.Flags().GetInt("clusters"); k > 0 {
		ccfg.NumClusters = k
	}
	if seed, _ := cmd.Flags().GetInt64("seed"); seed != 0 {
		ccfg.Seed = seed
	}

	res, err := app.Cluster.Cluster(cmd.Context(), ids, ccfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "%d clusters (%s, %d iterations, %s)\n",
		res.TotalClusters, res.Metadata.Algorithm, res.Metadata.Iterations,
		res.Metadata.Duration.Round(time.Millisecond))
	if res.Metadata.Silhouette != nil {
		_, _ = fmt.Fprintf(out, "silhouette: %.4f\n", *res.Metadata.Silhouette)
	}

	for i, c := range res.Clusters {
		_, _ = fmt.Fprintf(out, "cluster %d: %d members, cohesion %.4f\n", i, c.Size, c.Cohesion)
	}
	if len(res.Outliers) > 0 {
		_, _ = fmt.Fprintf(out, "outliers: %d\n", len(res.Outliers))
	}
	return nil
}
