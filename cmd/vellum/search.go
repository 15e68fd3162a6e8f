// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vellum-dev/vellum/internal/store"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find stored vectors similar to a query",
		Long:  "Embed the query text and rank stored vectors by cosine similarity.",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}

	cmd.Flags().Float64("threshold", 0.6, "minimum similarity to include")
	cmd.Flags().Int("top-k", 10, "maximum number of results")
	cmd.Flags().String("document", "", "restrict the search to one document")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	app, err := WireApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	vec, err := app.Embedder.Embed(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	threshold, _ := cmd.Flags().GetFloat64("threshold")
	topK, _ := cmd.Flags().GetInt("top-k")
	documentID, _ := cmd.Flags().GetString("document")

	results, err := app.Store.FindSimilar(cmd.Context(), vec.Values, store.SearchOptions{
		Threshold:  threshold,
		TopK:       topK,
		DocumentID: documentID,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		_, _ = fmt.Fprintln(out, "No matches.")
		return nil
	}

	for _, r := range results {
		_, _ = fmt.Fprintf(out, "%.4f  %s  %s\n", r.Similarity, r.Vector.ID, truncateText(r.Vector.Text, 60))
	}
	return nil
}
