// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vellum-dev/vellum/internal/store"
)

func newEmbedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embed <text>...",
		Short: "Embed texts and store the vectors",
		Long:  "Compute embeddings for the given texts (cache-checked) and persist them in the vector store.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runEmbed,
	}

	cmd.Flags().String("document", "", "document id to file the vectors under")
	cmd.Flags().Bool("no-store", false, "compute embeddings without persisting them")

	return cmd
}

func runEmbed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	app, err := WireApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	res, err := app.Embedder.EmbedBatch(cmd.Context(), args)
	if err != nil {
		return err
	}

	documentID, _ := cmd.Flags().GetString("document")
	noStore, _ := cmd.Flags().GetBool("no-store")

	out := cmd.OutOrStdout()
	if !noStore {
		svs := make([]store.StoredVector, len(res.Vectors))
		for i, v := range res.Vectors {
			svs[i] = store.StoredVector{
				ID:           uuid.NewString(),
				DocumentID:   documentID,
				Text:         v.Text,
				Values:       v.Values,
				ModelVersion: v.ModelVersion,
				CreatedAt:    time.Now().UTC(),
			}
		}
		if err := app.Store.StoreBatch(cmd.Context(), svs); err != nil {
			return err
		}
		for _, sv := range svs {
			_, _ = fmt.Fprintf(out, "%s  %s\n", sv.ID, truncateText(sv.Text, 60))
		}
	}

	_, _ = fmt.Fprintf(out, "Embedded %d texts (%d cached, %d computed) in %s\n",
		len(res.Vectors), res.CachedCount, res.ComputedCount, res.Duration.Round(time.Millisecond))
	return nil
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
