// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/vellum-dev/vellum/internal/config"
)

// NewRootCmd creates the root vellum command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vellum",
		Short:         "Vellum — vector intelligence for research annotations",
		Long:          "Vellum embeds, stores, searches, clusters, and links research annotations as vectors.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newInitCmd(),
		newServeCmd(),
		newStatusCmd(),
		newVersionCmd(),
		newEmbedCmd(),
		newSearchCmd(),
		newClusterCmd(),
		newSecretCmd(),
	)

	return root
}

// loadConfig resolves the config path (flag, then the default location if
// it exists) and loads it. Commands work with pure defaults when no
// config file is present anywhere.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		if p, err := config.DefaultConfigPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			}
		}
	}
	if path != "" {
		config.WarnInsecurePermissions(path)
	}
	return config.Load(path)
}
