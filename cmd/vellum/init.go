// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vellum-dev/vellum/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long:  "Create a commented default config at ~/.config/vellum/vellum.yaml unless one already exists.",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	if path := config.BootstrapConfig(); path != "" {
		_, _ = fmt.Fprintf(out, "Wrote default config to %s\n", path)
		return nil
	}

	existing, err := config.DefaultConfigPath()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Config already exists at %s\n", existing)
	return nil
}
