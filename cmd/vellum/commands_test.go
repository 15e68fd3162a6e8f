// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig writes a minimal config pointing all state at a temp dir
// and returns its path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "vellum.yaml")

	content := fmt.Sprintf(`
embedding:
  backend: local
  model_version: cli-test-v1
  dimensions: 64
cache:
  path: %q
store:
  path: %q
`, filepath.Join(dir, "cache.db"), filepath.Join(dir, "vectors.db"))

	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))
	return cfgPath
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestEmbedCommand_StoresVectors(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCommand(t, "embed", "--config", cfgPath, "--document", "doc-1",
		"glacier retreat in alpine valleys",
		"ice core sampling methodology")
	require.NoError(t, err)
	assert.Contains(t, out, "Embedded 2 texts")
	assert.Contains(t, out, "2 computed")
}

func TestEmbedCommand_NoStore(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCommand(t, "embed", "--config", cfgPath, "--no-store", "some annotation text")
	require.NoError(t, err)
	assert.Contains(t, out, "Embedded 1 texts")
}

func TestSearchCommand_FindsStoredText(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := runCommand(t, "embed", "--config", cfgPath, "--document", "doc-1",
		"glacier retreat in alpine valleys",
		"deep sea hydrothermal vents")
	require.NoError(t, err)

	// The exact stored text matches itself with similarity 1.
	out, err := runCommand(t, "search", "--config", cfgPath,
		"--threshold", "0.95", "glacier retreat in alpine valleys")
	require.NoError(t, err)
	assert.Contains(t, out, "glacier retreat in alpine valleys")
	assert.Contains(t, out, "1.0000")
}

func TestSearchCommand_NoMatches(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCommand(t, "search", "--config", cfgPath, "anything at all")
	require.NoError(t, err)
	assert.Contains(t, out, "No matches.")
}

func TestClusterCommand(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := runCommand(t, "embed", "--config", cfgPath, "--document", "doc-1",
		"glacier retreat in alpine valleys",
		"ice core sampling methodology",
		"deep sea hydrothermal vents",
		"benthic fauna near ocean ridges")
	require.NoError(t, err)

	out, err := runCommand(t, "cluster", "--config", cfgPath,
		"--document", "doc-1", "-k", "2", "--seed", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "2 clusters")
	assert.Contains(t, out, "kmeans")
}

func TestClusterCommand_EmptyDocument(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := runCommand(t, "cluster", "--config", cfgPath, "--document", "no-such-doc", "-k", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stored vectors")
}
