// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package secrets_test

import (
	"testing"

	"github.com/vellum-dev/vellum/internal/secrets"
	velerr "github.com/vellum-dev/vellum/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsKeyringURI(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"valid URI", "keyring://vellum/openai-api-key", true},
		{"valid URI with dashes", "keyring://my-svc/my-key", true},
		{"env var reference", "${OPENAI_API_KEY}", false},
		{"literal value", "sk-abc123", false},
		{"empty string", "", false},
		{"just scheme", "keyring://", true},
		{"other scheme", "vault://secret/key", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := secrets.IsKeyringURI(tt.value)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKeyringURI(t *testing.T) {
	tests := []struct {
		name        string
		uri         string
		wantService string
		wantKey     string
		wantErr     bool
	}{
		{"valid", "keyring://vellum/api-key", "vellum", "api-key", false},
		{"dashes", "keyring://my-service/my-key-name", "my-service", "my-key-name", false},
		{"slashes in key", "keyring://vellum/path/to/key", "vellum", "path/to/key", false},
		{"not a keyring URI", "vault://secret/key", "", "", true},
		{"missing key", "keyring://vellum/", "", "", true},
		{"missing service", "keyring:///key", "", "", true},
		{"missing both", "keyring://", "", "", true},
		{"no path", "keyring://vellum", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, key, err := secrets.ParseKeyringURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, velerr.HasCode(err, velerr.CodeSecretInvalidInput))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantService, svc)
				assert.Equal(t, tt.wantKey, key)
			}
		})
	}
}

func TestResolveKeyringURI(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Store("vellum", "test-key", "resolved-secret"))

	t.Run("resolves keyring URI", func(t *testing.T) {
		val, err := secrets.ResolveKeyringURI(ks, "keyring://vellum/test-key")
		require.NoError(t, err)
		assert.Equal(t, "resolved-secret", val)
	})

	t.Run("passes through non-keyring values", func(t *testing.T) {
		val, err := secrets.ResolveKeyringURI(ks, "literal-value")
		require.NoError(t, err)
		assert.Equal(t, "literal-value", val)
	})

	t.Run("passes through env var references", func(t *testing.T) {
		val, err := secrets.ResolveKeyringURI(ks, "${ENV_VAR}")
		require.NoError(t, err)
		assert.Equal(t, "${ENV_VAR}", val)
	})

	t.Run("error on missing secret", func(t *testing.T) {
		_, err := secrets.ResolveKeyringURI(ks, "keyring://vellum/nonexistent")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "resolving keyring URI")
	})

	t.Run("error on malformed URI", func(t *testing.T) {
		_, err := secrets.ResolveKeyringURI(ks, "keyring://bad")
		require.Error(t, err)
	})
}

func TestResolveViperSecrets(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Store("vellum", "openai-api-key", "sk-oai-secret"))
	require.NoError(t, ks.Store("vellum", "remote-api-key", "rk-secret"))

	v := viper.New()
	v.Set("embedding.api_key", "keyring://vellum/openai-api-key")
	v.Set("remote.api_key", "keyring://vellum/remote-api-key")
	v.Set("server.listen", "127.0.0.1:18790") // non-keyring value
	v.Set("embedding.model_version", "text-embedding-3-small")

	secrets.ResolveViperSecrets(v, ks)

	assert.Equal(t, "sk-oai-secret", v.GetString("embedding.api_key"))
	assert.Equal(t, "rk-secret", v.GetString("remote.api_key"))
	assert.Equal(t, "127.0.0.1:18790", v.GetString("server.listen"))
	assert.Equal(t, "text-embedding-3-small", v.GetString("embedding.model_version"))
}

func TestResolveViperSecrets_MissingSecretKeepsOriginal(t *testing.T) {
	ks := secrets.NewKeyringStore()

	v := viper.New()
	v.Set("embedding.api_key", "keyring://vellum/nonexistent-key")

	// Resolution failures keep the original URI so the error surfaces when
	// the value is actually used.
	secrets.ResolveViperSecrets(v, ks)

	assert.Equal(t, "keyring://vellum/nonexistent-key", v.GetString("embedding.api_key"))
}
