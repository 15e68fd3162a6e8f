// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package embed

import (
	"os"

	"gopkg.in/yaml.v3"

	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// ManifestModel describes one downloadable model in models.yaml.
type ManifestModel struct {
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
	SHA256     string `yaml:"sha256"`
	Dimensions int    `yaml:"dimensions"`
}

// Manifest is the model catalog loaded from models.yaml.
type Manifest struct {
	Models []ManifestModel `yaml:"models"`
}

// LoadManifest reads and validates a model manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, velerr.Wrapf(err, velerr.CodeEmbedManifestInvalid, "reading model manifest %s", path)
	}
	return ParseManifest(data)
}

// ParseManifest decodes manifest YAML and rejects incomplete entries.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, velerr.Wrap(err, velerr.CodeEmbedManifestInvalid, "parsing model manifest")
	}

	seen := make(map[string]struct{}, len(m.Models))
	for i, model := range m.Models {
		if model.Name == "" {
			return nil, velerr.Errorf(velerr.CodeEmbedManifestInvalid, "manifest model %d has no name", i)
		}
		if model.URL == "" {
			return nil, velerr.Errorf(velerr.CodeEmbedManifestInvalid, "manifest model %q has no url", model.Name)
		}
		if model.Dimensions <= 0 {
			return nil, velerr.Errorf(velerr.CodeEmbedManifestInvalid,
				"manifest model %q has invalid dimensions %d", model.Name, model.Dimensions)
		}
		if _, dup := seen[model.Name]; dup {
			return nil, velerr.Errorf(velerr.CodeEmbedManifestInvalid, "manifest model %q appears twice", model.Name)
		}
		seen[model.Name] = struct{}{}
	}
	return &m, nil
}

// Lookup finds a model by name.
func (m *Manifest) Lookup(name string) (ManifestModel, error) {
	for _, model := range m.Models {
		if model.Name == name {
			return model, nil
		}
	}
	return ManifestModel{}, velerr.Errorf(velerr.CodeEmbedBackendNotFound, "model %q not in manifest", name)
}
