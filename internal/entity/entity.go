// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

// Package entity deduplicates and links named entities across documents
// through semantic similarity over their stored embeddings.
package entity

import (
	"github.com/vellum-dev/vellum/internal/store"
	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// Entity is a named thing mentioned in annotated documents. Contexts
// keeps one descriptive snippet per document the entity appears in.
type Entity struct {
	ID          string
	Name        string
	Kind        string
	DocumentIDs []string
	Contexts    map[string]string
}

// Validate checks the fields required for linking.
func (e *Entity) Validate() error {
	if e.Name == "" {
		return velerr.New(velerr.CodeEntityInputInvalid, "entity name must not be empty")
	}
	return nil
}

// metadata keys used to persist entities inside vector records.
const (
	metaName        = "entity_name"
	metaKind        = "entity_kind"
	metaDocumentIDs = "entity_document_ids"
	metaContexts    = "entity_contexts"
)

// toMetadata flattens an entity into vector-record metadata.
func (e *Entity) toMetadata() map[string]any {
	docs := make([]any, len(e.DocumentIDs))
	for i, d := range e.DocumentIDs {
		docs[i] = d
	}
	contexts := make(map[string]any, len(e.Contexts))
	for doc, ctx := range e.Contexts {
		contexts[doc] = ctx
	}
	return map[string]any{
		metaName:        e.Name,
		metaKind:        e.Kind,
		metaDocumentIDs: docs,
		metaContexts:    contexts,
	}
}

// entityFromVector rebuilds an entity from a stored vector record. JSON
// round-trips turn string slices and maps into []any / map[string]any.
func entityFromVector(v store.StoredVector) (Entity, error) {
	name, _ := v.Metadata[metaName].(string)
	if name == "" {
		return Entity{}, velerr.Errorf(velerr.CodeEntityLinkFailure,
			"vector %s does not hold an entity record", v.ID)
	}

	e := Entity{
		ID:       v.ID,
		Name:     name,
		Contexts: make(map[string]string),
	}
	e.Kind, _ = v.Metadata[metaKind].(string)

	if raw, ok := v.Metadata[metaDocumentIDs].([]any); ok {
		for _, d := range raw {
			if doc, ok := d.(string); ok {
				e.DocumentIDs = append(e.DocumentIDs, doc)
			}
		}
	}
	if raw, ok := v.Metadata[metaContexts].(map[string]any); ok {
		for doc, ctx := range raw {
			if s, ok := ctx.(string); ok {
				e.Contexts[doc] = s
			}
		}
	}
	return e, nil
}

// hasDocument reports whether doc is already referenced.
func (e *Entity) hasDocument(doc string) bool {
	for _, d := range e.DocumentIDs {
		if d == doc {
			return true
		}
	}
	return false
}
