// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package entity

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/vellum-dev/vellum/internal/embed"
	"github.com/vellum-dev/vellum/internal/store"
	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// LinkCandidate is one existing entity that may be the same thing as a
// new mention. ShouldMerge is set when the score clears the merge
// threshold.
type LinkCandidate struct {
	Entity      Entity
	Score       float64
	ShouldMerge bool
}

// LinkerConfig tunes candidate retrieval.
type LinkerConfig struct {
	// MergeThreshold is the similarity at which a candidate should be
	// merged. Defaults to 0.85.
	MergeThreshold float64
	// CandidateFloor is the minimum similarity for a candidate to be
	// reported at all. Defaults to 0.5.
	CandidateFloor float64
	// TopK caps the candidate list. Defaults to 10.
	TopK int
}

const (
	defaultMergeThreshold = 0.85
	defaultCandidateFloor = 0.5
	defaultTopK           = 10

	// entityDocument is the synthetic document id entity vectors live
	// under, keeping them out of paragraph-scoped searches.
	entityDocument = "_entities"
)

func (c *LinkerConfig) applyDefaults() error {
	if c.MergeThreshold == 0 {
		c.MergeThreshold = defaultMergeThreshold
	}
	if c.CandidateFloor == 0 {
		c.CandidateFloor = defaultCandidateFloor
	}
	if c.TopK == 0 {
		c.TopK = defaultTopK
	}
	if c.MergeThreshold < 0 || c.MergeThreshold > 1 || c.CandidateFloor < 0 || c.CandidateFloor > c.MergeThreshold {
		return velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"entity linker thresholds out of range (merge=%g floor=%g)", c.MergeThreshold, c.CandidateFloor)
	}
	return nil
}

// Linker finds and merges duplicate entities.
type Linker struct {
	store store.VectorStore
	embed *embed.Service
	cfg   LinkerConfig
}

// NewLinker creates an entity linker over the vector store and the
// embedding service.
func NewLinker(vs store.VectorStore, svc *embed.Service, cfg LinkerConfig) (*Linker, error) {
	if vs == nil || svc == nil {
		return nil, velerr.New(velerr.CodeEntityLinkFailure,
			"entity linker requires a vector store and an embedding service")
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &Linker{store: vs, embed: svc, cfg: cfg}, nil
}

// Save embeds and persists an entity, returning it with its assigned id.
func (l *Linker) Save(ctx context.Context, e Entity) (Entity, error) {
	if err := e.Validate(); err != nil {
		return Entity{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Contexts == nil {
		e.Contexts = make(map[string]string)
	}

	v, err := l.embed.Embed(ctx, embeddingText(e))
	if err != nil {
		return Entity{}, velerr.Wrapf(err, velerr.CodeEntityLinkFailure, "embedding entity %q", e.Name)
	}

	err = l.store.Store(ctx, store.StoredVector{
		ID:           e.ID,
		DocumentID:   entityDocument,
		Text:         embeddingText(e),
		Values:       v.Values,
		ModelVersion: v.ModelVersion,
		Metadata:     e.toMetadata(),
	})
	if err != nil {
		return Entity{}, err
	}
	return e, nil
}

// Get loads one entity by id.
func (l *Linker) Get(ctx context.Context, id string) (Entity, error) {
	sv, err := l.store.Get(ctx, id)
	if err != nil {
		return Entity{}, err
	}
	return entityFromVector(sv)
}

// FindLinkCandidates searches existing entities semantically similar to
// the candidate, ranked by score. documentID is recorded on the mention
// but does not restrict the search: an entity links across documents.
func (l *Linker) FindLinkCandidates(ctx context.Context, candidate Entity, documentID string) ([]LinkCandidate, error) {
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	if documentID == "" {
		return nil, velerr.New(velerr.CodeEntityInputInvalid, "link candidates require a document id")
	}

	v, err := l.embed.Embed(ctx, embeddingText(candidate))
	if err != nil {
		return nil, velerr.Wrapf(err, velerr.CodeEntityLinkFailure, "embedding entity %q", candidate.Name)
	}

	results, err := l.store.FindSimilar(ctx, v.Values, store.SearchOptions{
		Threshold:  l.cfg.CandidateFloor,
		TopK:       l.cfg.TopK,
		DocumentID: entityDocument,
		ExcludeIDs: []string{candidate.ID},
	})
	if err != nil {
		return nil, velerr.Wrapf(err, velerr.CodeEntityLinkFailure, "searching candidates for %q", candidate.Name)
	}

	candidates := make([]LinkCandidate, 0, len(results))
	for _, r := range results {
		e, err := entityFromVector(r.Vector)
		if err != nil {
			continue // not an entity record
		}
		candidates = append(candidates, LinkCandidate{
			Entity:      e,
			Score:       r.Similarity,
			ShouldMerge: r.Similarity >= l.cfg.MergeThreshold,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	return candidates, nil
}

// Merge folds incoming into the entity stored under targetID: document
// references are unioned and contexts are merged per document without
// overwriting anything already recorded. The merged entity is persisted
// and returned.
func (l *Linker) Merge(ctx context.Context, targetID string, incoming Entity) (Entity, error) {
	target, err := l.Get(ctx, targetID)
	if err != nil {
		return Entity{}, err
	}

	for _, doc := range incoming.DocumentIDs {
		if !target.hasDocument(doc) {
			target.DocumentIDs = append(target.DocumentIDs, doc)
		}
	}
	for doc, ctxText := range incoming.Contexts {
		if _, exists := target.Contexts[doc]; !exists {
			target.Contexts[doc] = ctxText
		}
	}

	return l.Save(ctx, target)
}

// embeddingText is what an entity is embedded as: its name plus kind,
// which separates "Mercury (planet)" from "Mercury (element)".
func embeddingText(e Entity) string {
	if e.Kind == "" {
		return e.Name
	}
	return e.Name + " (" + e.Kind + ")"
}
