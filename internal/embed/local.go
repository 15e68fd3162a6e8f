// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package embed

import (
	"bufio"
	"context"
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"unicode"

	velerr "github.com/vellum-dev/vellum/pkg/errors"
	"github.com/vellum-dev/vellum/pkg/vecmath"
)

// initState tracks the local model's lazy initialization.
type initState int

const (
	initNone initState = iota
	initRunning
	initReady
)

// LocalConfig configures the in-process embedding model.
type LocalConfig struct {
	// ModelVersion names this model; cached vectors are keyed by it.
	ModelVersion string
	// Dimensions is the output vector size.
	Dimensions int
	// ArtifactURL, when set, is the term-weight artifact to download
	// before first use.
	ArtifactURL string
	// ArtifactPath is where the artifact lives (or is downloaded to).
	ArtifactPath string
	// ArtifactSHA256, when set, is verified after download.
	ArtifactSHA256 string
	// FetchRetries bounds download attempts.
	FetchRetries int
	// OnProgress receives download progress updates.
	OnProgress func(Progress)
}

// Local is the in-process model: a deterministic hashed bag-of-terms
// embedder. Tokens are hashed into stable pseudo-random vectors, scaled
// by optional term weights from the model artifact, mean-pooled under an
// attention mask and L2-normalized. Initialization is lazy and
// at-most-once: concurrent first callers share one in-flight future, and
// a failed initialization clears it so a later call can retry.
type Local struct {
	cfg LocalConfig

	mu      sync.Mutex
	state   initState
	initing chan struct{}
	weights map[string]float32
}

// stopwords are excluded from pooling via a zero attention mask.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "he": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "of": {}, "on": {}, "or": {}, "that": {}, "the": {},
	"to": {}, "was": {}, "were": {}, "will": {}, "with": {},
}

// NewLocal creates the local backend. The model is not loaded until the
// first embedding call.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.ModelVersion == "" {
		return nil, velerr.New(velerr.CodeConfigValidateInvalidValue, "local model version must not be empty")
	}
	if cfg.Dimensions <= 0 {
		return nil, velerr.Errorf(velerr.CodeConfigValidateInvalidValue,
			"local model dimensions must be positive, got %d", cfg.Dimensions)
	}
	return &Local{cfg: cfg}, nil
}

func (l *Local) Name() string         { return "local" }
func (l *Local) ModelVersion() string { return l.cfg.ModelVersion }
func (l *Local) Dimensions() int      { return l.cfg.Dimensions }

// Embed converts text into a normalized vector.
func (l *Local) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.ensureReady(ctx); err != nil {
		return nil, err
	}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return make([]float32, l.cfg.Dimensions), nil
	}

	tokenVecs := make([][]float32, len(tokens))
	mask := make([]float32, len(tokens))
	for i, tok := range tokens {
		tokenVecs[i] = l.tokenVector(tok)
		if _, stop := stopwords[tok]; !stop {
			mask[i] = 1
		}
	}

	pooled := vecmath.MeanPool(tokenVecs, mask, l.cfg.Dimensions)
	return vecmath.Normalize(pooled), nil
}

// EmbedBatch embeds each text in order.
func (l *Local) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		values, err := l.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = values
	}
	return out, nil
}

func (l *Local) Close() error { return nil }

// ensureReady initializes the model exactly once. The first caller
// creates the in-flight future; concurrent callers await it. A failure
// clears the future so a retry is possible.
func (l *Local) ensureReady(ctx context.Context) error {
	l.mu.Lock()
	switch l.state {
	case initReady:
		l.mu.Unlock()
		return nil

	case initRunning:
		ch := l.initing
		l.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return velerr.Wrap(ctx.Err(), velerr.CodeEmbedModelInitFailure,
				"aborted while awaiting model initialization")
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		if l.state != initReady {
			return velerr.New(velerr.CodeEmbedModelInitFailure, "shared model initialization failed")
		}
		return nil

	default:
		ch := make(chan struct{})
		l.initing = ch
		l.state = initRunning
		l.mu.Unlock()

		err := l.load(ctx)

		l.mu.Lock()
		if err != nil {
			l.state = initNone
			l.initing = nil
		} else {
			l.state = initReady
		}
		l.mu.Unlock()
		close(ch)
		return err
	}
}

// load fetches the artifact if configured and reads term weights from it.
func (l *Local) load(ctx context.Context) error {
	if l.cfg.ArtifactPath == "" {
		return nil // uniform weights
	}

	if l.cfg.ArtifactURL != "" {
		if _, err := os.Stat(l.cfg.ArtifactPath); os.IsNotExist(err) {
			err := FetchArtifact(ctx, FetchRequest{
				URL:        l.cfg.ArtifactURL,
				Dest:       l.cfg.ArtifactPath,
				SHA256:     l.cfg.ArtifactSHA256,
				Retries:    l.cfg.FetchRetries,
				OnProgress: l.cfg.OnProgress,
			})
			if err != nil {
				return err
			}
		}
	}

	weights, err := loadTermWeights(l.cfg.ArtifactPath)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.weights = weights
	l.mu.Unlock()
	return nil
}

// loadTermWeights parses "term weight" lines from the artifact.
func loadTermWeights(path string) (map[string]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, velerr.Wrapf(err, velerr.CodeEmbedModelInitFailure, "opening model artifact %s", path)
	}
	defer func() { _ = f.Close() }()

	weights := make(map[string]float32)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, velerr.Errorf(velerr.CodeEmbedModelInitFailure,
				"malformed artifact line %q in %s", line, path)
		}
		w, err := strconv.ParseFloat(fields[1], 32)
		if err != nil {
			return nil, velerr.Wrapf(err, velerr.CodeEmbedModelInitFailure,
				"parsing weight for term %q in %s", fields[0], path)
		}
		weights[fields[0]] = float32(w)
	}
	if err := scanner.Err(); err != nil {
		return nil, velerr.Wrapf(err, velerr.CodeEmbedModelInitFailure, "reading model artifact %s", path)
	}

	return weights, nil
}

// tokenVector derives a stable pseudo-random unit-range vector for a
// token, scaled by its term weight when the artifact provides one.
func (l *Local) tokenVector(token string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(l.cfg.ModelVersion))
	h.Write([]byte{0})
	h.Write([]byte(token))
	seed := h.Sum64()

	weight := float32(1)
	l.mu.Lock()
	if w, ok := l.weights[token]; ok {
		weight = w
	}
	l.mu.Unlock()

	vec := make([]float32, l.cfg.Dimensions)
	state := seed
	for i := range vec {
		// xorshift64: deterministic per (modelVersion, token).
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		vec[i] = (float32(state%2000)/1000 - 1) * weight
	}
	return vec
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
