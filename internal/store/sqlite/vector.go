// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

// Package sqlite implements the vector store on SQLite with the vec0
// extension for embedding storage.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vellum-dev/vellum/internal/cache"
	"github.com/vellum-dev/vellum/internal/store"
	velerr "github.com/vellum-dev/vellum/pkg/errors"
	"github.com/vellum-dev/vellum/pkg/vecmath"
)

func init() {
	sqlite_vec.Auto()
}

// slowSearchThreshold is the latency past which a similarity search is
// logged as a warning. Slow searches are never treated as failures.
const slowSearchThreshold = 100 * time.Millisecond

// hotReadCapacity bounds the in-memory mirror of recently read vectors.
const hotReadCapacity = 256

// Compile-time interface check.
var _ store.VectorStore = (*VectorStore)(nil)

// VectorStore implements store.VectorStore backed by SQLite with
// sqlite-vec, with a bounded LRU in front of point reads.
type VectorStore struct {
	db         *sql.DB
	dimensions int
	hot        *cache.LRU[string, store.StoredVector]
}

// NewVectorStore opens (or creates) a SQLite database at dbPath and
// initialises the vec0 virtual table and companion metadata table.
func NewVectorStore(dbPath string, dimensions int) (*VectorStore, error) {
	if dimensions <= 0 {
		return nil, velerr.Errorf(velerr.CodeStoreInvalidInput,
			"vector store dimensions must be positive, got %d", dimensions)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, velerr.Wrapf(err, velerr.CodeStoreDatabaseFailure, "opening sqlite db %s", dbPath)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, velerr.Wrapf(err, velerr.CodeStoreDatabaseFailure, "pinging sqlite db %s", dbPath)
	}

	if err := migrateVector(db, dimensions); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &VectorStore{
		db:         db,
		dimensions: dimensions,
		hot:        cache.NewLRU[string, store.StoredVector](hotReadCapacity),
	}, nil
}

func migrateVector(db *sql.DB, dimensions int) error {
	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vectors USING vec0(id TEXT PRIMARY KEY, embedding float[%d])`,
		dimensions,
	)
	if _, err := db.Exec(vecDDL); err != nil {
		return velerr.Wrap(err, velerr.CodeStoreDatabaseFailure, "creating vectors virtual table")
	}

	const metaDDL = `
CREATE TABLE IF NOT EXISTS vector_metadata (
	id            TEXT PRIMARY KEY,
	document_id   TEXT NOT NULL,
	paragraph_id  TEXT NOT NULL DEFAULT '',
	text          TEXT NOT NULL DEFAULT '',
	model_version TEXT NOT NULL DEFAULT '',
	metadata      TEXT NOT NULL DEFAULT '{}',
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vector_metadata_document  ON vector_metadata(document_id);
CREATE INDEX IF NOT EXISTS idx_vector_metadata_paragraph ON vector_metadata(paragraph_id);
CREATE INDEX IF NOT EXISTS idx_vector_metadata_created   ON vector_metadata(created_at)`
	if _, err := db.Exec(metaDDL); err != nil {
		return velerr.Wrap(err, velerr.CodeStoreDatabaseFailure, "creating vector_metadata table")
	}

	return nil
}

// Store inserts or replaces a vector and its metadata.
func (v *VectorStore) Store(ctx context.Context, sv store.StoredVector) error {
	if err := v.validate(sv); err != nil {
		return err
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return velerr.Wrap(err, velerr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := v.upsertTx(ctx, tx, sv); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return velerr.Wrap(err, velerr.CodeStoreDatabaseFailure, "committing vector store")
	}

	v.hot.Put(sv.ID, sv)
	return nil
}

// StoreBatch inserts or replaces vectors in a single transaction.
func (v *VectorStore) StoreBatch(ctx context.Context, svs []store.StoredVector) error {
	if len(svs) == 0 {
		return nil
	}
	for _, sv := range svs {
		if err := v.validate(sv); err != nil {
			return err
		}
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return velerr.Wrap(err, velerr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, sv := range svs {
		if err := v.upsertTx(ctx, tx, sv); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return velerr.Wrap(err, velerr.CodeStoreDatabaseFailure, "committing vector batch")
	}

	for _, sv := range svs {
		v.hot.Put(sv.ID, sv)
	}
	return nil
}

func (v *VectorStore) validate(sv store.StoredVector) error {
	if sv.ID == "" || sv.DocumentID == "" {
		return velerr.New(velerr.CodeStoreInvalidInput,
			"stored vectors require an id and a document id",
			velerr.FieldVectorID(sv.ID))
	}
	if len(sv.Values) != v.dimensions {
		return velerr.Errorf(velerr.CodeStoreDimensionMismatch,
			"vector %s has dimension %d, store expects %d", sv.ID, len(sv.Values), v.dimensions)
	}
	return nil
}

func (v *VectorStore) upsertTx(ctx context.Context, tx *sql.Tx, sv store.StoredVector) error {
	blob, err := sqlite_vec.SerializeFloat32(sv.Values)
	if err != nil {
		return velerr.Wrapf(err, velerr.CodeStoreInvalidInput, "serializing embedding %s", sv.ID)
	}

	metaJSON := []byte("{}")
	if len(sv.Metadata) > 0 {
		metaJSON, err = json.Marshal(sv.Metadata)
		if err != nil {
			return velerr.Wrapf(err, velerr.CodeStoreInvalidInput, "marshalling metadata %s", sv.ID)
		}
	}

	createdAt := sv.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	// vec0 does not support ON CONFLICT; delete first for upsert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, sv.ID); err != nil {
		return velerr.Wrapf(err, velerr.CodeStoreDatabaseFailure, "deleting existing vector %s", sv.ID)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO vectors(id, embedding) VALUES (?, ?)`, sv.ID, blob); err != nil {
		return velerr.Wrapf(err, velerr.CodeStoreDatabaseFailure, "inserting vector %s", sv.ID)
	}

	const metaQ = `INSERT INTO vector_metadata(id, document_id, paragraph_id, text, model_version, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	document_id = excluded.document_id,
	paragraph_id = excluded.paragraph_id,
	text = excluded.text,
	model_version = excluded.model_version,
	metadata = excluded.metadata,
	created_at = excluded.created_at`
	if _, err := tx.ExecContext(ctx, metaQ,
		sv.ID, sv.DocumentID, sv.ParagraphID, sv.Text, sv.ModelVersion, string(metaJSON), createdAt.UnixNano()); err != nil {
		return velerr.Wrapf(err, velerr.CodeStoreDatabaseFailure, "upserting vector metadata %s", sv.ID)
	}

	return nil
}

// Get returns a single vector by ID, serving hot reads from the LRU.
func (v *VectorStore) Get(ctx context.Context, id string) (store.StoredVector, error) {
	if sv, ok := v.hot.Get(id); ok {
		return sv, nil
	}

	svs, err := v.query(ctx, `WHERE m.id = ?`, id)
	if err != nil {
		return store.StoredVector{}, err
	}
	if len(svs) == 0 {
		return store.StoredVector{}, velerr.New(velerr.CodeStoreVectorNotFound,
			"vector not found", velerr.FieldVectorID(id))
	}

	v.hot.Put(id, svs[0])
	return svs[0], nil
}

// GetByDocument returns all vectors belonging to a document.
func (v *VectorStore) GetByDocument(ctx context.Context, documentID string) ([]store.StoredVector, error) {
	return v.query(ctx, `WHERE m.document_id = ?`, documentID)
}

// FindSimilar ranks candidates by cosine similarity against query,
// keeping results at or above the threshold, sorted descending and
// truncated to TopK. Candidates are optionally pre-filtered by document.
func (v *VectorStore) FindSimilar(ctx context.Context, query []float32, opts store.SearchOptions) ([]store.SearchResult, error) {
	if len(query) != v.dimensions {
		return nil, velerr.Errorf(velerr.CodeStoreDimensionMismatch,
			"query vector has dimension %d, store expects %d", len(query), v.dimensions)
	}

	start := time.Now()

	var (
		candidates []store.StoredVector
		err        error
	)
	if opts.DocumentID != "" {
		candidates, err = v.GetByDocument(ctx, opts.DocumentID)
	} else {
		candidates, err = v.query(ctx, "")
	}
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]struct{}, len(opts.ExcludeIDs))
	for _, id := range opts.ExcludeIDs {
		excluded[id] = struct{}{}
	}

	results := make([]store.SearchResult, 0, len(candidates))
	for _, cand := range candidates {
		if _, skip := excluded[cand.ID]; skip {
			continue
		}

		sim, err := vecmath.Cosine(query, cand.Values)
		if err != nil {
			return nil, velerr.Wrapf(err, velerr.CodeStoreDimensionMismatch,
				"comparing query against vector %s", cand.ID)
		}
		if sim < opts.Threshold {
			continue
		}
		results = append(results, store.SearchResult{Vector: cand, Similarity: sim})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if opts.TopK > 0 && len(results) > opts.TopK {
		results = results[:opts.TopK]
	}

	if elapsed := time.Since(start); elapsed > slowSearchThreshold {
		slog.Warn("slow similarity search",
			"candidates", len(candidates), "elapsed", elapsed, "document_id", opts.DocumentID)
	}

	return results, nil
}

// Delete removes a vector and its metadata by ID.
func (v *VectorStore) Delete(ctx context.Context, id string) error {
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return velerr.Wrap(err, velerr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id); err != nil {
		return velerr.Wrapf(err, velerr.CodeStoreDatabaseFailure, "deleting vector %s", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vector_metadata WHERE id = ?`, id); err != nil {
		return velerr.Wrapf(err, velerr.CodeStoreDatabaseFailure, "deleting vector metadata %s", id)
	}

	if err := tx.Commit(); err != nil {
		return velerr.Wrap(err, velerr.CodeStoreDatabaseFailure, "committing vector delete")
	}

	v.hot.Remove(id)
	return nil
}

// DeleteByDocument removes every vector belonging to a document.
func (v *VectorStore) DeleteByDocument(ctx context.Context, documentID string) error {
	ids, err := v.idsByDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return velerr.Wrap(err, velerr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return velerr.Wrapf(err, velerr.CodeStoreDatabaseFailure, "deleting vectors for document %s", documentID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vector_metadata WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return velerr.Wrapf(err, velerr.CodeStoreDatabaseFailure, "deleting metadata for document %s", documentID)
	}

	if err := tx.Commit(); err != nil {
		return velerr.Wrap(err, velerr.CodeStoreDatabaseFailure, "committing document delete")
	}

	for _, id := range ids {
		v.hot.Remove(id)
	}
	return nil
}

// Close closes the underlying database connection.
func (v *VectorStore) Close() error {
	v.hot.Clear()
	return v.db.Close()
}

func (v *VectorStore) idsByDocument(ctx context.Context, documentID string) ([]string, error) {
	rows, err := v.db.QueryContext(ctx,
		`SELECT id FROM vector_metadata WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, velerr.Wrapf(err, velerr.CodeStoreDatabaseFailure, "listing vectors for document %s", documentID)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, velerr.Wrap(err, velerr.CodeStoreDatabaseFailure, "scanning vector id")
		}
		ids = append(ids, id)
	}
	return ids, velerr.Wrap(rows.Err(), velerr.CodeStoreDatabaseFailure, "iterating vector ids")
}

// query loads full vectors joined with their metadata. where may be empty.
func (v *VectorStore) query(ctx context.Context, where string, args ...any) ([]store.StoredVector, error) {
	q := `SELECT m.id, m.document_id, m.paragraph_id, m.text, m.model_version, m.metadata, m.created_at, vec.embedding
FROM vector_metadata m
JOIN vectors vec ON vec.id = m.id ` + where

	rows, err := v.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, velerr.Wrap(err, velerr.CodeStoreDatabaseFailure, "querying vectors")
	}
	defer func() { _ = rows.Close() }()

	var out []store.StoredVector
	for rows.Next() {
		var (
			sv        store.StoredVector
			metaStr   string
			createdAt int64
			blob      []byte
		)
		if err := rows.Scan(&sv.ID, &sv.DocumentID, &sv.ParagraphID, &sv.Text, &sv.ModelVersion,
			&metaStr, &createdAt, &blob); err != nil {
			return nil, velerr.Wrap(err, velerr.CodeStoreDatabaseFailure, "scanning vector row")
		}

		if metaStr != "" && metaStr != "{}" {
			if err := json.Unmarshal([]byte(metaStr), &sv.Metadata); err != nil {
				return nil, velerr.Wrapf(err, velerr.CodeStoreDatabaseFailure, "unmarshalling metadata %s", sv.ID)
			}
		}

		sv.CreatedAt = time.Unix(0, createdAt)
		sv.Values = decodeFloat32(blob)
		out = append(out, sv)
	}
	if err := rows.Err(); err != nil {
		return nil, velerr.Wrap(err, velerr.CodeStoreDatabaseFailure, "iterating vector rows")
	}

	return out, nil
}

// decodeFloat32 unpacks the vec0 embedding blob (little-endian float32s).
func decodeFloat32(blob []byte) []float32 {
	values := make([]float32, len(blob)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return values
}
