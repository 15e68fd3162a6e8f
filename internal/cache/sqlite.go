// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package cache

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	velerr "github.com/vellum-dev/vellum/pkg/errors"
)

// SQLiteLayer is the local persistent tier. It survives process restarts
// and is swept periodically for expired entries.
type SQLiteLayer struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// NewSQLiteLayer opens (or creates) the embedding cache database at dbPath.
func NewSQLiteLayer(dbPath string) (*SQLiteLayer, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, velerr.Wrapf(err, velerr.CodeStoreDatabaseFailure, "opening cache db %s", dbPath)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, velerr.Wrapf(err, velerr.CodeStoreDatabaseFailure, "pinging cache db %s", dbPath)
	}

	if err := migrateCache(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteLayer{db: db, nowFunc: time.Now}, nil
}

func migrateCache(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS embedding_cache (
	key           TEXT PRIMARY KEY,
	text          TEXT NOT NULL,
	model_version TEXT NOT NULL,
	vector        BLOB NOT NULL,
	created_at    INTEGER NOT NULL,
	last_access   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_embedding_cache_created ON embedding_cache(created_at);
CREATE INDEX IF NOT EXISTS idx_embedding_cache_model   ON embedding_cache(model_version);
CREATE INDEX IF NOT EXISTS idx_embedding_cache_access  ON embedding_cache(last_access)`
	if _, err := db.Exec(ddl); err != nil {
		return velerr.Wrap(err, velerr.CodeStoreDatabaseFailure, "migrating embedding_cache table")
	}
	return nil
}

func (s *SQLiteLayer) Name() string { return "sqlite" }

func (s *SQLiteLayer) Get(ctx context.Context, key string) (*Entry, error) {
	const q = `SELECT text, model_version, vector, created_at FROM embedding_cache WHERE key = ?`

	var (
		e         Entry
		blob      []byte
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, q, key).Scan(&e.Text, &e.ModelVersion, &blob, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, velerr.Wrap(err, velerr.CodeCacheLayerFailure, "reading cache entry")
	}

	e.Values = decodeFloat32(blob)
	e.CreatedAt = time.Unix(0, createdAt)

	// Track last access for eviction diagnostics; best effort.
	_, _ = s.db.ExecContext(ctx,
		`UPDATE embedding_cache SET last_access = ? WHERE key = ?`,
		s.nowFunc().UnixNano(), key)

	return &e, nil
}

func (s *SQLiteLayer) Set(ctx context.Context, key string, e Entry) error {
	const q = `INSERT INTO embedding_cache(key, text, model_version, vector, created_at, last_access)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET vector = excluded.vector, created_at = excluded.created_at, last_access = excluded.last_access`

	now := s.nowFunc().UnixNano()
	createdAt := e.CreatedAt.UnixNano()
	if e.CreatedAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.ExecContext(ctx, q, key, e.Text, e.ModelVersion, encodeFloat32(e.Values), createdAt, now)
	return velerr.Wrap(err, velerr.CodeCacheLayerFailure, "writing cache entry")
}

func (s *SQLiteLayer) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM embedding_cache WHERE key = ?`, key)
	return velerr.Wrap(err, velerr.CodeCacheLayerFailure, "deleting cache entry")
}

func (s *SQLiteLayer) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM embedding_cache`)
	return velerr.Wrap(err, velerr.CodeCacheLayerFailure, "clearing cache")
}

// DeleteExpired removes entries created before cutoff. Called by the
// tiered cache's background sweep.
func (s *SQLiteLayer) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM embedding_cache WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, velerr.Wrap(err, velerr.CodeCacheLayerFailure, "sweeping expired cache entries")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the underlying database connection.
func (s *SQLiteLayer) Close() error {
	return s.db.Close()
}

// encodeFloat32 packs values as little-endian float32 bytes.
func encodeFloat32(values []float32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeFloat32(blob []byte) []float32 {
	values := make([]float32, len(blob)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return values
}
