package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Meta keys stored alongside the cache entries
const (
	metaModel     = "model"
	metaDimension = "dimension"
	metaCount     = "count"
	metaBuiltAt   = "built_at"
)

// VectorCacheStore persists the chunk vector cache
type VectorCacheStore struct {
	db *DB
}

// NewVectorCacheStore creates a new cache store
func NewVectorCacheStore(db *DB) *VectorCacheStore {
	return &VectorCacheStore{db: db}
}

// Snapshot is the persisted cache as one consistent read
type Snapshot struct {
	IDs       []string
	Vectors   [][]float32
	Model     string
	Dimension int
	BuiltAt   time.Time
}

// Len returns the number of cached vectors
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.IDs)
}

// CacheStats summarizes the persisted cache
type CacheStats struct {
	Entries   int
	Dimension int
	Model     string
	BuiltAt   time.Time
	SizeBytes int64
}

// Save replaces the whole cache with ids and vectors.
// ids[i] is stored at position i; either every row is written or none is.
func (v *VectorCacheStore) Save(ctx context.Context, ids []string, vectors [][]float32, model string) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	if len(vectors) == 0 {
		return fmt.Errorf("cannot save an empty cache")
	}

	dim := len(vectors[0])
	for i, vec := range vectors {
		if len(vec) == 0 || len(vec) != dim {
			return fmt.Errorf("vector %d has dimension %d, expected %d", i, len(vec), dim)
		}
	}

	tx, err := v.db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cache_entries"); err != nil {
		return fmt.Errorf("failed to clear cache entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM cache_meta"); err != nil {
		return fmt.Errorf("failed to clear cache meta: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cache_entries (position, chunk_id, vector, dimension, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)

	for i, vector := range vectors {
		if _, err := stmt.ExecContext(ctx, i, ids[i], vectorToBlob(vector), dim, model, now); err != nil {
			return fmt.Errorf("failed to insert vector %d (%s): %w", i, ids[i], err)
		}
	}

	meta := map[string]string{
		metaModel:     model,
		metaDimension: strconv.Itoa(dim),
		metaCount:     strconv.Itoa(len(ids)),
		metaBuiltAt:   now,
	}
	for key, value := range meta {
		if _, err := tx.ExecContext(ctx, "INSERT INTO cache_meta (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("failed to write cache meta %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

// Load reads the persisted cache ordered by position.
// It returns an empty snapshot when nothing has been saved.
func (v *VectorCacheStore) Load(ctx context.Context) (*Snapshot, error) {
	tx, err := v.db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	meta, err := readMeta(ctx, tx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, "SELECT chunk_id, vector, dimension FROM cache_entries ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entries: %w", err)
	}
	defer rows.Close()

	snap := &Snapshot{Model: meta[metaModel]}
	for rows.Next() {
		var id string
		var blob []byte
		var dimension int
		if err := rows.Scan(&id, &blob, &dimension); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}

		vector, err := blobToVector(blob)
		if err != nil {
			return nil, fmt.Errorf("corrupt vector for %s: %w", id, err)
		}
		if len(vector) != dimension {
			return nil, fmt.Errorf("vector for %s has %d values, row says %d", id, len(vector), dimension)
		}
		if snap.Dimension == 0 {
			snap.Dimension = dimension
		} else if dimension != snap.Dimension {
			return nil, fmt.Errorf("inconsistent dimension for %s: %d vs %d", id, dimension, snap.Dimension)
		}

		snap.IDs = append(snap.IDs, id)
		snap.Vectors = append(snap.Vectors, vector)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cache entries: %w", err)
	}

	if count, ok := meta[metaCount]; ok && count != strconv.Itoa(len(snap.IDs)) {
		return nil, fmt.Errorf("cache meta records %s entries, found %d", count, len(snap.IDs))
	}
	snap.BuiltAt = parseTime(meta[metaBuiltAt])

	return snap, nil
}

// Clear removes every cache entry and its metadata
func (v *VectorCacheStore) Clear(ctx context.Context) error {
	tx, err := v.db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"cache_entries", "cache_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Stats returns cache statistics without decoding vectors
func (v *VectorCacheStore) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{SizeBytes: v.db.SizeBytes()}

	if err := v.db.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache_entries").Scan(&stats.Entries); err != nil {
		return nil, fmt.Errorf("failed to count cache entries: %w", err)
	}

	rows, err := v.db.sqlDB.QueryContext(ctx, "SELECT key, value FROM cache_meta")
	if err != nil {
		return nil, fmt.Errorf("failed to query cache meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan cache meta: %w", err)
		}
		switch key {
		case metaModel:
			stats.Model = value
		case metaDimension:
			stats.Dimension, _ = strconv.Atoi(value)
		case metaBuiltAt:
			stats.BuiltAt = parseTime(value)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cache meta: %w", err)
	}

	return stats, nil
}

func readMeta(ctx context.Context, tx *sql.Tx) (map[string]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT key, value FROM cache_meta")
	if err != nil {
		return nil, fmt.Errorf("failed to query cache meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan cache meta: %w", err)
		}
		meta[key] = value
	}
	return meta, rows.Err()
}

func parseTime(value string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// Helper functions for vector serialization

// vectorToBlob converts a float32 slice to a little-endian binary blob
func vectorToBlob(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:i*4+4], math.Float32bits(v))
	}
	return blob
}

// blobToVector converts a binary blob to a float32 slice
func blobToVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob size %d is not a multiple of 4", len(blob))
	}

	vector := make([]float32, len(blob)/4)
	for i := 0; i < len(vector); i++ {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : i*4+4]))
	}

	return vector, nil
}
