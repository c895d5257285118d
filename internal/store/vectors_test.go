package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestVectorCacheStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	cache := NewVectorCacheStore(openTestDB(t))

	ids := []string{"crr_92", "crr_26", "crr_36"}
	vectors := [][]float32{{1, 0, 0.5}, {0, 1, -0.25}, {0.125, 0.125, 3}}
	require.NoError(t, cache.Save(ctx, ids, vectors, "gemini-embedding-001"))

	snap, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, 3, snap.Dimension)
	assert.Equal(t, "gemini-embedding-001", snap.Model)
	assert.False(t, snap.BuiltAt.IsZero())

	if diff := cmp.Diff(ids, snap.IDs); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(vectors, snap.Vectors); diff != "" {
		t.Errorf("vectors mismatch (-want +got):\n%s", diff)
	}
}

func TestVectorCacheStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	cache := NewVectorCacheStore(openTestDB(t))

	require.NoError(t, cache.Save(ctx, []string{"a", "b"}, [][]float32{{1}, {2}}, "m1"))
	require.NoError(t, cache.Save(ctx, []string{"c"}, [][]float32{{3, 4}}, "m2"))

	snap, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, snap.IDs)
	assert.Equal(t, 2, snap.Dimension)
	assert.Equal(t, "m2", snap.Model)
}

func TestVectorCacheStore_SaveRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	cache := NewVectorCacheStore(openTestDB(t))
	require.NoError(t, cache.Save(ctx, []string{"keep"}, [][]float32{{9}}, "m"))

	tests := []struct {
		name    string
		ids     []string
		vectors [][]float32
	}{
		{"length mismatch", []string{"a", "b"}, [][]float32{{1}}},
		{"empty", nil, nil},
		{"ragged dimensions", []string{"a", "b"}, [][]float32{{1, 2}, {1}}},
		{"duplicate ids", []string{"a", "a"}, [][]float32{{1}, {2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, cache.Save(ctx, tt.ids, tt.vectors, "m"))

			// A failed save leaves the previous cache untouched
			snap, err := cache.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"keep"}, snap.IDs)
		})
	}
}

func TestVectorCacheStore_EmptyAndClear(t *testing.T) {
	ctx := context.Background()
	cache := NewVectorCacheStore(openTestDB(t))

	snap, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Len())

	require.NoError(t, cache.Save(ctx, []string{"a"}, [][]float32{{1, 2}}, "m"))
	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 2, stats.Dimension)
	assert.Equal(t, "m", stats.Model)
	assert.Greater(t, stats.SizeBytes, int64(0))

	require.NoError(t, cache.Clear(ctx))
	snap, err = cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Len())

	stats, err = cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)
	assert.True(t, stats.BuiltAt.IsZero())
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cache.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, NewVectorCacheStore(db).Save(ctx, []string{"a"}, [][]float32{{1}}, "m"))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	snap, err := NewVectorCacheStore(db).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, snap.IDs)
}

func TestBlobRoundTrip(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := blobToVector(vectorToBlob(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = blobToVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
