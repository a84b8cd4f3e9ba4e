package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayank-meragi/notevault/internal/embed"
	verrors "github.com/mayank-meragi/notevault/internal/errors"
)

func testIdentity() embed.Identity {
	return embed.Identity{Provider: "static", Model: "static-256", Dimensions: 3}
}

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	r, err := NewSQLiteRepository("", testIdentity())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func record(path string, mtime int64, content string, start, end int, vec []float32) ChunkRecord {
	return ChunkRecord{
		Path:      path,
		Mtime:     mtime,
		Content:   content,
		Embedding: vec,
		StartLine: start,
		EndLine:   end,
	}
}

func TestSQLiteRepository_InsertAndGetByPath(t *testing.T) {
	// Given: two chunks of one note inserted out of order
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, []ChunkRecord{
		record("notes/a.md", 100, "second", 11, 20, []float32{0, 1, 0}),
		record("notes/a.md", 100, "first", 1, 10, []float32{1, 0, 0}),
	}))

	// When: I read the path back
	records, err := r.GetByPath(ctx, "notes/a.md")

	// Then: records come ordered by start line with embeddings intact
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "first", records[0].Content)
	assert.Equal(t, "second", records[1].Content)
	assert.Equal(t, []float32{1, 0, 0}, records[0].Embedding)
	assert.Equal(t, int64(100), records[0].Mtime)
}

func TestSQLiteRepository_DimensionMismatchRejected(t *testing.T) {
	r := newTestRepo(t)

	err := r.Insert(context.Background(), []ChunkRecord{
		record("a.md", 1, "x", 1, 1, []float32{1, 0}),
	})

	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeDimensionMismatch, verrors.GetCode(err))

	// Nothing was persisted
	stats, err := r.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Chunks)
}

func TestSQLiteRepository_MissingEmbeddingRejected(t *testing.T) {
	r := newTestRepo(t)

	err := r.Insert(context.Background(), []ChunkRecord{
		record("a.md", 1, "x", 1, 1, nil),
	})

	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeInvalidInput, verrors.GetCode(err))
}

func TestSQLiteRepository_DeleteByPath(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, []ChunkRecord{
		record("a.md", 1, "a", 1, 1, []float32{1, 0, 0}),
		record("b.md", 1, "b", 1, 1, []float32{0, 1, 0}),
	}))

	require.NoError(t, r.DeleteByPath(ctx, "a.md"))

	records, err := r.GetByPath(ctx, "a.md")
	require.NoError(t, err)
	assert.Empty(t, records)

	// And: the deleted chunk no longer surfaces in search
	results, err := r.SimilaritySearch(ctx, []float32{1, 0, 0}, SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b.md", results[0].Record.Path)
}

func TestSQLiteRepository_DeleteUnknownPathIsNoOp(t *testing.T) {
	r := newTestRepo(t)

	assert.NoError(t, r.DeleteByPath(context.Background(), "never-indexed.md"))
}

func TestSQLiteRepository_DeleteAll(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, []ChunkRecord{
		record("a.md", 1, "a", 1, 1, []float32{1, 0, 0}),
		record("b.md", 1, "b", 1, 1, []float32{0, 1, 0}),
	}))

	require.NoError(t, r.DeleteAll(ctx))

	stats, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Chunks)

	results, err := r.SimilaritySearch(ctx, []float32{1, 0, 0}, SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLiteRepository_IndexedPaths(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, []ChunkRecord{
		record("a.md", 111, "a1", 1, 1, []float32{1, 0, 0}),
		record("a.md", 111, "a2", 2, 2, []float32{0, 1, 0}),
		record("b.md", 222, "b", 1, 1, []float32{0, 0, 1}),
	}))

	paths, err := r.IndexedPaths(ctx)

	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a.md": 111, "b.md": 222}, paths)
}

func TestSQLiteRepository_SimilarityOrdering(t *testing.T) {
	// Given: vectors at decreasing angles to the query direction
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, []ChunkRecord{
		record("exact.md", 1, "exact", 1, 1, []float32{1, 0, 0}),
		record("close.md", 1, "close", 1, 1, []float32{0.9, 0.1, 0}),
		record("far.md", 1, "far", 1, 1, []float32{0, 1, 0}),
		record("opposite.md", 1, "opposite", 1, 1, []float32{-1, 0, 0}),
	}))

	// When: I search along the query direction
	results, err := r.SimilaritySearch(ctx, []float32{1, 0, 0}, SearchOptions{Limit: 10})

	// Then: results come back best-first with monotonically falling scores
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, "exact.md", results[0].Record.Path)
	assert.Equal(t, "close.md", results[1].Record.Path)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.001)
}

func TestSQLiteRepository_MinSimilarityFloor(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, []ChunkRecord{
		record("near.md", 1, "near", 1, 1, []float32{1, 0, 0}),
		record("orthogonal.md", 1, "orthogonal", 1, 1, []float32{0, 1, 0}),
	}))

	// Orthogonal vectors score 0.5 under the cosine mapping
	results, err := r.SimilaritySearch(ctx, []float32{1, 0, 0}, SearchOptions{
		Limit:         10,
		MinSimilarity: 0.75,
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "near.md", results[0].Record.Path)
}

func TestSQLiteRepository_SearchLimit(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, []ChunkRecord{
		record("a.md", 1, "a", 1, 1, []float32{1, 0, 0}),
		record("b.md", 1, "b", 1, 1, []float32{0.9, 0.1, 0}),
		record("c.md", 1, "c", 1, 1, []float32{0.8, 0.2, 0}),
	}))

	results, err := r.SimilaritySearch(ctx, []float32{1, 0, 0}, SearchOptions{Limit: 2})

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSQLiteRepository_ScopedSearch(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, []ChunkRecord{
		record("work/plan.md", 1, "plan", 1, 1, []float32{1, 0, 0}),
		record("work/log.md", 1, "log", 1, 1, []float32{0.9, 0.1, 0}),
		record("personal/diary.md", 1, "diary", 1, 1, []float32{0.99, 0.01, 0}),
	}))

	t.Run("folder scope", func(t *testing.T) {
		results, err := r.SimilaritySearch(ctx, []float32{1, 0, 0}, SearchOptions{
			Limit:        10,
			ScopeFolders: []string{"work"},
		})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "work/plan.md", results[0].Record.Path)
	})

	t.Run("path scope", func(t *testing.T) {
		results, err := r.SimilaritySearch(ctx, []float32{1, 0, 0}, SearchOptions{
			Limit:      10,
			ScopePaths: []string{"personal/diary.md"},
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "personal/diary.md", results[0].Record.Path)
	})
}

func TestSQLiteRepository_QueryDimensionMismatch(t *testing.T) {
	r := newTestRepo(t)

	_, err := r.SimilaritySearch(context.Background(), []float32{1, 0}, SearchOptions{})

	require.Error(t, err)
	assert.Equal(t, verrors.ErrCodeDimensionMismatch, verrors.GetCode(err))
}

func TestSQLiteRepository_NamespaceIsolation(t *testing.T) {
	// Given: two repositories over the same file, different identities
	path := filepath.Join(t.TempDir(), "chunks.db")

	a, err := NewSQLiteRepository(path, embed.Identity{Provider: "static", Model: "m-a", Dimensions: 3})
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	ctx := context.Background()
	require.NoError(t, a.Insert(ctx, []ChunkRecord{
		record("a.md", 1, "a", 1, 1, []float32{1, 0, 0}),
	}))
	require.NoError(t, a.Close())

	b, err := NewSQLiteRepository(path, embed.Identity{Provider: "static", Model: "m-b", Dimensions: 3})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	// Then: the other identity sees nothing
	stats, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Chunks)

	results, err := b.SimilaritySearch(ctx, []float32{1, 0, 0}, SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLiteRepository_ReopenRebuildsVectorIndex(t *testing.T) {
	// Given: a populated repository that is closed and reopened
	path := filepath.Join(t.TempDir(), "chunks.db")
	ctx := context.Background()

	r, err := NewSQLiteRepository(path, testIdentity())
	require.NoError(t, err)
	require.NoError(t, r.Insert(ctx, []ChunkRecord{
		record("a.md", 1, "alpha", 1, 1, []float32{1, 0, 0}),
		record("b.md", 1, "beta", 1, 1, []float32{0, 1, 0}),
	}))
	require.NoError(t, r.Close())

	reopened, err := NewSQLiteRepository(path, testIdentity())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	// Then: search works against the rebuilt index
	results, err := reopened.SimilaritySearch(ctx, []float32{1, 0, 0}, SearchOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.md", results[0].Record.Path)
	assert.Equal(t, "alpha", results[0].Record.Content)
}

func TestSQLiteRepository_Stats(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, []ChunkRecord{
		record("a.md", 1, "a1", 1, 1, []float32{1, 0, 0}),
		record("a.md", 1, "a2", 2, 2, []float32{0, 1, 0}),
		record("b.md", 1, "b", 1, 1, []float32{0, 0, 1}),
	}))

	stats, err := r.Stats(ctx)

	require.NoError(t, err)
	assert.Equal(t, Stats{Chunks: 3, Paths: 2}, stats)
}

func TestEncodeDecodeVector(t *testing.T) {
	v := []float32{0.25, -1.5, 3.125}

	decoded, err := decodeVector(encodeVector(v))

	require.NoError(t, err)
	assert.Equal(t, v, decoded)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
