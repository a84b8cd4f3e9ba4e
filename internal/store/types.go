// Package store persists embedded note chunks and serves similarity
// queries over them. Records live in SQLite; an in-process HNSW index per
// model namespace answers nearest-neighbor searches.
package store

import (
	"context"

	"github.com/mayank-meragi/notevault/internal/embed"
)

// ChunkRecord is one embedded chunk of a note. Records are immutable once
// inserted; re-indexing a path deletes its records and inserts new ones.
type ChunkRecord struct {
	// Path is the vault-relative note path.
	Path string

	// Mtime is the note's modification time (Unix milliseconds) at the
	// moment the chunk was embedded. Staleness checks compare against it.
	Mtime int64

	// Content is the chunk text.
	Content string

	// Embedding is the chunk's vector under the repository's model.
	Embedding []float32

	// StartLine and EndLine are the 1-based inclusive line range within
	// the note.
	StartLine int
	EndLine   int
}

// SearchOptions bound and scope a similarity search.
type SearchOptions struct {
	// Limit caps the number of results. Non-positive means DefaultLimit.
	Limit int

	// MinSimilarity drops results scoring below it (0..1).
	MinSimilarity float32

	// ScopePaths, when non-empty, restricts results to these exact paths.
	ScopePaths []string

	// ScopeFolders, when non-empty, restricts results to paths under
	// these folders.
	ScopeFolders []string
}

// DefaultLimit is the result cap when SearchOptions.Limit is unset.
const DefaultLimit = 10

// SearchResult is a chunk ranked by similarity to a query vector.
type SearchResult struct {
	Record ChunkRecord

	// Score is cosine similarity mapped to 0..1 (1 is closest).
	Score float32
}

// Stats summarizes a repository namespace.
type Stats struct {
	Chunks int
	Paths  int
}

// Repository stores embedded chunks for exactly one model identity.
// Vectors from other identities are never visible through it.
type Repository interface {
	// Insert adds records. Every embedding must match the repository's
	// dimensions.
	Insert(ctx context.Context, records []ChunkRecord) error

	// DeleteByPath removes all records for a path. Deleting an unindexed
	// path is a no-op.
	DeleteByPath(ctx context.Context, path string) error

	// DeleteByPaths removes all records for the given paths.
	DeleteByPaths(ctx context.Context, paths []string) error

	// DeleteAll clears the namespace.
	DeleteAll(ctx context.Context) error

	// GetByPath returns a path's records ordered by start line.
	GetByPath(ctx context.Context, path string) ([]ChunkRecord, error)

	// IndexedPaths maps every indexed path to the stored mtime of its
	// first chunk.
	IndexedPaths(ctx context.Context) (map[string]int64, error)

	// SimilaritySearch returns the chunks nearest to the query vector,
	// best first.
	SimilaritySearch(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error)

	// Stats reports chunk and path counts for the namespace.
	Stats(ctx context.Context) (Stats, error)

	// Identity returns the model identity this repository serves.
	Identity() embed.Identity

	// Close releases resources.
	Close() error
}
