package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mayank-meragi/notevault/internal/embed"
	verrors "github.com/mayank-meragi/notevault/internal/errors"
)

// SQLiteRepository stores chunk records in SQLite and mirrors their
// vectors into an in-process HNSW index. One repository serves exactly
// one model namespace; other namespaces in the same database file are
// invisible to it.
type SQLiteRepository struct {
	mu       sync.RWMutex
	db       *sql.DB
	identity embed.Identity
	ns       string
	ann      *annIndex
	closed   bool
}

var _ Repository = (*SQLiteRepository)(nil)

const chunksSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	namespace  TEXT    NOT NULL,
	path       TEXT    NOT NULL,
	mtime      INTEGER NOT NULL,
	content    TEXT    NOT NULL,
	start_line INTEGER NOT NULL,
	end_line   INTEGER NOT NULL,
	embedding  BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_ns_path ON chunks(namespace, path);
`

// NewSQLiteRepository opens (or creates) the chunk database at path and
// loads the vector index for the given model identity. An empty path
// creates an in-memory database for testing.
func NewSQLiteRepository(path string, identity embed.Identity) (*SQLiteRepository, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, verrors.Wrap(verrors.ErrCodeFileUnreadable, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeCorruptIndex, err)
	}

	// Single connection: one writer, and the in-memory DSN would
	// otherwise give each pooled connection its own database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, verrors.Wrap(verrors.ErrCodeCorruptIndex, err)
		}
	}

	if _, err := db.Exec(chunksSchema); err != nil {
		_ = db.Close()
		return nil, verrors.New(verrors.ErrCodeCorruptIndex,
			"cannot initialize chunk schema", err)
	}

	r := &SQLiteRepository{
		db:       db,
		identity: identity,
		ns:       identity.Namespace(),
		ann:      newANNIndex(),
	}

	if err := r.loadVectors(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return r, nil
}

// loadVectors rebuilds the HNSW index from persisted records.
func (r *SQLiteRepository) loadVectors() error {
	rows, err := r.db.Query(
		`SELECT id, embedding FROM chunks WHERE namespace = ?`, r.ns)
	if err != nil {
		return verrors.Wrap(verrors.ErrCodeCorruptIndex, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return verrors.Wrap(verrors.ErrCodeCorruptIndex, err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return verrors.New(verrors.ErrCodeCorruptIndex,
				fmt.Sprintf("malformed embedding for chunk %d", id), err).
				WithSuggestion("clear the index and re-index the vault")
		}
		if r.identity.Dimensions > 0 && len(vec) != r.identity.Dimensions {
			return verrors.New(verrors.ErrCodeCorruptIndex,
				fmt.Sprintf("stored embedding has %d dimensions, model expects %d",
					len(vec), r.identity.Dimensions), nil).
				WithSuggestion("clear the index and re-index the vault")
		}
		r.ann.add(uint64(id), vec)
	}
	return rows.Err()
}

// Insert adds records inside one transaction. Embeddings that do not
// match the model's dimensions are rejected before anything is written.
func (r *SQLiteRepository) Insert(ctx context.Context, records []ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return verrors.InternalError("repository is closed", nil)
	}

	for _, rec := range records {
		if len(rec.Embedding) == 0 {
			return verrors.New(verrors.ErrCodeInvalidInput,
				fmt.Sprintf("record for %s has no embedding", rec.Path), nil)
		}
		if err := r.checkDimensions(len(rec.Embedding)); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return verrors.Wrap(verrors.ErrCodeInternal, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (namespace, path, mtime, content, start_line, end_line, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return verrors.Wrap(verrors.ErrCodeInternal, err)
	}
	defer func() { _ = stmt.Close() }()

	ids := make([]uint64, len(records))
	for i, rec := range records {
		res, err := stmt.ExecContext(ctx, r.ns, rec.Path, rec.Mtime,
			rec.Content, rec.StartLine, rec.EndLine, encodeVector(rec.Embedding))
		if err != nil {
			return verrors.Wrap(verrors.ErrCodeInternal, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return verrors.Wrap(verrors.ErrCodeInternal, err)
		}
		ids[i] = uint64(id)
	}

	if err := tx.Commit(); err != nil {
		return verrors.Wrap(verrors.ErrCodeInternal, err)
	}

	// Mirror into the vector index only after the commit succeeds.
	for i, rec := range records {
		r.ann.add(ids[i], rec.Embedding)
	}
	return nil
}

// checkDimensions validates a vector length against the model identity,
// latching the dimension count from the first vector when the identity
// left it unset.
func (r *SQLiteRepository) checkDimensions(got int) error {
	if r.identity.Dimensions == 0 {
		r.identity.Dimensions = got
		return nil
	}
	if got != r.identity.Dimensions {
		return verrors.New(verrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedding has %d dimensions, model %s expects %d",
				got, r.identity.Model, r.identity.Dimensions), nil).
			WithDetail("expected", strconv.Itoa(r.identity.Dimensions)).
			WithDetail("got", strconv.Itoa(got))
	}
	return nil
}

// DeleteByPath removes all records for one path.
func (r *SQLiteRepository) DeleteByPath(ctx context.Context, path string) error {
	return r.DeleteByPaths(ctx, []string{path})
}

// DeleteByPaths removes all records for the given paths. Unknown paths
// are ignored.
func (r *SQLiteRepository) DeleteByPaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return verrors.InternalError("repository is closed", nil)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return verrors.Wrap(verrors.ErrCodeInternal, err)
	}
	defer func() { _ = tx.Rollback() }()

	var removed []uint64
	for _, path := range paths {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM chunks WHERE namespace = ? AND path = ?`, r.ns, path)
		if err != nil {
			return verrors.Wrap(verrors.ErrCodeInternal, err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return verrors.Wrap(verrors.ErrCodeInternal, err)
			}
			removed = append(removed, uint64(id))
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return verrors.Wrap(verrors.ErrCodeInternal, err)
		}
		_ = rows.Close()

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chunks WHERE namespace = ? AND path = ?`, r.ns, path); err != nil {
			return verrors.Wrap(verrors.ErrCodeInternal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return verrors.Wrap(verrors.ErrCodeInternal, err)
	}

	for _, id := range removed {
		r.ann.remove(id)
	}
	return nil
}

// DeleteAll clears the namespace and resets the vector index.
func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return verrors.InternalError("repository is closed", nil)
	}

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE namespace = ?`, r.ns); err != nil {
		return verrors.Wrap(verrors.ErrCodeInternal, err)
	}
	r.ann = newANNIndex()
	return nil
}

// GetByPath returns a path's records ordered by start line.
func (r *SQLiteRepository) GetByPath(ctx context.Context, path string) ([]ChunkRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, verrors.InternalError("repository is closed", nil)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT path, mtime, content, start_line, end_line, embedding
		FROM chunks WHERE namespace = ? AND path = ?
		ORDER BY start_line`, r.ns, path)
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeInternal, err)
	}
	defer func() { _ = rows.Close() }()

	var records []ChunkRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// IndexedPaths maps every indexed path to the stored mtime of its first
// chunk. All chunks of a path are written in one pass, so they share one
// mtime; MIN guards against interrupted writes.
func (r *SQLiteRepository) IndexedPaths(ctx context.Context) (map[string]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, verrors.InternalError("repository is closed", nil)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT path, MIN(mtime) FROM chunks
		WHERE namespace = ? GROUP BY path`, r.ns)
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeInternal, err)
	}
	defer func() { _ = rows.Close() }()

	paths := make(map[string]int64)
	for rows.Next() {
		var path string
		var mtime int64
		if err := rows.Scan(&path, &mtime); err != nil {
			return nil, verrors.Wrap(verrors.ErrCodeInternal, err)
		}
		paths[path] = mtime
	}
	return paths, rows.Err()
}

// SimilaritySearch returns the chunks nearest to the query vector, best
// first, honoring scope and the minimum-similarity floor.
func (r *SQLiteRepository) SimilaritySearch(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, verrors.InternalError("repository is closed", nil)
	}

	if err := r.checkQueryDimensions(len(query)); err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	// Scope filters are applied after the ANN pass, so a scoped search
	// walks the whole candidate set rather than risking starvation.
	fetch := limit
	if len(opts.ScopePaths) > 0 || len(opts.ScopeFolders) > 0 {
		fetch = r.ann.len()
	}

	candidates := r.ann.search(query, fetch)
	if len(candidates) == 0 {
		return []SearchResult{}, nil
	}

	results := make([]SearchResult, 0, limit)
	for _, cand := range candidates {
		if cand.score < opts.MinSimilarity {
			continue
		}
		rec, err := r.getByID(ctx, int64(cand.key))
		if err != nil {
			return nil, err
		}
		if !inScope(rec.Path, opts) {
			continue
		}
		results = append(results, SearchResult{Record: rec, Score: cand.score})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// checkQueryDimensions rejects query vectors that do not match the
// namespace. Unlike Insert, nothing is latched here.
func (r *SQLiteRepository) checkQueryDimensions(got int) error {
	if r.identity.Dimensions > 0 && got != r.identity.Dimensions {
		return verrors.New(verrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query vector has %d dimensions, index expects %d",
				got, r.identity.Dimensions), nil)
	}
	return nil
}

func (r *SQLiteRepository) getByID(ctx context.Context, id int64) (ChunkRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT path, mtime, content, start_line, end_line, embedding
		FROM chunks WHERE id = ?`, id)
	return scanRecord(row)
}

// inScope reports whether a path passes the search scope.
func inScope(path string, opts SearchOptions) bool {
	if len(opts.ScopePaths) == 0 && len(opts.ScopeFolders) == 0 {
		return true
	}
	for _, p := range opts.ScopePaths {
		if path == p {
			return true
		}
	}
	for _, folder := range opts.ScopeFolders {
		if strings.HasPrefix(path, strings.TrimSuffix(folder, "/")+"/") {
			return true
		}
	}
	return false
}

// Stats reports chunk and path counts for the namespace.
func (r *SQLiteRepository) Stats(ctx context.Context) (Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return Stats{}, verrors.InternalError("repository is closed", nil)
	}

	var s Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT path) FROM chunks
		WHERE namespace = ?`, r.ns).Scan(&s.Chunks, &s.Paths)
	if err != nil {
		return Stats{}, verrors.Wrap(verrors.ErrCodeInternal, err)
	}
	return s, nil
}

// Identity returns the model identity this repository serves.
func (r *SQLiteRepository) Identity() embed.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.identity
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (ChunkRecord, error) {
	var rec ChunkRecord
	var blob []byte
	if err := row.Scan(&rec.Path, &rec.Mtime, &rec.Content,
		&rec.StartLine, &rec.EndLine, &blob); err != nil {
		return ChunkRecord{}, verrors.Wrap(verrors.ErrCodeInternal, err)
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return ChunkRecord{}, verrors.New(verrors.ErrCodeCorruptIndex,
			"malformed embedding blob", err)
	}
	rec.Embedding = vec
	return rec, nil
}

// encodeVector packs a vector as little-endian float32 bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
