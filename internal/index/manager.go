// Package index reconciles vault content with the vector repository. The
// Manager is the only writer during a run; searches may read concurrently
// and can observe partially-indexed state.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/mayank-meragi/notevault/internal/chunk"
	"github.com/mayank-meragi/notevault/internal/embed"
	verrors "github.com/mayank-meragi/notevault/internal/errors"
	"github.com/mayank-meragi/notevault/internal/store"
	"github.com/mayank-meragi/notevault/internal/vault"
)

// Tuning constants. The vault-wide run favors throughput; the single-file
// path favors interactivity.
const (
	DefaultBatchSize   = 32
	DefaultConcurrency = 4

	fileBatchSize   = 8
	fileConcurrency = 2

	// yieldEvery is how many batches pass between brief pauses that let
	// other goroutines and the runtime catch up on long runs.
	yieldEvery = 10
)

// Progress reports indexing progress. Counts are monotonically
// non-decreasing within one run and reset at the start of each run.
type Progress struct {
	CompletedChunks int
	TotalChunks     int
	TotalFiles      int
}

// ProgressFunc receives progress updates. May be nil.
type ProgressFunc func(Progress)

// NoticeFunc receives user-facing notices (skipped files, rate limits).
// May be nil.
type NoticeFunc func(message string)

// Options controls a vault-wide indexing run.
type Options struct {
	// ChunkSize is the target chunk length in characters.
	ChunkSize int

	// IncludePatterns and ExcludePatterns filter candidate paths.
	// Exclude wins when a path matches both.
	IncludePatterns []string
	ExcludePatterns []string

	// ReindexAll clears the namespace and re-indexes everything.
	ReindexAll bool
}

// Config wires a Manager.
type Config struct {
	Vault      vault.Vault
	Repository store.Repository
	Embedder   embed.Embedder
	Chunker    chunk.Chunker

	// LockPath is the flock file guarding the repository against
	// concurrent writers. Empty disables locking (tests).
	LockPath string

	// ChunkSize is the target chunk length for single-file updates.
	// Vault-wide runs take theirs from Options.
	ChunkSize int

	// BatchSize and Concurrency tune the vault-wide embedding phase.
	// Zero means the defaults.
	BatchSize   int
	Concurrency int

	// Retry is the backoff policy for embedding calls.
	Retry verrors.RetryConfig

	Logger *slog.Logger
	Notify NoticeFunc
}

// Manager drives chunking and embedding and writes results to the
// repository incrementally.
type Manager struct {
	vault    vault.Vault
	repo     store.Repository
	embedder embed.Embedder
	chunker  chunk.Chunker

	lockPath    string
	chunkSize   int
	batchSize   int
	concurrency int
	retry       verrors.RetryConfig

	// knownEmpty remembers files whose content chunked to nothing, so
	// incremental runs stop re-reading them until their mtime moves.
	emptyMu    sync.Mutex
	knownEmpty map[string]int64

	logger *slog.Logger
	notify NoticeFunc
}

// NewManager creates a Manager. Zero tuning values fall back to defaults.
func NewManager(cfg Config) *Manager {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunk.DefaultChunkSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = verrors.DefaultRetryConfig()
	}
	if cfg.Chunker == nil {
		cfg.Chunker = chunk.NewLineChunker()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		vault:       cfg.Vault,
		repo:        cfg.Repository,
		embedder:    cfg.Embedder,
		chunker:     cfg.Chunker,
		lockPath:    cfg.LockPath,
		chunkSize:   cfg.ChunkSize,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		retry:       cfg.Retry,
		knownEmpty:  make(map[string]int64),
		logger:      cfg.Logger,
		notify:      cfg.Notify,
	}
}

// acquireLock takes the run lock, or reports that another writer holds it.
// The returned release function is always safe to call.
func (m *Manager) acquireLock() (func(), error) {
	if m.lockPath == "" {
		return func() {}, nil
	}
	lock := flock.New(m.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return func() {}, verrors.Wrap(verrors.ErrCodeInternal, err)
	}
	if !locked {
		return func() {}, verrors.InternalError(
			"another indexing run is in progress", nil).
			WithSuggestion("wait for the other notevault process to finish")
	}
	return func() { _ = lock.Unlock() }, nil
}

// UpdateVaultIndex brings the persisted chunk set into agreement with
// current vault content. A run that fails partway leaves already-inserted
// batches persisted; there is no rollback.
func (m *Manager) UpdateVaultIndex(ctx context.Context, opts Options, onProgress ProgressFunc) error {
	release, err := m.acquireLock()
	if err != nil {
		return err
	}
	defer release()

	files, err := m.vault.List(ctx)
	if err != nil {
		return verrors.Wrap(verrors.ErrCodeFileUnreadable, err)
	}
	filter := vault.NewFilter(opts.IncludePatterns, opts.ExcludePatterns)
	files = filter.Apply(files)

	changed, err := m.selectChanged(ctx, files, opts.ReindexAll)
	if err != nil {
		return err
	}
	if len(changed) > 0 && !opts.ReindexAll {
		// Old fragments of the changed paths would otherwise coexist
		// with the new chunks.
		if err := m.repo.DeleteByPaths(ctx, pathsOf(changed)); err != nil {
			return err
		}
	}

	records, skipped := m.chunkFiles(ctx, changed, opts.ChunkSize)
	if skipped > 0 {
		m.sendNotice(fmt.Sprintf("skipped %d unreadable files during indexing", skipped))
	}
	if len(records) == 0 {
		return nil
	}

	progress := Progress{TotalChunks: len(records), TotalFiles: len(changed) - skipped}
	emit := func() {
		if onProgress != nil {
			onProgress(progress)
		}
	}
	emit()

	completed, embedErr := m.embedAndInsert(ctx, records, m.batchSize, m.concurrency,
		func(done int) {
			progress.CompletedChunks += done
			emit()
		})

	if embedErr != nil {
		return m.classifyRunFailure(embedErr, completed, len(records))
	}

	m.logger.Info("vault index updated",
		slog.Int("files", len(changed)),
		slog.Int("chunks", len(records)),
		slog.String("model", m.embedder.Identity().String()))
	return nil
}

// selectChanged picks the files needing (re)indexing. With reindexAll the
// namespace is cleared and every filtered file qualifies; otherwise
// orphaned paths are removed and staleness is decided by mtime.
func (m *Manager) selectChanged(ctx context.Context, files []vault.FileInfo, reindexAll bool) ([]vault.FileInfo, error) {
	if reindexAll {
		if err := m.repo.DeleteAll(ctx); err != nil {
			return nil, err
		}
		return files, nil
	}

	indexed, err := m.repo.IndexedPaths(ctx)
	if err != nil {
		return nil, err
	}

	current := make(map[string]struct{}, len(files))
	for _, f := range files {
		current[f.Path] = struct{}{}
	}
	var orphans []string
	for path := range indexed {
		if _, ok := current[path]; !ok {
			orphans = append(orphans, path)
		}
	}
	if len(orphans) > 0 {
		if err := m.repo.DeleteByPaths(ctx, orphans); err != nil {
			return nil, err
		}
		m.logger.Debug("removed orphaned chunks", slog.Int("paths", len(orphans)))
	}

	var changed []vault.FileInfo
	for _, f := range files {
		stored, ok := indexed[f.Path]
		switch {
		case !ok:
			// Zero-size files produce no chunks; files already observed
			// to chunk to nothing are skipped until their mtime moves.
			if f.Size > 0 && !m.isKnownEmpty(f.Path, f.Mtime) {
				changed = append(changed, f)
			}
		case f.Mtime > stored:
			changed = append(changed, f)
		}
	}
	return changed, nil
}

// chunkFiles reads and chunks each file. Unreadable files are skipped
// individually; indexing continues for the rest.
func (m *Manager) chunkFiles(ctx context.Context, files []vault.FileInfo, chunkSize int) ([]store.ChunkRecord, int) {
	var records []store.ChunkRecord
	skipped := 0
	for _, f := range files {
		content, err := m.vault.Read(ctx, f.Path)
		if err != nil {
			skipped++
			m.logger.Warn("skipping unreadable file",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
			continue
		}
		produced := 0
		for _, c := range m.chunker.Chunk(content, chunkSize) {
			// Whitespace-only chunks carry nothing searchable.
			if strings.TrimSpace(c.Content) == "" {
				continue
			}
			records = append(records, store.ChunkRecord{
				Path:      f.Path,
				Mtime:     f.Mtime,
				Content:   c.Content,
				StartLine: c.StartLine,
				EndLine:   c.EndLine,
			})
			produced++
		}
		m.rememberEmptiness(f.Path, f.Mtime, produced == 0)
	}
	return records, skipped
}

// isKnownEmpty reports whether a path previously chunked to nothing and
// has not been modified since.
func (m *Manager) isKnownEmpty(path string, mtime int64) bool {
	m.emptyMu.Lock()
	defer m.emptyMu.Unlock()
	seen, ok := m.knownEmpty[path]
	return ok && mtime <= seen
}

// rememberEmptiness records or forgets a path's chunk-to-nothing state.
func (m *Manager) rememberEmptiness(path string, mtime int64, empty bool) {
	m.emptyMu.Lock()
	defer m.emptyMu.Unlock()
	if empty {
		m.knownEmpty[path] = mtime
	} else {
		delete(m.knownEmpty, path)
	}
}

// classifyRunFailure applies the failure taxonomy to an embedding-phase
// error. Configuration errors surface as a repair request; rate-limit
// exhaustion ends the run with a notice while keeping inserted batches;
// everything else is logged and rethrown.
func (m *Manager) classifyRunFailure(err error, completed, total int) error {
	switch {
	case verrors.IsConfiguration(err):
		m.sendNotice("indexing stopped: embedding provider configuration needs repair")
		return err
	case verrors.IsRateLimited(err):
		m.sendNotice(fmt.Sprintf(
			"indexing stopped by provider rate limiting; %d of %d chunks indexed", completed, total))
		m.logger.Warn("indexing rate limited",
			slog.Int("completed", completed), slog.Int("total", total))
		return nil
	default:
		m.logger.Error("indexing failed",
			slog.Int("completed", completed),
			slog.Int("total", total),
			slog.String("error", err.Error()))
		return err
	}
}

// UpdateFileIndex re-indexes a single file. Errors are logged and turned
// into notices; nothing propagates to the caller.
func (m *Manager) UpdateFileIndex(ctx context.Context, path string) {
	release, err := m.acquireLock()
	if err != nil {
		m.logger.Debug("skipping file update, lock busy", slog.String("path", path))
		return
	}
	defer release()

	if err := m.updateFile(ctx, path); err != nil {
		if verrors.IsConfiguration(err) {
			m.sendNotice("file indexing stopped: embedding provider configuration needs repair")
		} else {
			m.sendNotice(fmt.Sprintf("failed to index %s", path))
		}
		m.logger.Warn("file index update failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

func (m *Manager) updateFile(ctx context.Context, path string) error {
	info, err := m.vault.Stat(ctx, path)
	if err != nil {
		return verrors.Wrap(verrors.ErrCodeFileNotFound, err)
	}
	content, err := m.vault.Read(ctx, path)
	if err != nil {
		return verrors.Wrap(verrors.ErrCodeFileUnreadable, err)
	}

	if err := m.repo.DeleteByPath(ctx, path); err != nil {
		return err
	}

	var records []store.ChunkRecord
	for _, c := range m.chunker.Chunk(content, m.chunkSize) {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		records = append(records, store.ChunkRecord{
			Path:      path,
			Mtime:     info.Mtime,
			Content:   c.Content,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
		})
	}
	m.rememberEmptiness(path, info.Mtime, len(records) == 0)
	if len(records) == 0 {
		return nil
	}

	_, err = m.embedAndInsert(ctx, records, fileBatchSize, fileConcurrency, nil)
	return err
}

// DeleteFileIndex removes all chunks for a path. Deleting a path that was
// never indexed is a no-op.
func (m *Manager) DeleteFileIndex(ctx context.Context, path string) error {
	return m.repo.DeleteByPath(ctx, path)
}

// Clear wipes the model's namespace.
func (m *Manager) Clear(ctx context.Context) error {
	release, err := m.acquireLock()
	if err != nil {
		return err
	}
	defer release()
	return m.repo.DeleteAll(ctx)
}

// Stats reports chunk and path counts for the model's namespace.
func (m *Manager) Stats(ctx context.Context) (store.Stats, error) {
	return m.repo.Stats(ctx)
}

func (m *Manager) sendNotice(msg string) {
	if m.notify != nil {
		m.notify(msg)
	}
}

func pathsOf(files []vault.FileInfo) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}
