package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayank-meragi/notevault/internal/embed"
	verrors "github.com/mayank-meragi/notevault/internal/errors"
	"github.com/mayank-meragi/notevault/internal/store"
	"github.com/mayank-meragi/notevault/internal/vault"
)

const stubDims = 3

func stubIdentity() embed.Identity {
	return embed.Identity{Provider: "stub", Model: "stub", Dimensions: stubDims}
}

// stubVector derives a deterministic unit-ish vector from text.
func stubVector(text string) []float32 {
	return []float32{float32(len(text)%7 + 1), float32(len(text)%3 + 1), 1}
}

// batchStub is a deterministic batch-capable embedder that can fail on a
// chosen call number.
type batchStub struct {
	calls      atomic.Int32
	failOnCall int32
	failErr    error
}

func (s *batchStub) Embed(_ context.Context, text string) ([]float32, error) {
	return stubVector(text), nil
}

func (s *batchStub) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	call := s.calls.Add(1)
	if s.failOnCall > 0 && call >= s.failOnCall {
		return nil, s.failErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = stubVector(t)
	}
	return out, nil
}

func (s *batchStub) Identity() embed.Identity       { return stubIdentity() }
func (s *batchStub) Available(context.Context) bool { return true }
func (s *batchStub) Close() error                   { return nil }

// seqStub is a single-call-only embedder that fails for chosen texts.
type seqStub struct {
	calls   atomic.Int32
	failFor map[string]error
}

func (s *seqStub) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.calls.Add(1)
	if err, ok := s.failFor[text]; ok {
		return nil, err
	}
	return stubVector(text), nil
}

func (s *seqStub) Identity() embed.Identity       { return stubIdentity() }
func (s *seqStub) Available(context.Context) bool { return true }
func (s *seqStub) Close() error                   { return nil }

type fixture struct {
	root    string
	vault   *vault.DirVault
	repo    *store.SQLiteRepository
	notices []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	repo, err := store.NewSQLiteRepository("", stubIdentity())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return &fixture{
		root:  root,
		vault: vault.NewDirVault(root),
		repo:  repo,
	}
}

func (f *fixture) write(t *testing.T, path, content string) {
	t.Helper()
	abs := filepath.Join(f.root, filepath.FromSlash(path))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func (f *fixture) touch(t *testing.T, path string, at time.Time) {
	t.Helper()
	abs := filepath.Join(f.root, filepath.FromSlash(path))
	require.NoError(t, os.Chtimes(abs, at, at))
}

func (f *fixture) manager(e embed.Embedder) *Manager {
	return NewManager(Config{
		Vault:      f.vault,
		Repository: f.repo,
		Embedder:   e,
		Retry: verrors.RetryConfig{
			MaxRetries:   1,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2.0,
		},
		Notify: func(msg string) { f.notices = append(f.notices, msg) },
	})
}

func TestUpdateVaultIndex_FullReindexIsIdempotent(t *testing.T) {
	// Given: a vault indexed once with a deterministic embedder
	f := newFixture(t)
	f.write(t, "a.md", "alpha content\nmore alpha")
	f.write(t, "b.md", "beta content")
	m := f.manager(&batchStub{})
	ctx := context.Background()

	require.NoError(t, m.UpdateVaultIndex(ctx, Options{ReindexAll: true}, nil))
	first, err := f.repo.GetByPath(ctx, "a.md")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// When: the full re-index runs again on the unchanged vault
	require.NoError(t, m.UpdateVaultIndex(ctx, Options{ReindexAll: true}, nil))

	// Then: the persisted chunk set is identical
	second, err := f.repo.GetByPath(ctx, "a.md")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	stats, err := f.repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Paths)
}

func TestUpdateVaultIndex_IncrementalDetection(t *testing.T) {
	// Given: two indexed files, one later modified with a newer mtime
	f := newFixture(t)
	f.write(t, "changed.md", "original")
	f.write(t, "stable.md", "stable content")
	stub := &batchStub{}
	m := f.manager(stub)
	ctx := context.Background()

	require.NoError(t, m.UpdateVaultIndex(ctx, Options{}, nil))
	stableBefore, err := f.repo.GetByPath(ctx, "stable.md")
	require.NoError(t, err)

	f.write(t, "changed.md", "modified content")
	f.touch(t, "changed.md", time.Now().Add(2*time.Second))
	stub.calls.Store(0)

	// When: an incremental run executes
	require.NoError(t, m.UpdateVaultIndex(ctx, Options{}, nil))

	// Then: only the modified file was re-embedded
	assert.Equal(t, int32(1), stub.calls.Load())
	changed, err := f.repo.GetByPath(ctx, "changed.md")
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, "modified content", changed[0].Content)

	stableAfter, err := f.repo.GetByPath(ctx, "stable.md")
	require.NoError(t, err)
	assert.Equal(t, stableBefore, stableAfter)
}

func TestUpdateVaultIndex_OrphanCleanup(t *testing.T) {
	// Given: an indexed file that is then deleted from the vault
	f := newFixture(t)
	f.write(t, "keep.md", "keep")
	f.write(t, "gone.md", "gone")
	m := f.manager(&batchStub{})
	ctx := context.Background()

	require.NoError(t, m.UpdateVaultIndex(ctx, Options{}, nil))
	require.NoError(t, os.Remove(filepath.Join(f.root, "gone.md")))

	// When: an incremental run executes (no reindexAll)
	require.NoError(t, m.UpdateVaultIndex(ctx, Options{}, nil))

	// Then: the orphaned path is removed
	paths, err := f.repo.IndexedPaths(ctx)
	require.NoError(t, err)
	assert.Contains(t, paths, "keep.md")
	assert.NotContains(t, paths, "gone.md")
}

func TestUpdateVaultIndex_FilterPrecedence(t *testing.T) {
	// Given: a path matching both an include and an exclude pattern
	f := newFixture(t)
	f.write(t, "notes/private/secret.md", "secret")
	f.write(t, "notes/open.md", "open")
	m := f.manager(&batchStub{})
	ctx := context.Background()

	require.NoError(t, m.UpdateVaultIndex(ctx, Options{
		IncludePatterns: []string{"notes/**"},
		ExcludePatterns: []string{"notes/private/**"},
	}, nil))

	// Then: exclude wins
	paths, err := f.repo.IndexedPaths(ctx)
	require.NoError(t, err)
	assert.Contains(t, paths, "notes/open.md")
	assert.NotContains(t, paths, "notes/private/secret.md")
}

func TestUpdateVaultIndex_PartialFailurePersistence(t *testing.T) {
	// Given: an embedder that fails from its second batch call onward
	f := newFixture(t)
	f.write(t, "a.md", "first file")
	f.write(t, "b.md", "second file")
	f.write(t, "c.md", "third file")
	stub := &batchStub{
		failOnCall: 2,
		failErr:    verrors.InternalError("provider exploded", nil),
	}
	m := NewManager(Config{
		Vault:      f.vault,
		Repository: f.repo,
		Embedder:   stub,
		BatchSize:  1,
		Notify:     func(string) {},
	})
	ctx := context.Background()

	// When: the run fails partway
	err := m.UpdateVaultIndex(ctx, Options{}, nil)

	// Then: the error surfaces and batches inserted before the failure stay
	require.Error(t, err)
	stats, serr := f.repo.Stats(ctx)
	require.NoError(t, serr)
	assert.Equal(t, 1, stats.Chunks)
}

func TestUpdateVaultIndex_EmptyVaultEmitsNoProgress(t *testing.T) {
	f := newFixture(t)
	m := f.manager(&batchStub{})

	var events []Progress
	require.NoError(t, m.UpdateVaultIndex(context.Background(), Options{},
		func(p Progress) { events = append(events, p) }))

	assert.Empty(t, events)
}

func TestUpdateVaultIndex_ProgressEvents(t *testing.T) {
	// Given: three files, batch size one
	f := newFixture(t)
	f.write(t, "a.md", "a content")
	f.write(t, "b.md", "b content")
	f.write(t, "c.md", "c content")
	m := NewManager(Config{
		Vault:      f.vault,
		Repository: f.repo,
		Embedder:   &batchStub{},
		BatchSize:  1,
	})

	var events []Progress
	require.NoError(t, m.UpdateVaultIndex(context.Background(), Options{},
		func(p Progress) { events = append(events, p) }))

	// Then: the initial event is {0, total, files} and counts only grow
	require.NotEmpty(t, events)
	assert.Equal(t, Progress{CompletedChunks: 0, TotalChunks: 3, TotalFiles: 3}, events[0])
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].CompletedChunks, events[i-1].CompletedChunks)
		assert.Equal(t, 3, events[i].TotalChunks)
	}
	assert.Equal(t, 3, events[len(events)-1].CompletedChunks)
}

func TestUpdateVaultIndex_RateLimitEndsRunWithNotice(t *testing.T) {
	// Given: a provider that rate-limits from the second batch onward
	f := newFixture(t)
	f.write(t, "a.md", "first")
	f.write(t, "b.md", "second")
	stub := &batchStub{
		failOnCall: 2,
		failErr:    verrors.RateLimitError("429 from provider", nil),
	}
	m := NewManager(Config{
		Vault:      f.vault,
		Repository: f.repo,
		Embedder:   stub,
		BatchSize:  1,
		Retry: verrors.RetryConfig{
			MaxRetries:   1,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1.0,
		},
		Notify: func(msg string) { f.notices = append(f.notices, msg) },
	})

	// When: the run hits rate-limit exhaustion
	err := m.UpdateVaultIndex(context.Background(), Options{}, nil)

	// Then: no error escapes, a notice is sent, prior work stands
	require.NoError(t, err)
	require.NotEmpty(t, f.notices)
	assert.Contains(t, f.notices[len(f.notices)-1], "rate limiting")

	stats, serr := f.repo.Stats(context.Background())
	require.NoError(t, serr)
	assert.Equal(t, 1, stats.Chunks)
}

func TestUpdateVaultIndex_ConfigurationErrorAborts(t *testing.T) {
	// Given: a provider reporting invalid credentials
	f := newFixture(t)
	f.write(t, "a.md", "content")
	stub := &batchStub{
		failOnCall: 1,
		failErr:    verrors.New(verrors.ErrCodeCredentialsInvalid, "bad key", nil),
	}
	m := f.manager(stub)

	err := m.UpdateVaultIndex(context.Background(), Options{}, nil)

	// Then: the error is a configuration-repair signal, not retried
	require.Error(t, err)
	assert.True(t, verrors.IsConfiguration(err))
	assert.Equal(t, int32(1), stub.calls.Load())
	require.NotEmpty(t, f.notices)
	assert.Contains(t, f.notices[0], "configuration")
}

// flakyVault wraps a vault and fails reads for chosen paths.
type flakyVault struct {
	vault.Vault
	failRead map[string]bool
}

func (v *flakyVault) Read(ctx context.Context, path string) (string, error) {
	if v.failRead[path] {
		return "", errors.New("simulated read failure")
	}
	return v.Vault.Read(ctx, path)
}

func TestUpdateVaultIndex_SkipsUnreadableFiles(t *testing.T) {
	// Given: one readable file and one whose read always fails
	f := newFixture(t)
	f.write(t, "good.md", "fine")
	f.write(t, "broken.md", "unreachable")
	m := NewManager(Config{
		Vault:      &flakyVault{Vault: f.vault, failRead: map[string]bool{"broken.md": true}},
		Repository: f.repo,
		Embedder:   &batchStub{},
		Notify:     func(msg string) { f.notices = append(f.notices, msg) },
	})

	var events []Progress
	err := m.UpdateVaultIndex(context.Background(), Options{},
		func(p Progress) { events = append(events, p) })

	// Then: the run succeeds, the readable file is indexed, a notice
	// reports the skip
	require.NoError(t, err)
	paths, perr := f.repo.IndexedPaths(context.Background())
	require.NoError(t, perr)
	assert.Contains(t, paths, "good.md")
	assert.NotContains(t, paths, "broken.md")
	require.NotEmpty(t, f.notices)
	assert.Contains(t, f.notices[0], "skipped 1")

	// And: progress counts only the files actually indexed
	require.NotEmpty(t, events)
	assert.Equal(t, 1, events[0].TotalFiles)
}

// countingVault wraps a vault and counts reads per path.
type countingVault struct {
	vault.Vault
	reads map[string]int
}

func (v *countingVault) Read(ctx context.Context, path string) (string, error) {
	v.reads[path]++
	return v.Vault.Read(ctx, path)
}

func TestUpdateVaultIndex_WhitespaceOnlyFilesNotReselected(t *testing.T) {
	// Given: a whitespace-only note alongside a real one
	f := newFixture(t)
	f.write(t, "blank.md", "   \n\t\n  ")
	f.write(t, "real.md", "actual content")
	cv := &countingVault{Vault: f.vault, reads: map[string]int{}}
	m := NewManager(Config{
		Vault:      cv,
		Repository: f.repo,
		Embedder:   &batchStub{},
	})
	ctx := context.Background()

	// When: two incremental runs pass over an unchanged vault
	require.NoError(t, m.UpdateVaultIndex(ctx, Options{}, nil))
	require.NoError(t, m.UpdateVaultIndex(ctx, Options{}, nil))

	// Then: the blank note was read once, never indexed, and not
	// revisited on the second run
	paths, err := f.repo.IndexedPaths(ctx)
	require.NoError(t, err)
	assert.Contains(t, paths, "real.md")
	assert.NotContains(t, paths, "blank.md")
	assert.Equal(t, 1, cv.reads["blank.md"])
	assert.Equal(t, 1, cv.reads["real.md"])
}

func TestUpdateVaultIndex_WhitespaceChunksNotStored(t *testing.T) {
	// Given: a chunk size small enough that the run of space-only lines
	// in the middle flushes as chunks of its own
	f := newFixture(t)
	f.write(t, "gaps.md", "alpha beta\n     \n     \n     \ngamma")
	m := f.manager(&batchStub{})
	ctx := context.Background()

	require.NoError(t, m.UpdateVaultIndex(ctx, Options{ChunkSize: 10}, nil))

	// Then: only the chunks carrying searchable text are stored
	records, err := f.repo.GetByPath(ctx, "gaps.md")
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.NotEmpty(t, strings.TrimSpace(rec.Content))
	}
}

func TestSequentialStrategy_PartialBatchPersistence(t *testing.T) {
	// Given: a single-call embedder failing permanently on one chunk.
	// Concurrency 1 makes the ordering deterministic: the good chunk
	// (first in path order) completes before the poisoned one fails.
	f := newFixture(t)
	f.write(t, "a.md", "good text")
	f.write(t, "z.md", "poison")
	stub := &seqStub{failFor: map[string]error{
		"poison": verrors.InternalError("permanent failure", nil),
	}}
	m := NewManager(Config{
		Vault:       f.vault,
		Repository:  f.repo,
		Embedder:    stub,
		Concurrency: 1,
	})

	// When: the run fails on the poisoned chunk
	err := m.UpdateVaultIndex(context.Background(), Options{}, nil)

	// Then: the error propagates and the successful sibling is persisted
	require.Error(t, err)
	records, gerr := f.repo.GetByPath(context.Background(), "a.md")
	require.NoError(t, gerr)
	assert.Len(t, records, 1)
}

func TestUpdateFileIndex_NeverPropagatesErrors(t *testing.T) {
	// Given: a provider that always fails
	f := newFixture(t)
	f.write(t, "a.md", "content")
	stub := &batchStub{
		failOnCall: 1,
		failErr:    verrors.InternalError("always broken", nil),
	}
	m := f.manager(stub)

	// When/Then: the fire-and-forget update does not panic or return
	m.UpdateFileIndex(context.Background(), "a.md")

	require.NotEmpty(t, f.notices)
	assert.Contains(t, f.notices[0], "a.md")
}

func TestUpdateFileIndex_ReplacesExistingChunks(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "first version")
	m := f.manager(&batchStub{})
	ctx := context.Background()

	m.UpdateFileIndex(ctx, "a.md")
	f.write(t, "a.md", "second version")
	m.UpdateFileIndex(ctx, "a.md")

	records, err := f.repo.GetByPath(ctx, "a.md")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "second version", records[0].Content)
}

func TestDeleteFileIndex_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "content")
	m := f.manager(&batchStub{})
	ctx := context.Background()

	m.UpdateFileIndex(ctx, "a.md")
	require.NoError(t, m.DeleteFileIndex(ctx, "a.md"))

	// Deleting again, and deleting something never indexed, is a no-op
	assert.NoError(t, m.DeleteFileIndex(ctx, "a.md"))
	assert.NoError(t, m.DeleteFileIndex(ctx, "never-existed.md"))

	records, err := f.repo.GetByPath(ctx, "a.md")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestClearAndStats(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "content a")
	f.write(t, "b.md", "content b")
	m := f.manager(&batchStub{})
	ctx := context.Background()

	require.NoError(t, m.UpdateVaultIndex(ctx, Options{}, nil))
	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Paths)

	require.NoError(t, m.Clear(ctx))
	stats, err = m.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Chunks)
}

// holdLock grabs the flock the way a concurrent indexing run would.
func holdLock(path string) (func(), error) {
	l := flock.New(path)
	ok, err := l.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("lock already held")
	}
	return func() { _ = l.Unlock() }, nil
}

func TestUpdateVaultIndex_RunLock(t *testing.T) {
	// Given: another process-equivalent holding the run lock
	f := newFixture(t)
	f.write(t, "a.md", "content")
	lockPath := filepath.Join(t.TempDir(), "index.lock")

	m := NewManager(Config{
		Vault:      f.vault,
		Repository: f.repo,
		Embedder:   &batchStub{},
		LockPath:   lockPath,
	})

	held, err := holdLock(lockPath)
	require.NoError(t, err)
	defer held()

	// Then: the run refuses to start
	err = m.UpdateVaultIndex(context.Background(), Options{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in progress")
}
