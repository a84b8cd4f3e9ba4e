// Package watcher reacts to vault file changes and keeps the index
// current through the single-file update path.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mayank-meragi/notevault/internal/vault"
)

// Op is the kind of change observed on a note.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpDelete
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Event is one observed note change. Path is vault-relative.
type Event struct {
	Path string
	Op   Op
}

// Indexer is the slice of the index manager the watcher drives. Updates
// are fire-and-forget; deletes are idempotent.
type Indexer interface {
	UpdateFileIndex(ctx context.Context, path string)
	DeleteFileIndex(ctx context.Context, path string) error
}

// DefaultDebounce is the event-coalescing window.
const DefaultDebounce = 500 * time.Millisecond

// VaultWatcher watches a vault root recursively and applies debounced
// note events to the index.
type VaultWatcher struct {
	root     string
	indexer  Indexer
	filter   *vault.Filter
	debounce time.Duration
	logger   *slog.Logger
}

// Config wires a VaultWatcher.
type Config struct {
	Root    string
	Indexer Indexer

	// Include and Exclude are the same patterns the indexing run uses,
	// so watch mode never indexes what a full run would skip.
	Include []string
	Exclude []string

	// Debounce is the coalescing window. Zero means DefaultDebounce.
	Debounce time.Duration

	Logger *slog.Logger
}

// New creates a VaultWatcher.
func New(cfg Config) *VaultWatcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &VaultWatcher{
		root:     cfg.Root,
		indexer:  cfg.Indexer,
		filter:   vault.NewFilter(cfg.Include, cfg.Exclude),
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
	}
}

// Run watches until the context is cancelled. It blocks.
func (w *VaultWatcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addRecursive(fsw, w.root); err != nil {
		return err
	}

	deb := newDebouncer(w.debounce)
	defer deb.stop()

	w.logger.Info("watching vault", slog.String("root", w.root))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case fsEvent, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleFsEvent(fsw, deb, fsEvent)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))

		case batch := <-deb.output:
			w.apply(ctx, batch)
		}
	}
}

// handleFsEvent converts a raw fsnotify event into a note event, watches
// newly created directories, and feeds the debouncer.
func (w *VaultWatcher) handleFsEvent(fsw *fsnotify.Watcher, deb *debouncer, e fsnotify.Event) {
	rel, err := filepath.Rel(w.root, e.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if isHiddenPath(rel) {
		return
	}

	// New directories must be watched before notes appear inside them.
	if e.Op.Has(fsnotify.Create) {
		if info, statErr := os.Stat(e.Name); statErr == nil && info.IsDir() {
			_ = w.addRecursive(fsw, e.Name)
			return
		}
	}

	if !strings.HasSuffix(rel, vault.NoteExtension) || !w.filter.Match(rel) {
		return
	}

	switch {
	case e.Op.Has(fsnotify.Create):
		deb.add(Event{Path: rel, Op: OpCreate})
	case e.Op.Has(fsnotify.Write):
		deb.add(Event{Path: rel, Op: OpModify})
	case e.Op.Has(fsnotify.Remove) || e.Op.Has(fsnotify.Rename):
		deb.add(Event{Path: rel, Op: OpDelete})
	}
}

// apply drives the index from a debounced batch.
func (w *VaultWatcher) apply(ctx context.Context, batch []Event) {
	for _, event := range batch {
		w.logger.Debug("applying vault event",
			slog.String("path", event.Path),
			slog.String("op", event.Op.String()))
		switch event.Op {
		case OpDelete:
			if err := w.indexer.DeleteFileIndex(ctx, event.Path); err != nil {
				w.logger.Warn("delete from index failed",
					slog.String("path", event.Path),
					slog.String("error", err.Error()))
			}
		default:
			w.indexer.UpdateFileIndex(ctx, event.Path)
		}
	}
}

// addRecursive watches dir and every non-hidden subdirectory.
func (w *VaultWatcher) addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr == nil && rel != "." && isHiddenPath(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

// isHiddenPath reports whether any segment of a slash path is hidden.
func isHiddenPath(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
