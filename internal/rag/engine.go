package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mayank-meragi/notevault/internal/embed"
	verrors "github.com/mayank-meragi/notevault/internal/errors"
	"github.com/mayank-meragi/notevault/internal/store"
	"github.com/mayank-meragi/notevault/internal/vault"
)

// readConcurrency bounds parallel note reads when collecting mentioned
// files for a query.
const readConcurrency = 4

// Scope restricts retrieval to a subset of the vault.
type Scope struct {
	// Paths are exact vault-relative note paths.
	Paths []string

	// Folders are vault-relative folder prefixes.
	Folders []string
}

// Options tunes a query.
type Options struct {
	// Limit caps the number of results. Non-positive means the store
	// default.
	Limit int

	// MinSimilarity drops results scoring below it.
	MinSimilarity float32
}

// Config wires an Engine.
type Config struct {
	Embedder   embed.Embedder
	Repository store.Repository
	Vault      vault.Vault
	Logger     *slog.Logger

	// QueryPrefix is prepended to query text before embedding, for
	// models that expect an instruction prefix. Results and logs see
	// the original query.
	QueryPrefix string

	// OnState receives progress states. May be nil.
	OnState StateFunc
}

// Engine embeds queries and composes retrieval context from the
// repository.
type Engine struct {
	embedder    embed.Embedder
	repo        store.Repository
	vault       vault.Vault
	logger      *slog.Logger
	queryPrefix string
	onState     StateFunc
}

// NewEngine creates an Engine.
func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		embedder:    cfg.Embedder,
		repo:        cfg.Repository,
		vault:       cfg.Vault,
		logger:      cfg.Logger,
		queryPrefix: cfg.QueryPrefix,
		onState:     cfg.OnState,
	}
}

func (e *Engine) emit(s State) {
	if e.onState != nil {
		e.onState(s)
	}
}

// checkIdentity rejects queries when the engine's embedder and the
// repository serve different model identities. Mismatched vectors would
// otherwise return meaningless scores instead of failing.
func (e *Engine) checkIdentity() error {
	got := e.embedder.Identity()
	want := e.repo.Identity()

	if got.Provider != want.Provider || got.Model != want.Model {
		return verrors.New(verrors.ErrCodeModelMismatch,
			fmt.Sprintf("index was built with %s but the query uses %s", want, got), nil).
			WithSuggestion("re-index the vault or switch back to the indexed model")
	}
	// Dimensions may still be unlatched on either side (zero) before the
	// first embedding; only a concrete disagreement is an error.
	if got.Dimensions > 0 && want.Dimensions > 0 && got.Dimensions != want.Dimensions {
		return verrors.New(verrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("index has %d-dimensional vectors, model produces %d",
				want.Dimensions, got.Dimensions), nil).
			WithSuggestion("re-index the vault with the current model")
	}
	return nil
}

// ProcessQuery embeds the query, runs a similarity search (optionally
// scoped), and returns ranked results.
func (e *Engine) ProcessQuery(ctx context.Context, query string, scope *Scope, opts Options) ([]store.SearchResult, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, verrors.New(verrors.ErrCodeQueryEmpty, "query is empty", nil)
	}

	if err := e.checkIdentity(); err != nil {
		return nil, err
	}

	e.emit(State{Phase: PhaseQuerying})

	queryVector, err := e.embedder.Embed(ctx, e.queryPrefix+trimmed)
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeEmbeddingFailed, err)
	}

	searchOpts := store.SearchOptions{
		Limit:         opts.Limit,
		MinSimilarity: opts.MinSimilarity,
	}
	if scope != nil {
		searchOpts.ScopePaths = scope.Paths
		searchOpts.ScopeFolders = scope.Folders
	}

	results, err := e.repo.SimilaritySearch(ctx, queryVector, searchOpts)
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeSearchFailed, err)
	}

	e.emit(State{Phase: PhaseQueryingDone})

	e.logger.Debug("query processed",
		slog.String("query", trimmed),
		slog.Int("results", len(results)))
	return results, nil
}

// MentionedFile is a note read in full because the query referenced it
// directly rather than through retrieval.
type MentionedFile struct {
	Path    string
	Content string
}

// ReadMentioned loads directly-referenced notes with bounded parallel
// reads. Missing or unreadable notes are skipped; retrieval should not
// fail because one mention is stale.
func (e *Engine) ReadMentioned(ctx context.Context, paths []string) []MentionedFile {
	if len(paths) == 0 || e.vault == nil {
		return nil
	}

	e.emit(State{Phase: PhaseReadingFiles})

	contents := make([]string, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)
	for i, path := range paths {
		g.Go(func() error {
			content, err := e.vault.Read(gctx, path)
			if err != nil {
				e.logger.Warn("skipping unreadable mentioned file",
					slog.String("path", path),
					slog.String("error", err.Error()))
				return nil
			}
			contents[i] = content
			return nil
		})
	}
	_ = g.Wait()

	var files []MentionedFile
	for i, content := range contents {
		if content != "" {
			files = append(files, MentionedFile{Path: paths[i], Content: content})
		}
	}

	e.emit(State{Phase: PhaseReadingFilesDone})
	return files
}
