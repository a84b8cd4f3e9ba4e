package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mayank-meragi/notevault/internal/config"
	"github.com/mayank-meragi/notevault/internal/embed"
	"github.com/mayank-meragi/notevault/internal/index"
	"github.com/mayank-meragi/notevault/internal/store"
	"github.com/mayank-meragi/notevault/internal/vault"
)

// vectorDBName is the per-vault vector database file name.
const vectorDBName = "vectors.db"

// lockFileName guards the database against concurrent indexing runs.
const lockFileName = "index.lock"

// app bundles the wired components every command needs.
type app struct {
	root     string
	cfg      *config.Config
	vault    *vault.DirVault
	embedder embed.Embedder
	repo     *store.SQLiteRepository
	manager  *index.Manager
}

// openApp loads configuration and wires the vault, embedder, repository,
// and index manager. The returned cleanup closes what was opened and is
// always safe to call.
func openApp(notify index.NoticeFunc) (*app, func(), error) {
	root, err := vaultRoot()
	if err != nil {
		return nil, func() {}, err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, func() {}, err
	}

	dataDir := config.DataDir(root)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, func() {}, fmt.Errorf("failed to create data directory: %w", err)
	}

	embedder, err := embed.New(embed.Config{
		Provider:     cfg.Embeddings.Provider,
		Model:        cfg.Embeddings.Model,
		Dimensions:   cfg.Embeddings.Dimensions,
		BaseURL:      cfg.Embeddings.BaseURL,
		APIKey:       cfg.Embeddings.APIKey,
		ModelListTTL: cfg.Embeddings.ModelListTTL,
	})
	if err != nil {
		return nil, func() {}, err
	}

	repo, err := store.NewSQLiteRepository(filepath.Join(dataDir, vectorDBName), embedder.Identity())
	if err != nil {
		_ = embedder.Close()
		return nil, func() {}, err
	}

	manager := index.NewManager(index.Config{
		Vault:       vault.NewDirVault(root),
		Repository:  repo,
		Embedder:    embedder,
		LockPath:    filepath.Join(dataDir, lockFileName),
		ChunkSize:   cfg.Index.ChunkSize,
		BatchSize:   cfg.Index.BatchSize,
		Concurrency: cfg.Index.Concurrency,
		Notify:      notify,
	})

	a := &app{
		root:     root,
		cfg:      cfg,
		vault:    vault.NewDirVault(root),
		embedder: embedder,
		repo:     repo,
		manager:  manager,
	}
	cleanup := func() {
		_ = repo.Close()
		_ = embedder.Close()
	}
	return a, cleanup, nil
}
