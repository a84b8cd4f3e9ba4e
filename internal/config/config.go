// Package config loads and validates notevault configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-vault configuration file name.
const ConfigFileName = ".notevault.yaml"

// DataDirName is the per-vault data directory name.
const DataDirName = ".notevault"

// Config represents the complete notevault configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	LogLevel   string           `yaml:"log_level" json:"log_level"`
}

// PathsConfig configures which vault paths to include and exclude.
// Exclude patterns win when a path matches both.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// IndexConfig configures the indexing pipeline.
type IndexConfig struct {
	// ChunkSize is the target chunk length in characters.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`

	// BatchSize is the number of chunks per batch-embedding call.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// Concurrency bounds in-flight embedding calls when the model
	// has no native batch endpoint.
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// WatchDebounce is the window for coalescing file events in watch mode.
	WatchDebounce time.Duration `yaml:"watch_debounce" json:"watch_debounce"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend: "static" or "ollama".
	Provider string `yaml:"provider" json:"provider"`

	// Model is the embedding model identifier.
	Model string `yaml:"model" json:"model"`

	// Dimensions is the embedding vector width.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// BaseURL is the provider endpoint (ollama only).
	BaseURL string `yaml:"base_url" json:"base_url"`

	// APIKey authenticates against the provider, if it requires one.
	APIKey string `yaml:"api_key" json:"api_key"`

	// ModelListTTL bounds how long fetched provider model lists are cached.
	ModelListTTL time.Duration `yaml:"model_list_ttl" json:"model_list_ttl"`
}

// SearchConfig configures similarity search defaults.
type SearchConfig struct {
	// Limit is the maximum number of results per query.
	Limit int `yaml:"limit" json:"limit"`

	// MinSimilarity filters results below this similarity (0.0-1.0).
	MinSimilarity float64 `yaml:"min_similarity" json:"min_similarity"`

	// QueryPrefix is prepended to query text before embedding. Some
	// models expect an instruction prefix such as "search_query: ".
	QueryPrefix string `yaml:"query_prefix" json:"query_prefix"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: nil,
			Exclude: []string{DataDirName + "/**"},
		},
		Index: IndexConfig{
			ChunkSize:     1000,
			BatchSize:     32,
			Concurrency:   4,
			WatchDebounce: 500 * time.Millisecond,
		},
		Embeddings: EmbeddingsConfig{
			Provider:     "static",
			Model:        "static-256",
			Dimensions:   256,
			ModelListTTL: 10 * time.Minute,
		},
		Search: SearchConfig{
			Limit:         10,
			MinSimilarity: 0.0,
		},
		LogLevel: "info",
	}
}

// Load reads configuration from the vault root, falling back to defaults
// when the file does not exist.
func Load(vaultRoot string) (*Config, error) {
	path := filepath.Join(vaultRoot, ConfigFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to the vault root.
func (c *Config) Save(vaultRoot string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(vaultRoot, ConfigFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("index.chunk_size must be positive, got %d", c.Index.ChunkSize)
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index.batch_size must be positive, got %d", c.Index.BatchSize)
	}
	if c.Index.Concurrency <= 0 {
		return fmt.Errorf("index.concurrency must be positive, got %d", c.Index.Concurrency)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Search.Limit <= 0 {
		return fmt.Errorf("search.limit must be positive, got %d", c.Search.Limit)
	}
	if c.Search.MinSimilarity < 0 || c.Search.MinSimilarity > 1 {
		return fmt.Errorf("search.min_similarity must be in [0,1], got %f", c.Search.MinSimilarity)
	}
	return nil
}

// DataDir returns the per-vault data directory path.
func DataDir(vaultRoot string) string {
	return filepath.Join(vaultRoot, DataDirName)
}
