package embed

import (
	"fmt"
	"time"

	verrors "github.com/mayank-meragi/notevault/internal/errors"
)

// Config selects and configures an embedding provider.
type Config struct {
	// Provider is "static" or "ollama".
	Provider string

	// Model is the provider-specific model name.
	Model string

	// Dimensions is the expected vector length; zero means detect.
	Dimensions int

	// BaseURL is the HTTP endpoint for remote providers.
	BaseURL string

	// APIKey authenticates against providers that require it.
	APIKey string

	// ModelListTTL bounds the model-list cache lifetime.
	ModelListTTL time.Duration
}

// New creates an embedder for the configured provider.
func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "static", "":
		return NewStaticEmbedder(), nil

	case "ollama":
		return NewOllamaEmbedder(OllamaConfig{
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			Dimensions:   cfg.Dimensions,
			APIKey:       cfg.APIKey,
			ModelListTTL: cfg.ModelListTTL,
		})

	default:
		return nil, verrors.ConfigError(
			fmt.Sprintf("unknown embedding provider %q", cfg.Provider), nil).
			WithSuggestion("set embeddings.provider to \"static\" or \"ollama\"")
	}
}
