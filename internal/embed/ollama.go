package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	verrors "github.com/mayank-meragi/notevault/internal/errors"
)

// Default Ollama settings.
const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "nomic-embed-text"
	OllamaRequestTimeout = 60 * time.Second
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// BaseURL is the Ollama server address. Required.
	BaseURL string

	// Model is the embedding model name.
	Model string

	// Dimensions is the expected vector length. Zero means detect from
	// the first embedding.
	Dimensions int

	// APIKey, when set, is sent as a bearer token. Ollama itself ignores
	// it; OpenAI-compatible proxies require it.
	APIKey string

	// Timeout bounds a single embedding request.
	Timeout time.Duration

	// ModelListTTL controls how long the model list is cached.
	ModelListTTL time.Duration
}

// OllamaEmbedder generates embeddings over Ollama's HTTP API, one request
// per text. Retry policy belongs to the caller; every call here is a
// single attempt returning a classified error.
type OllamaEmbedder struct {
	client *http.Client
	config OllamaConfig
	models *ModelCache

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

type ollamaModelInfo struct {
	Name string `json:"name"`
}

type ollamaModelListResponse struct {
	Models []ollamaModelInfo `json:"models"`
}

// NewOllamaEmbedder creates an Ollama embedder. The base URL must be set;
// connectivity is checked lazily on first use.
func NewOllamaEmbedder(cfg OllamaConfig) (*OllamaEmbedder, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, verrors.New(verrors.ErrCodeBaseURLMissing,
			"embedding provider base URL is not configured", nil).
			WithSuggestion("set embeddings.base_url in .notevault.yaml")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = OllamaRequestTimeout
	}

	e := &OllamaEmbedder{
		client: &http.Client{},
		config: cfg,
		dims:   cfg.Dimensions,
	}
	e.models = NewModelCache(cfg.ModelListTTL, e.listModels)
	return e, nil
}

// Embed generates the embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, verrors.InternalError("embedder is closed", nil)
	}
	dims := e.dims
	e.mu.RUnlock()

	if strings.TrimSpace(text) == "" {
		// A zero vector needs a known width; before the first real call
		// latches the dimensions there is nothing sensible to return.
		if dims == 0 {
			return nil, verrors.New(verrors.ErrCodeInvalidInput,
				"cannot embed empty text before the vector width is known", nil)
		}
		return make([]float32, dims), nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: text})
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeInternal, err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		e.config.BaseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus(resp.StatusCode, string(respBody))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, verrors.New(verrors.ErrCodeEmbeddingFailed,
			"failed to decode embedding response", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, verrors.New(verrors.ErrCodeEmbeddingFailed,
			"provider returned no embedding", nil)
	}

	embedding := make([]float32, len(result.Embeddings[0]))
	for i, v := range result.Embeddings[0] {
		embedding[i] = float32(v)
	}

	e.recordDimensions(len(embedding))
	return normalizeVector(embedding), nil
}

// recordDimensions latches the vector length observed on the first
// successful call when the configuration did not pin one.
func (e *OllamaEmbedder) recordDimensions(n int) {
	e.mu.Lock()
	if e.dims == 0 {
		e.dims = n
	}
	e.mu.Unlock()
}

// classifyTransportError maps request failures onto the error taxonomy.
func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return verrors.New(verrors.ErrCodeProviderTimeout,
			"embedding request timed out", err)
	}
	return verrors.New(verrors.ErrCodeProviderUnavailable,
		"cannot reach embedding provider", err).
		WithSuggestion("check that the embedding server is running")
}

// classifyStatus maps HTTP status codes onto the error taxonomy.
func classifyStatus(status int, body string) error {
	msg := fmt.Sprintf("embedding request failed with status %d", status)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return verrors.New(verrors.ErrCodeCredentialsInvalid, msg, nil).
			WithDetail("body", body).
			WithSuggestion("check the configured API key")
	case status == http.StatusTooManyRequests:
		return verrors.New(verrors.ErrCodeRateLimited, msg, nil).
			WithDetail("body", body)
	case status == http.StatusNotFound:
		return verrors.ConfigError("embedding model not found on provider", nil).
			WithDetail("body", body).
			WithSuggestion("pull the model or fix embeddings.model")
	case status >= 500:
		return verrors.New(verrors.ErrCodeProviderUnavailable, msg, nil).
			WithDetail("body", body)
	default:
		return verrors.New(verrors.ErrCodeEmbeddingFailed, msg, nil).
			WithDetail("body", body)
	}
}

// listModels fetches the model list from the provider. Callers go through
// the ModelCache, not this method.
func (e *OllamaEmbedder) listModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		e.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeInternal, err)
	}
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus(resp.StatusCode, string(respBody))
	}

	var result ollamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, verrors.New(verrors.ErrCodeProviderUnavailable,
			"failed to decode model list", err)
	}

	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}
	return names, nil
}

// Identity returns the model identity of this embedder.
func (e *OllamaEmbedder) Identity() Identity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Identity{
		Provider:   "ollama",
		Model:      e.config.Model,
		Dimensions: e.dims,
	}
}

// Available reports whether the provider is reachable and serves the
// configured model. Results come from the model-list cache, so repeated
// checks within the TTL cost nothing.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	models, err := e.models.Models(ctx)
	if err != nil {
		return false
	}

	want := strings.ToLower(e.config.Model)
	wantBase := strings.Split(want, ":")[0]
	for _, m := range models {
		name := strings.ToLower(m)
		if name == want || strings.Split(name, ":")[0] == wantBase {
			return true
		}
	}
	return false
}

// Close releases resources.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}
