// Package embed generates vector embeddings for note text and tracks the
// identity of the model that produced them.
package embed

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Identity names an embedding model precisely enough to partition stored
// vectors. Two vectors are comparable only when their identities match.
type Identity struct {
	// Provider is the embedding backend, e.g. "ollama" or "static".
	Provider string

	// Model is the provider-specific model name.
	Model string

	// Dimensions is the vector length the model produces.
	Dimensions int
}

// Namespace returns a stable key for partitioning stored vectors by model.
// Vectors from different namespaces are never compared.
func (id Identity) Namespace() string {
	sanitize := func(s string) string {
		return strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
				return r
			case r == '-' || r == '.':
				return r
			default:
				return '_'
			}
		}, s)
	}
	return fmt.Sprintf("%s_%s_%d", sanitize(id.Provider), sanitize(id.Model), id.Dimensions)
}

func (id Identity) String() string {
	return fmt.Sprintf("%s/%s (%d dims)", id.Provider, id.Model, id.Dimensions)
}

// Equal reports whether two identities name the same model.
func (id Identity) Equal(other Identity) bool {
	return id == other
}

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Identity returns the model identity of the vectors this embedder
	// produces.
	Identity() Identity

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// BatchEmbedder is implemented by embedders whose backend accepts many
// texts in one call.
type BatchEmbedder interface {
	Embedder

	// EmbedBatch generates embeddings for multiple texts in one request.
	// The result has one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Strategy selects how an indexing run drives an embedder.
type Strategy int

const (
	// StrategySequential issues one request per chunk with bounded
	// concurrency.
	StrategySequential Strategy = iota

	// StrategyBatch issues one request per fixed-size batch of chunks.
	StrategyBatch
)

func (s Strategy) String() string {
	if s == StrategyBatch {
		return "batch"
	}
	return "sequential"
}

// StrategyFor picks the embedding strategy for a model. The decision is
// made once per run, from the embedder's capability, not per call.
func StrategyFor(e Embedder) Strategy {
	if _, ok := e.(BatchEmbedder); ok {
		return StrategyBatch
	}
	return StrategySequential
}

// normalizeVector normalizes a vector to unit length. Zero vectors are
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
