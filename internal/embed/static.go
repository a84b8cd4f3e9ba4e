package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	verrors "github.com/mayank-meragi/notevault/internal/errors"
)

// StaticDimensions is the embedding dimension for the static embedder.
const StaticDimensions = 256

// StaticModelName identifies the static embedder in stored identities.
const StaticModelName = "static-256"

// Weights for vector generation. Word tokens carry most of the signal;
// character trigrams catch inflections and typos.
const (
	wordWeight  = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// englishStopWords are filtered before hashing so that common filler
// words do not dominate the vector.
var englishStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"of": true, "to": true, "in": true, "on": true, "for": true,
	"is": true, "are": true, "was": true, "be": true, "it": true,
	"this": true, "that": true, "with": true, "as": true, "at": true,
}

// StaticEmbedder generates deterministic hash-based embeddings without any
// network or model download. Semantic quality is reduced; determinism and
// zero setup are the point.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

var _ BatchEmbedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a new static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed generates the embedding for a single text.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, verrors.InternalError("embedder is closed", nil)
	}
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}

	return normalizeVector(e.generateVector(trimmed)), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = emb
	}
	return results, nil
}

// generateVector hashes word tokens and character trigrams into a fixed
// number of buckets.
func (e *StaticEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	for _, word := range tokenizeWords(text) {
		vector[hashToIndex(word, StaticDimensions)] += wordWeight
	}

	compact := compactAlphanumeric(text)
	for i := 0; i+ngramSize <= len(compact); i++ {
		vector[hashToIndex(compact[i:i+ngramSize], StaticDimensions)] += ngramWeight
	}

	return vector
}

// tokenizeWords splits note text into lowercase word tokens, dropping
// stop words.
func tokenizeWords(text string) []string {
	var tokens []string
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		lower := strings.ToLower(f)
		if !englishStopWords[lower] {
			tokens = append(tokens, lower)
		}
	}
	return tokens
}

// compactAlphanumeric lowercases text and strips everything that is not a
// letter or digit, preparing it for trigram extraction.
func compactAlphanumeric(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// hashToIndex uses FNV-64 to map a string to a bucket index.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// Identity returns the model identity of the static embedder.
func (e *StaticEmbedder) Identity() Identity {
	return Identity{
		Provider:   "static",
		Model:      StaticModelName,
		Dimensions: StaticDimensions,
	}
}

// Available reports whether the embedder is usable (always, until closed).
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
