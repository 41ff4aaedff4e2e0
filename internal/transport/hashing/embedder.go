// Package hashing is an offline embedding provider based on feature hashing.
// It needs no network and is deterministic, which makes it suitable for
// local development and tests. Quality is lexical, not semantic.
package hashing

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/kailas-cloud/retriever/internal/domain"
)

// DefaultDimensions is used when New receives a non-positive dimension.
const DefaultDimensions = 256

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "at": {}, "be": {}, "by": {},
	"do": {}, "does": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"how": {}, "i": {}, "in": {}, "is": {}, "it": {}, "its": {}, "of": {},
	"on": {}, "or": {}, "that": {}, "the": {}, "this": {}, "to": {},
	"was": {}, "what": {}, "when": {}, "where": {}, "which": {}, "who": {},
	"will": {}, "with": {}, "you": {}, "your": {},
}

// Embedder maps text to L2-normalised hashed bag-of-words vectors.
type Embedder struct {
	dim int
}

// New creates a hashing embedder with the given dimension.
func New(dim int) *Embedder {
	if dim <= 0 {
		dim = DefaultDimensions
	}
	return &Embedder{dim: dim}
}

// Model identifies the vector space for cache keys and logs.
func (e *Embedder) Model() string { return fmt.Sprintf("hashing-%d", e.dim) }

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("hashing embed: %w", err)
	}
	vec, tokens := e.vector(text)
	return domain.EmbeddingResult{Embedding: vec, PromptTokens: tokens, TotalTokens: tokens}, nil
}

// BatchEmbed implements domain.BatchEmbedder.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("hashing embed: %w", err)
	}

	res := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, text := range texts {
		vec, tokens := e.vector(text)
		res.Embeddings[i] = vec
		res.PromptTokens += tokens
		res.TotalTokens += tokens
	}
	return res, nil
}

// HealthCheck always succeeds.
func (e *Embedder) HealthCheck(context.Context) error { return nil }

func (e *Embedder) vector(text string) ([]float32, int) {
	vec := make([]float32, e.dim)
	terms := Terms(text)
	for _, term := range terms {
		h := xxhash.Sum64String(term)
		bucket := h % uint64(e.dim)
		if h>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// Empty or stopword-only text still gets a valid unit vector.
		vec[0] = 1
		return vec, len(terms)
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, len(terms)
}

// Terms lowercases text, splits it on non-alphanumerics, drops stopwords and
// strips a plural/3rd-person "s" from words longer than three letters.
func Terms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := words[:0]
	for _, w := range words {
		if _, ok := stopwords[w]; ok {
			continue
		}
		if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
			w = w[:len(w)-1]
		}
		terms = append(terms, w)
	}
	return terms
}
