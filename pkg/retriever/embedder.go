package retriever

import (
	"context"

	"github.com/kailas-cloud/retriever/internal/domain"
)

// Embedder converts text to vector embeddings. Return an error wrapping
// ErrProviderUnavailable for failures worth retrying.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single API call.
// Optional: if the provided Embedder also implements BatchEmbedder,
// indexing uses it for one call per batch.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// embedderAdapter exposes a public Embedder as a domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, err //nolint:wrapcheck // caller's sentinels must survive
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embedding,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

func (a *embedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	be, ok := a.inner.(BatchEmbedder)
	if !ok {
		return domain.BatchFallback(ctx, a, texts)
	}
	res, err := be.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err //nolint:wrapcheck // caller's sentinels must survive
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   res.Embeddings,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}
