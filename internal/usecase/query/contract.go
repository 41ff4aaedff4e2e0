package query

import (
	"context"

	"github.com/kailas-cloud/retriever/internal/index"
)

// Searcher is a vector index.
type Searcher interface {
	Search(vec []float32, k int) ([]index.Hit, error)
	Len() int
}

// Embedder vectorizes texts.
type Embedder interface {
	Embed(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
}
