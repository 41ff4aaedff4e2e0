package build

import (
	"context"

	"github.com/kailas-cloud/retriever/internal/domain"
	"github.com/kailas-cloud/retriever/internal/index"
)

// Loader extracts raw text from a source.
type Loader interface {
	Load(ctx context.Context, src domain.Source) (string, error)
}

// Chunker splits raw text into chunk texts.
type Chunker interface {
	Chunk(text string) []string
}

// Embedder turns texts into vectors, one per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
}

// Store persists index generations and build checkpoints.
type Store interface {
	Commit(idx *index.Index) error
	WriteCheckpoint(cp index.Checkpoint) error
	RemoveCheckpoint(buildID string) error
}
