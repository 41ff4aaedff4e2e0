package engine

import (
	"context"

	"github.com/kailas-cloud/retriever/internal/domain"
	"github.com/kailas-cloud/retriever/internal/index"
	"github.com/kailas-cloud/retriever/internal/usecase/build"
	"github.com/kailas-cloud/retriever/internal/usecase/query"
)

// Registry lists the sources to index.
type Registry interface {
	ListEnabled(ctx context.Context) ([]domain.Source, error)
}

// Builder builds and commits a new index generation.
type Builder interface {
	Rebuild(ctx context.Context, sources []domain.Source) (build.Report, error)
}

// Store reads committed generations.
type Store interface {
	Load() (*index.Index, error)
	LoadGeneration(buildID string) (*index.Index, error)
}

// Querier ranks passages against an index.
type Querier interface {
	Query(ctx context.Context, idx query.Searcher, question string, k int, threshold float64) ([]query.Result, error)
}
