package retriever

import "github.com/kailas-cloud/retriever/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrProviderUnavailable    = domain.ErrProviderUnavailable
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrSourceExtraction       = domain.ErrSourceExtraction
	ErrUnsupportedSource      = domain.ErrUnsupportedSource
	ErrCorruptIndex           = domain.ErrCorruptIndex
	ErrIndexNotLoaded         = domain.ErrIndexNotLoaded
	ErrVectorDimMismatch      = domain.ErrVectorDimMismatch
	ErrInvalidConfig          = domain.ErrInvalidConfig
	ErrInvalidQuery           = domain.ErrInvalidQuery
	ErrRebuildFailed          = domain.ErrRebuildFailed
)
