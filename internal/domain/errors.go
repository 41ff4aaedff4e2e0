package domain

import "errors"

var (
	// ErrProviderUnavailable signals a transient embedding provider failure
	// (connection error, rate limit, 5xx). Callers may retry.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	// ErrEmbeddingProviderError signals a permanent embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrSourceExtraction signals that a source could not be turned into text.
	ErrSourceExtraction = errors.New("source extraction failed")
	// ErrUnsupportedSource signals a source type without a loader.
	ErrUnsupportedSource = errors.New("unsupported source type")
	// ErrCorruptIndex signals inconsistent or missing index artifacts.
	ErrCorruptIndex = errors.New("corrupt index")
	// ErrIndexNotLoaded signals that no index is available for serving.
	ErrIndexNotLoaded = errors.New("index not loaded")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidConfig signals an invalid component configuration.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidQuery signals an unusable query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrRebuildFailed signals that a rebuild indexed no source.
	ErrRebuildFailed = errors.New("rebuild failed")
	// ErrGenerationExists signals a commit reusing a committed build ID.
	ErrGenerationExists = errors.New("index generation already exists")
)
