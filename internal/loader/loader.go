// Package loader turns registered sources into raw text, one loader per
// source type.
package loader

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kailas-cloud/retriever/internal/domain"
)

// Defaults for remote sources.
const (
	DefaultTimeout  = 30 * time.Second
	DefaultMaxBytes = 50 << 20
)

// Loader extracts the raw text of a source. An empty string with a nil
// error means the source has no text.
type Loader interface {
	Load(ctx context.Context, src domain.Source) (string, error)
}

// Config configures remote fetching.
type Config struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// Set dispatches to the loader registered for a source type.
type Set map[domain.SourceType]Loader

// NewSet returns loaders for every supported source type.
func NewSet(cfg Config) Set {
	f := newFetcher(cfg)
	return Set{
		domain.SourcePDF:    PDF{},
		domain.SourcePDFURL: &PDFURL{fetcher: f},
		domain.SourceWeb:    &Web{fetcher: f},
		domain.SourceText:   Text{},
	}
}

// Load implements Loader.
func (s Set) Load(ctx context.Context, src domain.Source) (string, error) {
	l, ok := s[src.Type]
	if !ok {
		return "", fmt.Errorf("source %q: %w: %q", src.Label, domain.ErrUnsupportedSource, src.Type)
	}
	return l.Load(ctx, src) //nolint:wrapcheck // loaders already name the source
}
