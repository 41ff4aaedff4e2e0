package loader

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/kailas-cloud/retriever/internal/domain"
)

type fetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

func newFetcher(cfg Config) *fetcher {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "retriever/1.0"
	}
	return &fetcher{client: client, maxBytes: maxBytes, userAgent: ua}
}

// fetch GETs url and returns the body with its media type.
func (f *fetcher) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %v: %w", err, domain.ErrSourceExtraction)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", fmt.Errorf("fetch %s: %w", url, ctx.Err())
		}
		return nil, "", fmt.Errorf("fetch %s: %v: %w", url, err, domain.ErrSourceExtraction)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("fetch %s: status %d: %w", url, resp.StatusCode, domain.ErrSourceExtraction)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %v: %w", url, err, domain.ErrSourceExtraction)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, "", fmt.Errorf("fetch %s: body exceeds %d bytes: %w", url, f.maxBytes, domain.ErrSourceExtraction)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return body, mediaType, nil
}
