package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kailas-cloud/retriever/internal/domain"
)

// PDF extracts text from a local PDF file. Pages are separated by blank lines.
type PDF struct{}

// Load implements Loader.
func (PDF) Load(ctx context.Context, src domain.Source) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("load %q: %w", src.Label, err)
	}
	text, err := openPDF(src.Location)
	if err != nil {
		return "", fmt.Errorf("load %q: %w", src.Label, err)
	}
	return text, nil
}

// PDFURL downloads a PDF and extracts its text.
type PDFURL struct {
	fetcher *fetcher
}

// Load implements Loader.
func (l *PDFURL) Load(ctx context.Context, src domain.Source) (string, error) {
	body, _, err := l.fetcher.fetch(ctx, src.Location)
	if err != nil {
		return "", fmt.Errorf("load %q: %w", src.Label, err)
	}
	text, err := extractPDF(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("load %q: %w", src.Label, err)
	}
	return text, nil
}

func openPDF(path string) (text string, err error) {
	defer recoverPDF(&err)

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %v: %w", err, domain.ErrSourceExtraction)
	}
	defer func() { _ = f.Close() }()

	return pageText(r)
}

func extractPDF(ra io.ReaderAt, size int64) (text string, err error) {
	defer recoverPDF(&err)

	r, err := pdf.NewReader(ra, size)
	if err != nil {
		return "", fmt.Errorf("parse pdf: %v: %w", err, domain.ErrSourceExtraction)
	}
	return pageText(r)
}

func pageText(r *pdf.Reader) (string, error) {
	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		t, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %v: %w", i, err, domain.ErrSourceExtraction)
		}
		if t = strings.TrimSpace(t); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

// recoverPDF converts parser panics on malformed files into extraction errors.
func recoverPDF(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("malformed pdf: %v: %w", r, domain.ErrSourceExtraction)
	}
}
