package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/retriever/internal/domain"
)

// File reads sources from a YAML file:
//
//	sources:
//	  - type: pdf
//	    location: docs/pool-rules.pdf
//	    label: pool-rules
//	    enabled: true
//
// enabled defaults to true. Relative local paths resolve against the file's directory.
type File struct {
	path string
}

// NewFile creates a file-backed registry. The file is read on every call.
func NewFile(path string) *File {
	return &File{path: path}
}

type fileDoc struct {
	Sources []fileSource `yaml:"sources"`
}

type fileSource struct {
	Type     string `yaml:"type"`
	Location string `yaml:"location"`
	Label    string `yaml:"label"`
	Enabled  *bool  `yaml:"enabled"`
}

// List implements Registry.
func (f *File) List(ctx context.Context) ([]domain.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", f.path, err)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry %s: %v: %w", f.path, err, domain.ErrInvalidConfig)
	}

	base := filepath.Dir(f.path)
	seen := make(map[string]bool, len(doc.Sources))
	out := make([]domain.Source, 0, len(doc.Sources))
	for _, fs := range doc.Sources {
		src := domain.Source{
			Type:     domain.SourceType(fs.Type),
			Location: fs.Location,
			Label:    fs.Label,
			Enabled:  fs.Enabled == nil || *fs.Enabled,
		}
		if src.Label == "" {
			src.Label = filepath.Base(src.Location)
		}
		if err := validate(src, seen); err != nil {
			return nil, fmt.Errorf("registry %s: %w", f.path, err)
		}
		if isLocal(src.Type) && !filepath.IsAbs(src.Location) {
			src.Location = filepath.Join(base, src.Location)
		}
		out = append(out, src)
	}
	return out, nil
}

// ListEnabled implements Registry.
func (f *File) ListEnabled(ctx context.Context) ([]domain.Source, error) {
	all, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	return enabledOnly(all), nil
}

func isLocal(t domain.SourceType) bool {
	return t == domain.SourcePDF || t == domain.SourceText
}
