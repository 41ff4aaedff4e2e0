// Package registry lists the sources to index.
package registry

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/retriever/internal/domain"
)

// Registry is a source catalogue.
type Registry interface {
	// List returns every source in registry order.
	List(ctx context.Context) ([]domain.Source, error)
	// ListEnabled returns the enabled sources in registry order.
	ListEnabled(ctx context.Context) ([]domain.Source, error)
}

func enabledOnly(all []domain.Source) []domain.Source {
	out := make([]domain.Source, 0, len(all))
	for _, s := range all {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// validate checks a source and rejects duplicate identities against seen.
func validate(s domain.Source, seen map[string]bool) error {
	if _, err := domain.ParseSourceType(string(s.Type)); err != nil {
		return fmt.Errorf("source %q: %w", s.Label, err)
	}
	if s.Location == "" {
		return fmt.Errorf("source %q: location is required: %w", s.Label, domain.ErrInvalidConfig)
	}
	if s.Label == "" {
		return fmt.Errorf("source at %q: label is required: %w", s.Location, domain.ErrInvalidConfig)
	}
	if seen[s.Key()] {
		return fmt.Errorf("duplicate source %s: %w", s.Key(), domain.ErrInvalidConfig)
	}
	seen[s.Key()] = true
	return nil
}
