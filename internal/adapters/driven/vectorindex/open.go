// Package vectorindex opens the configured VectorIndex backend for a collection.
package vectorindex

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/esgrag/internal/adapters/driven/vectorindex/flat"
	"github.com/custodia-labs/esgrag/internal/adapters/driven/vectorindex/qdrant"
	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
)

// collectionPrefix namespaces Qdrant collections.
const collectionPrefix = "esgrag_"

// Dir returns the on-disk directory of a flat collection.
func Dir(settings domain.IndexSettings, kind domain.SourceKind) string {
	return filepath.Join(settings.Dir, kind.String())
}

// Open loads the index for a collection, creating it when it does not exist.
// A corrupt flat index is reported and never replaced.
func Open(ctx context.Context, settings domain.IndexSettings, kind domain.SourceKind, dimension int) (driven.VectorIndex, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown collection %q", domain.ErrInvalidInput, kind)
	}

	switch settings.Backend {
	case domain.BackendFlat, "":
		if settings.Dir == "" {
			return nil, fmt.Errorf("%w: index directory is not configured", domain.ErrInvalidInput)
		}
		idx, err := flat.Open(Dir(settings, kind), dimension, settings.Metric)
		if err != nil {
			return nil, fmt.Errorf("open %s index: %w", kind, err)
		}
		return idx, nil

	case domain.BackendQdrant:
		idx, err := qdrant.Open(ctx, qdrant.Config{
			Host:       settings.QdrantHost,
			Port:       settings.QdrantPort,
			Collection: collectionPrefix + kind.String(),
			Dimension:  dimension,
			Metric:     settings.Metric,
		})
		if err != nil {
			return nil, fmt.Errorf("open %s collection: %w", kind, err)
		}
		return idx, nil

	default:
		return nil, fmt.Errorf("%w: unsupported index backend %q", domain.ErrInvalidInput, settings.Backend)
	}
}
