package driven

import "github.com/custodia-labs/esgrag/internal/core/domain"

// EmbeddingValidator checks that embedding settings reach a working provider.
type EmbeddingValidator interface {
	// ValidateEmbedding creates the configured service and pings it.
	ValidateEmbedding(settings *domain.EmbeddingSettings) error
}
