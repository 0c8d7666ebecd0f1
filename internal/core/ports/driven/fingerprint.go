package driven

import (
	"context"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

// FingerprintStore persists content fingerprints of indexed sources.
// One store is kept per index collection.
type FingerprintStore interface {
	// Get returns the fingerprint for a source.
	// Returns nil and no error if none is recorded.
	Get(ctx context.Context, sourcePath string) (*domain.ContentFingerprint, error)

	// Save creates or replaces a fingerprint.
	Save(ctx context.Context, fp domain.ContentFingerprint) error

	// Delete removes a fingerprint. Deleting a missing fingerprint is not an error.
	Delete(ctx context.Context, sourcePath string) error

	// List returns all fingerprints ordered by source path.
	List(ctx context.Context) ([]domain.ContentFingerprint, error)
}
