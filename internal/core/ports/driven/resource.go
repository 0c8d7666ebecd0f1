package driven

import (
	"context"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

// ResourceSampler reports current host resource usage.
type ResourceSampler interface {
	Sample(ctx context.Context) (domain.ResourceSample, error)
}
