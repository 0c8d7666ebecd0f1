package driving

import (
	"context"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

// RetrievalSearcher answers a criterion with ranked matches from one index.
type RetrievalSearcher interface {
	// Search returns at most k matches above the active threshold, ordered by
	// descending similarity and ascending id.
	Search(ctx context.Context, criterion string, k int, opts domain.SearchOptions) ([]domain.Match, error)

	// SearchRequirement searches the criterion and falls back to the
	// description when nothing passes the threshold.
	SearchRequirement(ctx context.Context, req domain.Requirement, k int, filter *domain.Filter) (domain.QueryResult, error)
}
