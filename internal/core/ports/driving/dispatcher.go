package driving

import (
	"context"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

// SearchFunc runs one criterion query.
type SearchFunc func(ctx context.Context, criterion string) ([]domain.Match, error)

// RequirementSearchFunc runs one requirement query.
type RequirementSearchFunc func(ctx context.Context, req domain.Requirement) (domain.QueryResult, error)

// QueryDispatcher fans criterion queries out over a bounded worker pool.
type QueryDispatcher interface {
	// Dispatch returns exactly one result per distinct criterion once every
	// query has finished. Result order is not guaranteed.
	Dispatch(ctx context.Context, criteria []string, fn SearchFunc) ([]domain.QueryResult, error)

	// DispatchRequirements is Dispatch keyed by requirement criterion.
	DispatchRequirements(ctx context.Context, reqs []domain.Requirement, fn RequirementSearchFunc) ([]domain.QueryResult, error)
}
