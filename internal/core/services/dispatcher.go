package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
	"github.com/custodia-labs/esgrag/internal/core/ports/driving"
	"github.com/custodia-labs/esgrag/internal/logger"
)

// Ensure Dispatcher implements the interface.
var _ driving.QueryDispatcher = (*Dispatcher)(nil)

const mib = 1 << 20

// query is one unit of dispatched work.
type query struct {
	criterion string
	category  string
	run       func(ctx context.Context) (domain.QueryResult, error)
}

// Dispatcher runs criterion searches on a worker pool sized from the memory
// headroom of the host.
type Dispatcher struct {
	sampler driven.ResourceSampler
	cfg     domain.DispatchSettings
	log     *logger.Logger
}

// NewDispatcher creates a dispatcher. A nil sampler runs MaxWorkers workers.
func NewDispatcher(sampler driven.ResourceSampler, cfg domain.DispatchSettings, log *logger.Logger) *Dispatcher {
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	return &Dispatcher{sampler: sampler, cfg: cfg, log: logger.OrNop(log)}
}

// Dispatch runs fn once per distinct criterion.
func (d *Dispatcher) Dispatch(ctx context.Context, criteria []string, fn driving.SearchFunc) ([]domain.QueryResult, error) {
	seen := make(map[string]struct{}, len(criteria))
	queries := make([]query, 0, len(criteria))
	for _, criterion := range criteria {
		if _, dup := seen[criterion]; dup {
			continue
		}
		seen[criterion] = struct{}{}
		queries = append(queries, query{
			criterion: criterion,
			run: func(ctx context.Context) (domain.QueryResult, error) {
				matches, err := fn(ctx, criterion)
				if err != nil {
					return domain.QueryResult{}, err
				}
				return domain.NewQueryResult(criterion, matches, nil), nil
			},
		})
	}
	return d.dispatch(ctx, queries)
}

// DispatchRequirements runs fn once per distinct requirement criterion.
// The first requirement with a given criterion wins.
func (d *Dispatcher) DispatchRequirements(
	ctx context.Context, reqs []domain.Requirement, fn driving.RequirementSearchFunc,
) ([]domain.QueryResult, error) {
	seen := make(map[string]struct{}, len(reqs))
	queries := make([]query, 0, len(reqs))
	for _, req := range reqs {
		if _, dup := seen[req.Criterion]; dup {
			continue
		}
		seen[req.Criterion] = struct{}{}
		queries = append(queries, query{
			criterion: req.Criterion,
			category:  req.Category,
			run: func(ctx context.Context) (domain.QueryResult, error) {
				return fn(ctx, req)
			},
		})
	}
	return d.dispatch(ctx, queries)
}

// Workers returns the pool size for n queries, or domain.ErrResourceExhausted
// when the host has too little memory headroom to start.
func (d *Dispatcher) Workers(ctx context.Context, n int) (int, error) {
	workers := d.cfg.MaxWorkers
	if d.sampler != nil {
		sample, err := d.sampler.Sample(ctx)
		if err != nil {
			d.log.Warn("resource sample failed, running one worker: %v", err)
			workers = 1
		} else {
			if d.cfg.MemoryCeiling > 0 && sample.MemoryFraction >= d.cfg.MemoryCeiling {
				return 0, fmt.Errorf("%w: memory use %.0f%% is at or above the %.0f%% ceiling",
					domain.ErrResourceExhausted, sample.MemoryFraction*100, d.cfg.MemoryCeiling*100)
			}
			minFree := uint64(d.cfg.MinFreeMB) * mib
			if sample.AvailableBytes < minFree {
				return 0, fmt.Errorf("%w: %d MiB available, %d MiB required",
					domain.ErrResourceExhausted, sample.AvailableBytes/mib, d.cfg.MinFreeMB)
			}
			if d.cfg.PerWorkerMB > 0 {
				fit := sample.AvailableBytes / (uint64(d.cfg.PerWorkerMB) * mib)
				if fit < uint64(workers) {
					workers = int(fit)
				}
			}
		}
	}
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	return workers, nil
}

// dispatch is the barrier: it returns once every query has a result.
// Workers never fail the group so one query cannot cancel its siblings.
func (d *Dispatcher) dispatch(ctx context.Context, queries []query) ([]domain.QueryResult, error) {
	if len(queries) == 0 {
		return []domain.QueryResult{}, nil
	}

	workers, err := d.Workers(ctx, len(queries))
	if err != nil {
		return nil, err
	}
	d.log.Debug("Dispatching %d queries on %d workers", len(queries), workers)

	results := make([]domain.QueryResult, len(queries))
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range queries {
		g.Go(func() error {
			results[i] = d.runWithRetry(ctx, queries[i])
			return nil
		})
	}
	_ = g.Wait()

	return results, ctx.Err()
}

// runWithRetry runs a query and retries it once on error.
func (d *Dispatcher) runWithRetry(ctx context.Context, q query) domain.QueryResult {
	res, err := d.runSafely(ctx, q)
	if err != nil && ctx.Err() == nil {
		d.log.Warn("query %q failed, retrying: %v", q.criterion, err)
		res, err = d.runSafely(ctx, q)
	}
	if err != nil {
		d.log.Warn("query %q not processed: %v", q.criterion, err)
		res = domain.NewQueryResult(q.criterion, nil, err)
	}
	res.Criterion = q.criterion
	if res.Category == "" {
		res.Category = q.category
	}
	return res
}

// runSafely turns a panic inside a search into an error.
func (d *Dispatcher) runSafely(ctx context.Context, q query) (res domain.QueryResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("search panicked: %v", r)
		}
	}()
	return q.run(ctx)
}
