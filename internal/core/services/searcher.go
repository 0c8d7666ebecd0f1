package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
	"github.com/custodia-labs/esgrag/internal/core/ports/driving"
	"github.com/custodia-labs/esgrag/internal/logger"
)

// Ensure Searcher implements the interface.
var _ driving.RetrievalSearcher = (*Searcher)(nil)

const (
	// DefaultTopK is used when a search asks for no particular count.
	DefaultTopK = 5

	// filterOversample widens the candidate pool again when a filter will
	// discard part of it.
	filterOversample = 2
)

// SearcherConfig tunes retrieval.
type SearcherConfig struct {
	// Scorer holds weights and threshold tiers.
	Scorer domain.ScorerSettings

	// Oversample multiplies k to size the candidate pool.
	Oversample int
}

// scoredEntry holds a candidate between scoring and hydration.
type scoredEntry struct {
	entry domain.IndexEntry
	score Score
}

// Searcher answers criteria with ranked passages from one vector index.
type Searcher struct {
	index    driven.VectorIndex
	embedder driven.EmbeddingService
	scorer   *Scorer
	cfg      SearcherConfig
	log      *logger.Logger
}

// NewSearcher creates a searcher. The synonym table may be nil.
func NewSearcher(
	index driven.VectorIndex,
	embedder driven.EmbeddingService,
	synonyms driven.SynonymTable,
	cfg SearcherConfig,
	log *logger.Logger,
) *Searcher {
	if cfg.Oversample < 1 {
		cfg.Oversample = 1
	}
	return &Searcher{
		index:    index,
		embedder: embedder,
		scorer:   NewScorer(cfg.Scorer, synonyms),
		cfg:      cfg,
		log:      logger.OrNop(log),
	}
}

// Search returns at most k matches above the active threshold.
func (s *Searcher) Search(ctx context.Context, criterion string, k int, opts domain.SearchOptions) ([]domain.Match, error) {
	criterion = strings.TrimSpace(criterion)
	if criterion == "" {
		return nil, fmt.Errorf("%w: criterion is blank", domain.ErrInvalidInput)
	}
	if s.index == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if k <= 0 {
		k = DefaultTopK
	}

	s.log.Section("Search")
	s.log.Debug("Criterion: %q, k=%d", criterion, k)

	stats := s.index.Stats()
	if stats.Live == 0 {
		s.log.Debug("Index is empty")
		return []domain.Match{}, nil
	}

	query, err := s.embedder.Embed(ctx, criterion)
	if err != nil {
		return nil, fmt.Errorf("embed criterion: %w", err)
	}
	if len(query) != s.index.Dimension() {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrDimensionMismatch, len(query), s.index.Dimension())
	}

	pool := k * s.cfg.Oversample
	if !opts.Filter.IsZero() {
		pool *= filterOversample
	}
	hits, err := s.index.Search(ctx, query, pool)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	threshold := s.threshold(opts, stats)
	s.log.Debug("Candidates: %d (pool %d), threshold %.2f", len(hits), pool, threshold)

	scored := make([]scoredEntry, 0, len(hits))
	for _, hit := range hits {
		entry, ok := s.index.Entry(hit.ID)
		if !ok || entry.Tombstoned || !opts.Filter.Matches(entry.Metadata) {
			continue
		}
		vec, ok := s.index.Vector(hit.ID)
		if !ok {
			continue
		}
		score, err := s.scorer.Score(ScoreInput{
			Criterion:       criterion,
			Candidate:       entry.Metadata.Text,
			CriterionVector: query,
			CandidateVector: vec,
		})
		if err != nil {
			s.log.Debug("Dropping candidate %d: %v", hit.ID, err)
			continue
		}
		if score.Value < threshold {
			continue
		}
		scored = append(scored, scoredEntry{entry: entry, score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score.Exact != scored[j].score.Exact {
			return scored[i].score.Exact
		}
		if scored[i].score.Value != scored[j].score.Value {
			return scored[i].score.Value > scored[j].score.Value
		}
		return scored[i].entry.ID < scored[j].entry.ID
	})
	if len(scored) > k {
		scored = scored[:k]
	}

	matches := make([]domain.Match, len(scored))
	for i, sc := range scored {
		matches[i] = s.hydrate(criterion, sc)
	}
	s.log.Debug("Matches: %d", len(matches))
	return matches, nil
}

// SearchRequirement searches the criterion and falls back to the description
// when nothing passes the threshold.
func (s *Searcher) SearchRequirement(
	ctx context.Context, req domain.Requirement, k int, filter *domain.Filter,
) (domain.QueryResult, error) {
	opts := domain.SearchOptions{Filter: filter, Category: req.Category}

	matches, err := s.Search(ctx, req.Criterion, k, opts)
	if err != nil {
		return domain.QueryResult{}, err
	}

	desc := strings.TrimSpace(req.Description)
	if len(matches) == 0 && desc != "" && !strings.EqualFold(desc, strings.TrimSpace(req.Criterion)) {
		s.log.Debug("No matches for %q, trying description", req.Criterion)
		matches, err = s.Search(ctx, desc, k, opts)
		if err != nil {
			return domain.QueryResult{}, err
		}
		for i := range matches {
			if v := ExtractValue(req.Criterion, matches[i].Text); v != "" {
				matches[i].Value = v
			}
		}
	}

	result := domain.NewQueryResult(req.Criterion, matches, nil)
	result.Category = req.Category
	return result, nil
}

func (s *Searcher) threshold(opts domain.SearchOptions, stats domain.IndexStats) float64 {
	if opts.Threshold != nil {
		return *opts.Threshold
	}
	category := opts.Category
	if category == "" && opts.Filter != nil {
		category = opts.Filter.Category
	}
	return NewThresholdPolicy(s.cfg.Scorer, stats).For(category)
}

// hydrate turns a scored entry into a match with value and page context.
func (s *Searcher) hydrate(criterion string, sc scoredEntry) domain.Match {
	meta := sc.entry.Metadata
	m := domain.Match{
		ID:           sc.entry.ID,
		Text:         meta.Text,
		Source:       meta.SourceID,
		DocumentName: meta.DocumentName,
		Page:         meta.Page,
		Similarity:   sc.score.Value,
		Exact:        sc.score.Exact,
		Value:        ExtractValue(criterion, meta.Text),
		Category:     meta.Category,
	}
	prev, next := s.index.Neighbours(sc.entry.ID, 1, 1)
	if len(prev) > 0 {
		m.ContextBefore = prev[len(prev)-1].Metadata.Text
	}
	if len(next) > 0 {
		m.ContextAfter = next[0].Metadata.Text
	}
	return m
}
