package mcp

import (
	"context"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

// mockSearcher is a mock implementation of driving.RetrievalSearcher.
type mockSearcher struct {
	matches []domain.Match
	err     error

	lastCriterion string
	lastK         int
	lastOpts      domain.SearchOptions
}

func (m *mockSearcher) Search(
	_ context.Context,
	criterion string,
	k int,
	opts domain.SearchOptions,
) ([]domain.Match, error) {
	m.lastCriterion = criterion
	m.lastK = k
	m.lastOpts = opts
	return m.matches, m.err
}

func (m *mockSearcher) SearchRequirement(
	_ context.Context,
	req domain.Requirement,
	_ int,
	_ *domain.Filter,
) (domain.QueryResult, error) {
	return domain.NewQueryResult(req.Criterion, m.matches, m.err), m.err
}

// mockIndex is a mock IndexReader.
type mockIndex struct {
	entries []domain.IndexEntry
	stats   domain.IndexStats
}

func (m *mockIndex) Entry(id int) (domain.IndexEntry, bool) {
	if id < 0 || id >= len(m.entries) {
		return domain.IndexEntry{}, false
	}
	return m.entries[id], true
}

func (m *mockIndex) Stats() domain.IndexStats {
	return m.stats
}
