package services

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
)

// --- Mock implementations shared by service tests ---

// mockVectorIndex is an in-memory brute-force index using squared L2.
type mockVectorIndex struct {
	mu        sync.RWMutex
	dim       int
	vectors   [][]float32
	entries   []domain.IndexEntry
	addErr    error
	failAddAt int // 1-based Add call that fails with addErr; 0 means every call
	addCalls  int
	compacted int
}

func newMockVectorIndex(dim int) *mockVectorIndex {
	return &mockVectorIndex{dim: dim}
}

func (m *mockVectorIndex) Add(_ context.Context, vectors [][]float32, records []domain.EntryMetadata) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addCalls++
	if m.addErr != nil && (m.failAddAt == 0 || m.failAddAt == m.addCalls) {
		return nil, m.addErr
	}
	if len(vectors) != len(records) {
		return nil, domain.ErrDimensionMismatch
	}
	for _, v := range vectors {
		if len(v) != m.dim {
			return nil, domain.ErrDimensionMismatch
		}
	}
	ids := make([]int, len(vectors))
	for i := range vectors {
		id := len(m.entries)
		m.vectors = append(m.vectors, vectors[i])
		m.entries = append(m.entries, domain.IndexEntry{ID: id, Metadata: records[i]})
		ids[i] = id
	}
	return ids, nil
}

func (m *mockVectorIndex) Search(_ context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(query) != m.dim {
		return nil, domain.ErrDimensionMismatch
	}
	var hits []driven.VectorHit
	for i, v := range m.vectors {
		if m.entries[i].Tombstoned {
			continue
		}
		var d float64
		for j := range v {
			diff := float64(v[j] - query[j])
			d += diff * diff
		}
		hits = append(hits, driven.VectorHit{ID: i, Distance: d})
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return hits[a].ID < hits[b].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *mockVectorIndex) Entry(id int) (domain.IndexEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id < 0 || id >= len(m.entries) {
		return domain.IndexEntry{}, false
	}
	return m.entries[id], true
}

func (m *mockVectorIndex) Vector(id int) ([]float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id < 0 || id >= len(m.vectors) {
		return nil, false
	}
	return m.vectors[id], true
}

func (m *mockVectorIndex) Neighbours(id, before, after int) (prev, next []domain.IndexEntry) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id < 0 || id >= len(m.entries) {
		return nil, nil
	}
	base := m.entries[id].Metadata
	same := func(e domain.IndexEntry) bool {
		return !e.Tombstoned && e.Metadata.SourceID == base.SourceID && e.Metadata.Page == base.Page
	}
	for i := id - 1; i >= 0 && len(prev) < before; i-- {
		if same(m.entries[i]) {
			prev = append([]domain.IndexEntry{m.entries[i]}, prev...)
		}
	}
	for i := id + 1; i < len(m.entries) && len(next) < after; i++ {
		if same(m.entries[i]) {
			next = append(next, m.entries[i])
		}
	}
	return prev, next
}

func (m *mockVectorIndex) CountBySource(source string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		if !e.Tombstoned && e.Metadata.SourceID == source {
			n++
		}
	}
	return n
}

func (m *mockVectorIndex) Tombstone(_ context.Context, source string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.entries {
		if !m.entries[i].Tombstoned && m.entries[i].Metadata.SourceID == source {
			m.entries[i].Tombstoned = true
			n++
		}
	}
	return n, nil
}

func (m *mockVectorIndex) TombstoneStale(_ context.Context, source, keepRunID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.entries {
		e := &m.entries[i]
		if !e.Tombstoned && e.Metadata.SourceID == source && e.Metadata.RunID != keepRunID {
			e.Tombstoned = true
			n++
		}
	}
	return n, nil
}

func (m *mockVectorIndex) Compact(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var vectors [][]float32
	var entries []domain.IndexEntry
	for i, e := range m.entries {
		if e.Tombstoned {
			continue
		}
		e.ID = len(entries)
		entries = append(entries, e)
		vectors = append(vectors, m.vectors[i])
	}
	m.compacted++
	m.vectors, m.entries = vectors, entries
	return nil
}

func (m *mockVectorIndex) Stats() domain.IndexStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := domain.IndexStats{Dimension: m.dim, Metric: "l2", Total: len(m.entries), Categories: map[string]int{}}
	sources := map[string]struct{}{}
	for _, e := range m.entries {
		if e.Tombstoned {
			continue
		}
		stats.Live++
		sources[e.Metadata.SourceID] = struct{}{}
		if e.Metadata.Category != "" {
			stats.Categories[e.Metadata.Category]++
		}
	}
	stats.Sources = len(sources)
	return stats
}

func (m *mockVectorIndex) Dimension() int { return m.dim }

func (m *mockVectorIndex) Close() error { return nil }

func (m *mockVectorIndex) live() int {
	return m.Stats().Live
}

// mockEmbedder derives vectors from text with a function.
type mockEmbedder struct {
	mu         sync.Mutex
	dim        int
	vec        func(text string) []float32
	embedErr   error
	batchErr   error
	failBatch  int // 1-based EmbedBatch call that fails; 0 means every call
	embedCalls int
	batchCalls int
	batchSizes []int
}

func newMockEmbedder(dim int, vec func(string) []float32) *mockEmbedder {
	return &mockEmbedder{dim: dim, vec: vec}
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedCalls++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return m.vec(text), nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	m.batchSizes = append(m.batchSizes, len(texts))
	if m.batchErr != nil && (m.failBatch == 0 || m.failBatch == m.batchCalls) {
		return nil, m.batchErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vec(t)
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int              { return m.dim }
func (m *mockEmbedder) ModelName() string            { return "mock" }
func (m *mockEmbedder) Ping(_ context.Context) error { return nil }
func (m *mockEmbedder) Close() error                 { return nil }

// letterVector embeds text as normalised counts of the letters a to h.
// Texts sharing words land close together.
func letterVector(text string) []float32 {
	v := make([]float32, 8)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'h' {
			v[r-'a']++
		}
	}
	var n float64
	for _, x := range v {
		n += float64(x * x)
	}
	if n > 0 {
		for i := range v {
			v[i] = float32(float64(v[i]) / math.Sqrt(n))
		}
	}
	return v
}

// mockExtractors serves pages from a map keyed by base name. Files not in the
// map are read as a single page of their content.
type mockExtractors struct {
	mu    sync.Mutex
	pages map[string][]domain.Page
	errs  map[string]error
	calls map[string]int
}

func newMockExtractors() *mockExtractors {
	return &mockExtractors{
		pages: map[string][]domain.Page{},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (m *mockExtractors) Extract(_ context.Context, path string) ([]domain.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := filepath.Base(path)
	m.calls[name]++
	if err := m.errs[name]; err != nil {
		return nil, err
	}
	return m.pages[name], nil
}

func (m *mockExtractors) Supports(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".txt" || ext == ".pdf"
}

func (m *mockExtractors) Extensions() []string { return []string{".pdf", ".txt"} }

func (m *mockExtractors) callCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// lineSegmenter makes one paragraph unit per non-empty line.
type lineSegmenter struct{}

func (lineSegmenter) Segment(sourceID string, pages []domain.Page) []domain.TextUnit {
	var units []domain.TextUnit
	for _, p := range pages {
		for _, line := range strings.Split(p.Text, "\n") {
			if line = strings.TrimSpace(line); line == "" {
				continue
			}
			units = append(units, domain.TextUnit{
				SourceID:  sourceID,
				Page:      p.Number,
				UnitIndex: len(units),
				Text:      line,
				Kind:      domain.UnitParagraph,
			})
		}
	}
	return units
}

// mockSynonyms is a fixed synonym table.
type mockSynonyms map[string][]string

func (m mockSynonyms) Related(word string) []string { return m[strings.ToLower(word)] }
func (m mockSynonyms) Len() int                     { return len(m) }

// mockSampler returns a fixed sample.
type mockSampler struct {
	mu     sync.Mutex
	sample domain.ResourceSample
	err    error
	calls  int
}

func (m *mockSampler) Sample(_ context.Context) (domain.ResourceSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.sample, m.err
}

var errBoom = errors.New("boom")

// Ensure mocks implement interfaces
var (
	_ driven.VectorIndex       = (*mockVectorIndex)(nil)
	_ driven.EmbeddingService  = (*mockEmbedder)(nil)
	_ driven.ExtractorRegistry = (*mockExtractors)(nil)
	_ driven.Segmenter         = lineSegmenter{}
	_ driven.SynonymTable      = mockSynonyms{}
	_ driven.ResourceSampler   = (*mockSampler)(nil)
)
