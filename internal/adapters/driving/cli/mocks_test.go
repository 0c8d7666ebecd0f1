package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
	"github.com/custodia-labs/esgrag/internal/core/ports/driving"
	"github.com/custodia-labs/esgrag/internal/logger"
)

// mockIndex is a driven.VectorIndex that only reports stats.
type mockIndex struct {
	mu        sync.Mutex
	stats     domain.IndexStats
	compacted int
	err       error
}

func (m *mockIndex) Add(_ context.Context, _ [][]float32, _ []domain.EntryMetadata) ([]int, error) {
	return nil, nil
}

func (m *mockIndex) Search(_ context.Context, _ []float32, _ int) ([]driven.VectorHit, error) {
	return nil, nil
}

func (m *mockIndex) Entry(_ int) (domain.IndexEntry, bool) { return domain.IndexEntry{}, false }
func (m *mockIndex) Vector(_ int) ([]float32, bool)        { return nil, false }
func (m *mockIndex) CountBySource(_ string) int            { return 0 }
func (m *mockIndex) Dimension() int                        { return m.stats.Dimension }
func (m *mockIndex) Close() error                          { return nil }

func (m *mockIndex) Tombstone(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (m *mockIndex) TombstoneStale(_ context.Context, _, _ string) (int, error) {
	return 0, nil
}

func (m *mockIndex) Neighbours(_, _, _ int) (prev, next []domain.IndexEntry) {
	return nil, nil
}

func (m *mockIndex) Compact(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.compacted++
	m.stats.Total = m.stats.Live
	return nil
}

func (m *mockIndex) Stats() domain.IndexStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// mockIndexer records calls and returns a canned report.
type mockIndexer struct {
	mu      sync.Mutex
	report  *driving.IndexReport
	reports map[string]*driving.IndexReport
	err     error

	paths   []string
	opts    []driving.IndexOptions
	removed []string
	reqs    []domain.Requirement
}

func (m *mockIndexer) result(path string) (*driving.IndexReport, error) {
	if r, ok := m.reports[path]; ok {
		return r, m.err
	}
	if m.report != nil {
		return m.report, m.err
	}
	return &driving.IndexReport{}, m.err
}

func (m *mockIndexer) IndexPath(_ context.Context, path string, opts driving.IndexOptions) (*driving.IndexReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, path)
	m.opts = append(m.opts, opts)
	return m.result(path)
}

func (m *mockIndexer) IndexFile(_ context.Context, path string, opts driving.IndexOptions) (*driving.IndexReport, error) {
	return m.IndexPath(context.Background(), path, opts)
}

func (m *mockIndexer) IndexRequirements(
	_ context.Context, source string, reqs []domain.Requirement,
) (*driving.IndexReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, source)
	m.reqs = reqs
	return m.result(source)
}

func (m *mockIndexer) RemoveSource(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, path)
	return m.err
}

// mockSearcher returns matches per criterion.
type mockSearcher struct {
	mu      sync.Mutex
	matches map[string][]domain.Match
	err     error

	lastK       int
	lastOpts    domain.SearchOptions
	lastFilter  *domain.Filter
	searchCalls int
}

func (m *mockSearcher) Search(
	_ context.Context, criterion string, k int, opts domain.SearchOptions,
) ([]domain.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls++
	m.lastK = k
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.matches[criterion], nil
}

func (m *mockSearcher) SearchRequirement(
	ctx context.Context, req domain.Requirement, k int, filter *domain.Filter,
) (domain.QueryResult, error) {
	m.mu.Lock()
	m.lastFilter = filter
	m.mu.Unlock()
	matches, err := m.Search(ctx, req.Criterion, k, domain.SearchOptions{Filter: filter, Category: req.Category})
	if err != nil {
		return domain.QueryResult{}, err
	}
	res := domain.NewQueryResult(req.Criterion, matches, nil)
	res.Category = req.Category
	return res, nil
}

// mockDispatcher runs queries sequentially.
type mockDispatcher struct {
	err error
}

func (m *mockDispatcher) Dispatch(
	ctx context.Context, criteria []string, fn driving.SearchFunc,
) ([]domain.QueryResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.QueryResult, 0, len(criteria))
	for _, c := range criteria {
		matches, err := fn(ctx, c)
		out = append(out, domain.NewQueryResult(c, matches, err))
	}
	return out, nil
}

func (m *mockDispatcher) DispatchRequirements(
	ctx context.Context, reqs []domain.Requirement, fn driving.RequirementSearchFunc,
) ([]domain.QueryResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.QueryResult, 0, len(reqs))
	for _, req := range reqs {
		res, err := fn(ctx, req)
		if err != nil {
			res = domain.NewQueryResult(req.Criterion, nil, err)
		}
		out = append(out, res)
	}
	return out, nil
}

// mockAssessor marks matched results compliant and everything else as no
// evidence. Given standards results, it attaches the best standard passage
// and withdraws compliance without one.
type mockAssessor struct {
	standards []domain.QueryResult
}

func (m *mockAssessor) Assess(reqs []domain.Requirement, results, standards []domain.QueryResult) []domain.Assessment {
	m.standards = standards
	out := make([]domain.Assessment, len(reqs))
	for i, req := range reqs {
		out[i] = domain.Assessment{Requirement: req, Verdict: domain.VerdictNoEvidence, Reason: "nothing found"}
		for _, r := range results {
			if r.Criterion == req.Criterion && r.Status == domain.QueryMatched {
				out[i].Verdict = domain.VerdictCompliant
				out[i].Reason = fmt.Sprintf("Disclosed %s on page %d.", r.Matches[0].Value, r.Matches[0].Page)
			}
		}
		if standards == nil {
			continue
		}
		out[i].StandardsChecked = true
		for _, r := range standards {
			if best, ok := r.Best(); ok && r.Criterion == req.Criterion {
				out[i].Standard = &best
			}
		}
		if out[i].Standard == nil && out[i].Verdict == domain.VerdictCompliant {
			out[i].Verdict = domain.VerdictNonCompliant
			out[i].Reason = "no standard passage"
		}
	}
	return out
}

func (m *mockAssessor) Summarise(assessments []domain.Assessment) domain.AssessmentSummary {
	s := domain.AssessmentSummary{Total: len(assessments)}
	for _, as := range assessments {
		if as.Verdict == domain.VerdictCompliant {
			s.Compliant++
		} else {
			s.NoEvidence++
		}
	}
	if s.Total > 0 {
		s.ComplianceRate = float64(s.Compliant) / float64(s.Total)
	}
	return s
}

// mockRequirements returns a fixed requirement list.
type mockRequirements struct {
	reqs     []domain.Requirement
	err      error
	lastPath string
}

func (m *mockRequirements) Load(_ context.Context, path string) ([]domain.Requirement, error) {
	m.lastPath = path
	return m.reqs, m.err
}

// mockRenderer writes one line per assessment.
type mockRenderer struct {
	rendered *driven.AuditReport
}

func (m *mockRenderer) Render(_ context.Context, w io.Writer, report driven.AuditReport) error {
	m.rendered = &report
	for _, as := range report.Assessments {
		if _, err := fmt.Fprintf(w, "%s,%s\n", as.Requirement.Criterion, as.Verdict); err != nil {
			return err
		}
	}
	return nil
}

// mockWatcher delivers canned events then reports cancellation.
type mockWatcher struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
	dirs   []string
	err    error
}

func (m *mockWatcher) Watch(ctx context.Context, dir string, cb driving.ChangeCallback, _ time.Duration) error {
	m.mu.Lock()
	m.dirs = append(m.dirs, dir)
	events := m.events
	m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, ev := range events {
		cb(ctx, ev)
	}
	return context.Canceled
}

// mockScheduler blocks in Start until cancelled.
type mockScheduler struct {
	mu      sync.Mutex
	started bool
	stopped bool
}

func (m *mockScheduler) Start(ctx context.Context) error {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockScheduler) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

// mockSettings is an in-memory driving.SettingsService.
type mockSettings struct {
	settings    domain.AppSettings
	values      map[string]string
	validateErr error
	setErr      error

	provider domain.EmbeddingProvider
	model    string
	apiKey   string
}

func newMockSettings() *mockSettings {
	return &mockSettings{settings: domain.DefaultAppSettings(), values: map[string]string{}}
}

func (m *mockSettings) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettings) Save(settings *domain.AppSettings) error {
	m.settings = *settings
	return nil
}

func (m *mockSettings) SetEmbeddingProvider(provider domain.EmbeddingProvider, model, apiKey string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.provider, m.model, m.apiKey = provider, model, apiKey
	m.settings.Embedding.Provider = provider
	m.settings.Embedding.Model = model
	m.settings.Embedding.APIKey = apiKey
	return nil
}

func (m *mockSettings) Validate() error                 { return m.validateErr }
func (m *mockSettings) GetDefaults() domain.AppSettings { return domain.DefaultAppSettings() }

func (m *mockSettings) GetSchedulerConfig() domain.SchedulerConfig {
	return domain.DefaultSchedulerConfig()
}

func (m *mockSettings) Keys() []string {
	keys := []string{"embedding.api_key", "embedding.provider", "scorer.default_threshold"}
	sort.Strings(keys)
	return keys
}

func (m *mockSettings) Value(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *mockSettings) SetValue(key, raw string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = raw
	return nil
}

func newTestLogger() *logger.Logger {
	return logger.New(io.Discard, false)
}

// testEnv is the set of mocks behind appConfig in a test.
type testEnv struct {
	reportIndex      *mockIndex
	standardIndex    *mockIndex
	reportIndexer    *mockIndexer
	reqIndexer       *mockIndexer
	searcher         *mockSearcher
	standardSearcher *mockSearcher
	dispatcher       *mockDispatcher
	assessor         *mockAssessor
	requirements     *mockRequirements
	renderer         *mockRenderer
	watcher          *mockWatcher
	scheduler        *mockScheduler
	settings         *mockSettings
	config           *Config
}

// setupTestConfig installs mocks as the command configuration and resets
// every flag when the test ends.
func setupTestConfig(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		reportIndex:      &mockIndex{stats: domain.IndexStats{Dimension: 512, Metric: "l2"}},
		standardIndex:    &mockIndex{stats: domain.IndexStats{Dimension: 512, Metric: "l2"}},
		reportIndexer:    &mockIndexer{},
		reqIndexer:       &mockIndexer{},
		searcher:         &mockSearcher{matches: map[string][]domain.Match{}},
		standardSearcher: &mockSearcher{matches: map[string][]domain.Match{}},
		dispatcher:       &mockDispatcher{},
		assessor:         &mockAssessor{},
		requirements:     &mockRequirements{},
		renderer:         &mockRenderer{},
		watcher:          &mockWatcher{},
		scheduler:        &mockScheduler{},
		settings:         newMockSettings(),
	}
	env.config = &Config{
		Collections: map[domain.SourceKind]*Collection{
			domain.SourceReport: {
				Index:    env.reportIndex,
				Indexer:  env.reportIndexer,
				Searcher: env.searcher,
			},
			domain.SourceStandard: {
				Index:    env.standardIndex,
				Indexer:  &mockIndexer{},
				Searcher: env.standardSearcher,
			},
			domain.SourceRequirement: {
				Indexer: env.reqIndexer,
			},
		},
		Dispatcher:   env.dispatcher,
		Assessor:     env.assessor,
		Watcher:      env.watcher,
		Settings:     env.settings,
		Requirements: env.requirements,
		Renderer:     env.renderer,
		Scheduler:    env.scheduler,
	}
	SetConfig(env.config)
	t.Cleanup(func() {
		SetConfig(nil)
		resetFlags(rootCmd)
	})
	return env
}

// resetFlags restores every flag to its default so tests sharing rootCmd
// do not leak state into each other.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// execute runs the root command with args and returns its combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}
