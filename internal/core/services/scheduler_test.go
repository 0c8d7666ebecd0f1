package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
	"github.com/custodia-labs/esgrag/internal/core/ports/driving"
)

// --- Mock implementations for scheduler testing ---

// mockSchedulerStore implements driven.SchedulerStore for testing.
type mockSchedulerStore struct {
	mu       sync.RWMutex
	tasks    map[string]*domain.ScheduledTask
	results  map[string][]domain.TaskResult
	saveErr  error
	listErr  error
	getErr   error
	pruneErr error
}

func newMockSchedulerStore() *mockSchedulerStore {
	return &mockSchedulerStore{
		tasks:   make(map[string]*domain.ScheduledTask),
		results: make(map[string][]domain.TaskResult),
	}
}

func (m *mockSchedulerStore) GetTask(_ context.Context, taskID string) (*domain.ScheduledTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	task, exists := m.tasks[taskID]
	if !exists {
		return nil, nil
	}
	// Return a copy
	taskCopy := *task
	return &taskCopy, nil
}

func (m *mockSchedulerStore) ListTasks(_ context.Context) ([]domain.ScheduledTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	tasks := make([]domain.ScheduledTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

func (m *mockSchedulerStore) SaveTask(_ context.Context, task *domain.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if task == nil {
		return domain.ErrInvalidInput
	}
	taskCopy := *task
	m.tasks[task.ID] = &taskCopy
	return nil
}

func (m *mockSchedulerStore) DeleteTask(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
	return nil
}

func (m *mockSchedulerStore) RecordResult(_ context.Context, result *domain.TaskResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if result == nil {
		return domain.ErrInvalidInput
	}
	m.results[result.TaskID] = append(m.results[result.TaskID], *result)
	return nil
}

func (m *mockSchedulerStore) GetTaskHistory(_ context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := m.results[taskID]
	if len(results) > limit {
		results = results[len(results)-limit:]
	}
	return results, nil
}

func (m *mockSchedulerStore) PruneHistory(_ context.Context, _ int) error {
	return m.pruneErr
}

// mockCorpusIndexer implements driving.CorpusIndexer for testing.
type mockCorpusIndexer struct {
	mu      sync.Mutex
	paths   []string
	reports map[string]*driving.IndexReport
	err     error
	block   chan struct{}
}

func (m *mockCorpusIndexer) IndexPath(_ context.Context, path string, _ driving.IndexOptions) (*driving.IndexReport, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, path)
	if r, ok := m.reports[path]; ok {
		return r, m.err
	}
	return &driving.IndexReport{}, m.err
}

func (m *mockCorpusIndexer) IndexFile(ctx context.Context, path string, opts driving.IndexOptions) (*driving.IndexReport, error) {
	return m.IndexPath(ctx, path, opts)
}

func (m *mockCorpusIndexer) IndexRequirements(
	_ context.Context, _ string, _ []domain.Requirement,
) (*driving.IndexReport, error) {
	return &driving.IndexReport{}, nil
}

func (m *mockCorpusIndexer) RemoveSource(_ context.Context, _ string) error { return nil }

func (m *mockCorpusIndexer) indexed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.paths...)
}

// Ensure mocks implement interfaces
var _ driven.SchedulerStore = (*mockSchedulerStore)(nil)
var _ driving.CorpusIndexer = (*mockCorpusIndexer)(nil)

// ==================== Scheduler Tests ====================

func TestNewScheduler(t *testing.T) {
	config := domain.DefaultSchedulerConfig()
	store := newMockSchedulerStore()

	scheduler := NewScheduler(config, store, SchedulerTargets{}, nil)

	require.NotNil(t, scheduler)
	assert.Equal(t, config.Enabled, scheduler.config.Enabled)
}

func TestScheduler_StartStop(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), SchedulerTargets{}, nil)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = scheduler.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	cancel()
	err := scheduler.Stop()
	require.NoError(t, err)

	wg.Wait()
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), SchedulerTargets{}, nil)

	err := scheduler.Stop()
	require.NoError(t, err)
}

func TestScheduler_DoubleStart(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), SchedulerTargets{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = scheduler.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	// Already running: returns at once.
	err := scheduler.Start(context.Background())
	assert.NoError(t, err)

	cancel()
	scheduler.Stop() //nolint:errcheck
	wg.Wait()
}

func TestScheduler_InitialiseTasks(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, SchedulerTargets{}, nil)
	ctx := context.Background()

	err := scheduler.initialiseTasks(ctx)
	require.NoError(t, err)

	reindex, err := store.GetTask(ctx, domain.TaskIDCorpusReindex)
	require.NoError(t, err)
	require.NotNil(t, reindex)
	assert.Equal(t, "Corpus Re-index", reindex.Name)
	assert.Equal(t, time.Hour, reindex.Interval)
	assert.True(t, reindex.Enabled)

	compact, err := store.GetTask(ctx, domain.TaskIDIndexCompact)
	require.NoError(t, err)
	require.NotNil(t, compact)
	assert.Equal(t, 24*time.Hour, compact.Interval)
}

func TestScheduler_InitialiseTasks_SkipsDisabled(t *testing.T) {
	config := domain.DefaultSchedulerConfig()
	config.TaskConfigs[domain.TaskIDIndexCompact] = domain.TaskConfig{Enabled: false, Interval: time.Hour}
	store := newMockSchedulerStore()
	scheduler := NewScheduler(config, store, SchedulerTargets{}, nil)
	ctx := context.Background()

	require.NoError(t, scheduler.initialiseTasks(ctx))

	task, err := store.GetTask(ctx, domain.TaskIDIndexCompact)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestScheduler_InitialiseTasks_StoreError(t *testing.T) {
	store := newMockSchedulerStore()
	store.getErr = errBoom
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, SchedulerTargets{}, nil)

	err := scheduler.initialiseTasks(context.Background())

	require.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), domain.TaskIDCorpusReindex)
}

func TestScheduler_EnsureTask_UpdateInterval(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, SchedulerTargets{}, nil)
	ctx := context.Background()

	taskCfg := domain.TaskConfig{Enabled: true, Interval: time.Hour}
	require.NoError(t, scheduler.ensureTask(ctx, "test-task", "Test Task", taskCfg))

	taskCfg.Interval = 2 * time.Hour
	require.NoError(t, scheduler.ensureTask(ctx, "test-task", "Test Task", taskCfg))

	task, err := store.GetTask(ctx, "test-task")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, task.Interval)
}

func TestScheduler_RunCorpusReindex(t *testing.T) {
	indexer := &mockCorpusIndexer{reports: map[string]*driving.IndexReport{
		"/corpus/standards": {Indexed: 2, Skipped: 4, EntriesAdded: 30},
		"/corpus/reports": {
			Indexed:      1,
			Failed:       []driving.FailedSource{{Path: "/corpus/reports/bad.pdf", Error: "extraction failed"}},
			EntriesAdded: 12,
			Tombstoned:   9,
		},
	}}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), SchedulerTargets{
		Indexer:     indexer,
		Directories: []string{"/corpus/standards", "/corpus/reports"},
	}, nil)

	var result domain.TaskResult
	err := scheduler.runCorpusReindex(context.Background(), &result)

	assert.Equal(t, domain.TaskResult{
		ItemsProcessed:    3,
		SourcesIndexed:    3,
		SourcesSkipped:    4,
		SourcesFailed:     1,
		EntriesAdded:      42,
		EntriesTombstoned: 9,
	}, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.pdf")
	assert.Equal(t, []string{"/corpus/standards", "/corpus/reports"}, indexer.indexed())
}

func TestScheduler_RunCorpusReindex_NilIndexer(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), SchedulerTargets{}, nil)

	var result domain.TaskResult
	err := scheduler.runCorpusReindex(context.Background(), &result)

	require.NoError(t, err)
	assert.Zero(t, result)
}

func TestScheduler_RunIndexCompact(t *testing.T) {
	dirty := newMockVectorIndex(8)
	seedIndex(t, dirty, letterVector,
		passage("/r/a.pdf", 1, "water"),
		passage("/r/a.pdf", 1, "energy"),
		passage("/r/b.pdf", 1, "board"),
	)
	_, err := dirty.Tombstone(context.Background(), "/r/a.pdf")
	require.NoError(t, err)
	clean := newMockVectorIndex(8)
	seedIndex(t, clean, letterVector, passage("/r/c.pdf", 1, "waste"))

	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), SchedulerTargets{
		Indexes: []driven.VectorIndex{dirty, clean},
	}, nil)

	n, err := scheduler.runIndexCompact(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, dirty.compacted)
	assert.Zero(t, clean.compacted)
	assert.Equal(t, 1, dirty.Stats().Total)
}

func TestScheduler_CheckAndRunDueTasks(t *testing.T) {
	store := newMockSchedulerStore()
	indexer := &mockCorpusIndexer{}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, SchedulerTargets{
		Indexer:     indexer,
		Directories: []string{"/corpus"},
	}, nil)
	ctx := context.Background()

	due := &domain.ScheduledTask{
		ID:       domain.TaskIDCorpusReindex,
		Name:     "Corpus Re-index",
		Interval: time.Hour,
		NextRun:  time.Now().Add(-time.Minute),
		Enabled:  true,
	}
	require.NoError(t, store.SaveTask(ctx, due))

	scheduler.checkAndRunDueTasks(ctx)
	scheduler.wg.Wait()

	assert.Equal(t, []string{"/corpus"}, indexer.indexed())

	task, err := store.GetTask(ctx, domain.TaskIDCorpusReindex)
	require.NoError(t, err)
	assert.True(t, task.NextRun.After(time.Now()))
	assert.Empty(t, task.LastError)

	history, err := store.GetTaskHistory(ctx, domain.TaskIDCorpusReindex, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)
}

func TestScheduler_CheckAndRunDueTasks_RecordsFailure(t *testing.T) {
	store := newMockSchedulerStore()
	indexer := &mockCorpusIndexer{err: errBoom}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, SchedulerTargets{
		Indexer:     indexer,
		Directories: []string{"/corpus"},
	}, nil)
	ctx := context.Background()
	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{
		ID:       domain.TaskIDCorpusReindex,
		Interval: time.Hour,
		Enabled:  true,
	}))

	scheduler.checkAndRunDueTasks(ctx)
	scheduler.wg.Wait()

	task, err := store.GetTask(ctx, domain.TaskIDCorpusReindex)
	require.NoError(t, err)
	assert.Contains(t, task.LastError, "boom")
	history, err := store.GetTaskHistory(ctx, domain.TaskIDCorpusReindex, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)
}

func TestScheduler_RecordsReindexOutcome(t *testing.T) {
	store := newMockSchedulerStore()
	indexer := &mockCorpusIndexer{reports: map[string]*driving.IndexReport{
		"/corpus": {
			Indexed:      2,
			Skipped:      5,
			Failed:       []driving.FailedSource{{Path: "/corpus/scan.pdf", Error: "no text layer"}},
			EntriesAdded: 64,
			Tombstoned:   40,
		},
	}}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, SchedulerTargets{
		Indexer:     indexer,
		Directories: []string{"/corpus"},
	}, nil)
	ctx := context.Background()
	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{
		ID:       domain.TaskIDCorpusReindex,
		Interval: time.Hour,
		Enabled:  true,
	}))

	scheduler.checkAndRunDueTasks(ctx)
	scheduler.wg.Wait()

	history, err := store.GetTaskHistory(ctx, domain.TaskIDCorpusReindex, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	got := history[0]
	assert.False(t, got.Success)
	assert.Contains(t, got.Error, "scan.pdf")
	assert.Equal(t, 2, got.SourcesIndexed)
	assert.Equal(t, 5, got.SourcesSkipped)
	assert.Equal(t, 1, got.SourcesFailed)
	assert.Equal(t, 64, got.EntriesAdded)
	assert.Equal(t, 40, got.EntriesTombstoned)
}

func TestScheduler_DoesNotOverlapRuns(t *testing.T) {
	store := newMockSchedulerStore()
	indexer := &mockCorpusIndexer{block: make(chan struct{})}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, SchedulerTargets{
		Indexer:     indexer,
		Directories: []string{"/corpus"},
	}, nil)
	ctx := context.Background()
	task := &domain.ScheduledTask{ID: domain.TaskIDCorpusReindex, Interval: time.Hour, Enabled: true}

	scheduler.runTask(ctx, task)
	scheduler.runTask(ctx, task)
	close(indexer.block)
	scheduler.wg.Wait()

	assert.Len(t, indexer.indexed(), 1)
}

func TestScheduler_RunTask_UnknownTaskID(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), SchedulerTargets{}, nil)

	task := &domain.ScheduledTask{
		ID:      "unknown-task",
		Name:    "Unknown",
		Enabled: true,
	}

	// Logs and returns.
	scheduler.runTask(context.Background(), task)
	scheduler.wg.Wait()
}

func TestScheduler_DisabledRunsNothing(t *testing.T) {
	config := domain.DefaultSchedulerConfig()
	config.Enabled = false
	store := newMockSchedulerStore()
	indexer := &mockCorpusIndexer{}
	scheduler := NewScheduler(config, store, SchedulerTargets{Indexer: indexer, Directories: []string{"/corpus"}}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := scheduler.Start(ctx)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, indexer.indexed())
	tasks, err := store.ListTasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
