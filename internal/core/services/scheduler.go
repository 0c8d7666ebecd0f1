package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
	"github.com/custodia-labs/esgrag/internal/core/ports/driving"
	"github.com/custodia-labs/esgrag/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// historyKeep is the number of results kept per task.
const historyKeep = 100

// SchedulerTargets is what the built-in tasks operate on.
type SchedulerTargets struct {
	// Indexer re-indexes Directories for the corpus-reindex task.
	Indexer     driving.CorpusIndexer
	Directories []string
	Options     driving.IndexOptions

	// Indexes are compacted by the index-compact task.
	Indexes []driven.VectorIndex
}

// Scheduler manages background task execution.
// It is a pure core service with no external control API.
type Scheduler struct {
	config  domain.SchedulerConfig
	store   driven.SchedulerStore
	targets SchedulerTargets
	log     *logger.Logger
	tick    time.Duration

	mu      sync.Mutex
	running bool
	active  map[string]bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler with configuration.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	targets SchedulerTargets,
	log *logger.Logger,
) *Scheduler {
	return &Scheduler{
		config:  config,
		store:   store,
		targets: targets,
		log:     logger.OrNop(log),
		tick:    time.Minute,
		active:  make(map[string]bool),
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if !s.config.Enabled {
		s.log.Info("scheduler disabled")
	} else if err := s.initialiseTasks(ctx); err != nil {
		s.log.Warn("scheduler: failed to initialise tasks: %v", err)
	}

	return s.run(ctx)
}

// Stop gracefully shuts down the scheduler and waits for running tasks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// initialiseTasks ensures all configured tasks exist in the store.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	builtin := []struct{ id, name string }{
		{domain.TaskIDCorpusReindex, "Corpus Re-index"},
		{domain.TaskIDIndexCompact, "Index Compaction"},
	}
	var errs []error
	for _, b := range builtin {
		cfg := s.config.GetTaskConfig(b.id)
		if !cfg.Enabled || cfg.Interval <= 0 {
			continue
		}
		if err := s.ensureTask(ctx, b.id, b.name, cfg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.id, err))
		}
	}
	return errors.Join(errs...)
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  time.Now().Add(cfg.Interval),
		}
	} else {
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			// Recalculate next run from now
			task.NextRun = time.Now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	if s.config.Enabled {
		s.checkAndRunDueTasks(ctx)
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			if s.config.Enabled {
				s.checkAndRunDueTasks(ctx)
			}
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		s.log.Warn("scheduler: failed to list tasks: %v", err)
		return
	}

	now := time.Now()
	for i := range tasks {
		task := tasks[i]
		if !task.Enabled {
			continue
		}
		if task.NextRun.IsZero() || !task.NextRun.After(now) {
			s.runTask(ctx, &task)
		}
	}
}

// runTask executes a single task in the background. A task still running
// from an earlier tick is not started again.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	s.mu.Lock()
	if s.active[task.ID] {
		s.mu.Unlock()
		return
	}
	s.active[task.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.active, task.ID)
			s.mu.Unlock()
		}()

		result := &domain.TaskResult{
			TaskID:    task.ID,
			StartedAt: time.Now(),
		}

		var err error
		switch task.ID {
		case domain.TaskIDCorpusReindex:
			err = s.runCorpusReindex(ctx, result)
		case domain.TaskIDIndexCompact:
			result.ItemsProcessed, err = s.runIndexCompact(ctx)
		default:
			s.log.Warn("scheduler: unknown task ID: %s", task.ID)
			return
		}

		result.EndedAt = time.Now()
		if err != nil {
			result.Error = err.Error()
			task.LastError = err.Error()
			s.log.Warn("scheduler: task %s failed: %v", task.ID, err)
		} else {
			result.Success = true
			task.LastError = ""
			task.LastSuccess = result.EndedAt
		}

		task.LastRun = result.StartedAt
		task.NextRun = result.EndedAt.Add(task.Interval)

		if saveErr := s.store.SaveTask(ctx, task); saveErr != nil {
			s.log.Warn("scheduler: failed to save task %s: %v", task.ID, saveErr)
		}
		if recordErr := s.store.RecordResult(ctx, result); recordErr != nil {
			s.log.Warn("scheduler: failed to record result for %s: %v", task.ID, recordErr)
		}
		if pruneErr := s.store.PruneHistory(ctx, historyKeep); pruneErr != nil {
			s.log.Warn("scheduler: failed to prune history: %v", pruneErr)
		}
	}()
}

// runCorpusReindex re-indexes every configured directory and adds the index
// reports into result. Unchanged sources are skipped by their fingerprints,
// so this is cheap when nothing changed.
func (s *Scheduler) runCorpusReindex(ctx context.Context, result *domain.TaskResult) error {
	if s.targets.Indexer == nil {
		return nil
	}
	var errs []error
	for _, dir := range s.targets.Directories {
		report, err := s.targets.Indexer.IndexPath(ctx, dir, s.targets.Options)
		if report != nil {
			result.SourcesIndexed += report.Indexed
			result.SourcesSkipped += report.Skipped
			result.SourcesFailed += len(report.Failed)
			result.EntriesAdded += report.EntriesAdded
			result.EntriesTombstoned += report.Tombstoned
			for _, f := range report.Failed {
				errs = append(errs, fmt.Errorf("%s: %s", f.Path, f.Error))
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dir, err))
		}
	}
	result.ItemsProcessed = result.SourcesIndexed
	if len(errs) > 0 {
		s.log.Warn("scheduler: reindex indexed %d, failed %d", result.SourcesIndexed, result.SourcesFailed)
	}
	return errors.Join(errs...)
}

// runIndexCompact drops tombstoned entries from every index.
func (s *Scheduler) runIndexCompact(ctx context.Context) (int, error) {
	compacted := 0
	var errs []error
	for _, idx := range s.targets.Indexes {
		before := idx.Stats()
		if before.Total == before.Live {
			continue
		}
		if err := idx.Compact(ctx); err != nil {
			errs = append(errs, err)
			continue
		}
		compacted += before.Total - before.Live
	}
	return compacted, errors.Join(errs...)
}
