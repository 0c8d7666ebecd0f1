package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driving"
)

func TestWatchCmd_Use(t *testing.T) {
	assert.Equal(t, "watch [dir...]", watchCmd.Use)
}

func TestWatchCmd_IndexesChanges(t *testing.T) {
	env := setupTestConfig(t)
	env.watcher.events = []domain.ChangeEvent{
		{Path: "/w/a.txt", Op: domain.ChangeCreated, Origin: domain.OriginEvent},
		{Path: "/w/b.txt", Op: domain.ChangeModified, Origin: domain.OriginPoll},
		{Path: "/w/notes.xlsx", Op: domain.ChangeCreated, Origin: domain.OriginEvent},
		{Path: "/w/old.txt", Op: domain.ChangeRemoved, Origin: domain.OriginPoll},
	}
	env.reportIndexer.reports = map[string]*driving.IndexReport{
		"/w/a.txt":      {Indexed: 1, EntriesAdded: 3},
		"/w/b.txt":      {Skipped: 1},
		"/w/notes.xlsx": {Failed: []driving.FailedSource{{Path: "/w/notes.xlsx", Error: "unsupported type: .xlsx"}}},
	}

	out, err := execute(t, "watch", "/w", "--category", "Environmental")

	require.NoError(t, err, "cancellation ends the watch cleanly")
	assert.Equal(t, []string{"/w"}, env.watcher.dirs)
	assert.Contains(t, out, "Watching /w")
	assert.Contains(t, out, "created /w/a.txt (3 entries)")
	assert.Contains(t, out, "removed /w/old.txt")
	assert.NotContains(t, out, "b.txt", "unchanged files are silent")
	assert.NotContains(t, out, "notes.xlsx", "unsupported files are silent")
	assert.Equal(t, []string{"/w/old.txt"}, env.reportIndexer.removed)
	require.NotEmpty(t, env.reportIndexer.opts)
	assert.Equal(t, "Environmental", env.reportIndexer.opts[0].Category)
	assert.Equal(t, domain.SourceReport, env.reportIndexer.opts[0].Kind)
}

func TestWatchCmd_ReportsIndexFailures(t *testing.T) {
	env := setupTestConfig(t)
	env.watcher.events = []domain.ChangeEvent{{Path: "/w/broken.pdf", Op: domain.ChangeCreated}}
	env.reportIndexer.reports = map[string]*driving.IndexReport{
		"/w/broken.pdf": {Failed: []driving.FailedSource{{Path: "/w/broken.pdf", Error: "extraction failed: bad xref"}}},
	}

	out, err := execute(t, "watch", "/w")

	require.NoError(t, err)
	assert.Contains(t, out, "index /w/broken.pdf: extraction failed: bad xref")
}

func TestWatchCmd_UsesConfiguredDirectories(t *testing.T) {
	env := setupTestConfig(t)
	env.settings.settings.Watch.Directories = []string{"/a", "/b"}

	_, err := execute(t, "watch")

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/a", "/b"}, env.watcher.dirs)
}

func TestWatchCmd_NoDirectories(t *testing.T) {
	setupTestConfig(t)

	_, err := execute(t, "watch")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no directories to watch")
}

func TestWatchCmd_WatcherError(t *testing.T) {
	env := setupTestConfig(t)
	env.watcher.err = errors.New("permission denied")

	_, err := execute(t, "watch", "/w")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestWatchCmd_RejectsRequirementKind(t *testing.T) {
	setupTestConfig(t)

	_, err := execute(t, "watch", "/w", "--kind", "requirement")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be watched")
}

func TestWatchCmd_RunsSchedulerWhenEnabled(t *testing.T) {
	env := setupTestConfig(t)
	env.config.SchedulerConfig = domain.SchedulerConfig{Enabled: true}

	_, err := execute(t, "watch", "/w")

	require.NoError(t, err)
	env.scheduler.mu.Lock()
	defer env.scheduler.mu.Unlock()
	assert.True(t, env.scheduler.started)
	assert.True(t, env.scheduler.stopped)
}

func TestWatchCmd_SchedulerDisabled(t *testing.T) {
	env := setupTestConfig(t)

	_, err := execute(t, "watch", "/w")

	require.NoError(t, err)
	env.scheduler.mu.Lock()
	defer env.scheduler.mu.Unlock()
	assert.False(t, env.scheduler.started)
}
