package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	assert.True(t, config.Enabled)
	assert.NotNil(t, config.TaskConfigs)
	assert.Len(t, config.TaskConfigs, 2)

	reindexCfg := config.TaskConfigs[TaskIDCorpusReindex]
	assert.True(t, reindexCfg.Enabled)
	assert.Equal(t, 1*time.Hour, reindexCfg.Interval)

	compactCfg := config.TaskConfigs[TaskIDIndexCompact]
	assert.True(t, compactCfg.Enabled)
	assert.Equal(t, 24*time.Hour, compactCfg.Interval)

	assert.Equal(t, SourceReport, config.ReindexKind)
}

func TestSchedulerConfig_GetTaskConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	cfg := config.GetTaskConfig(TaskIDCorpusReindex)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 1*time.Hour, cfg.Interval)

	unknownCfg := config.GetTaskConfig("unknown-task")
	assert.False(t, unknownCfg.Enabled)
	assert.Equal(t, time.Duration(0), unknownCfg.Interval)
}

func TestSchedulerConfig_GetTaskConfig_NilMap(t *testing.T) {
	config := SchedulerConfig{
		Enabled:     true,
		TaskConfigs: nil,
	}

	cfg := config.GetTaskConfig("any-task")
	assert.False(t, cfg.Enabled)
	assert.Equal(t, time.Duration(0), cfg.Interval)
}

func TestTaskConstants(t *testing.T) {
	assert.Equal(t, "corpus-reindex", TaskIDCorpusReindex)
	assert.Equal(t, "index-compact", TaskIDIndexCompact)
}
