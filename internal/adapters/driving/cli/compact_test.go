package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

func TestCompactCmd_AllCollections(t *testing.T) {
	env := setupTestConfig(t)
	env.reportIndex.stats = domain.IndexStats{Total: 12, Live: 9}
	env.standardIndex.stats = domain.IndexStats{Total: 5, Live: 5}

	out, err := execute(t, "compact")

	require.NoError(t, err)
	assert.Contains(t, out, "report: removed 3 tombstoned entries")
	assert.Contains(t, out, "standard: nothing to compact")
	assert.Equal(t, 1, env.reportIndex.compacted)
	assert.Equal(t, 0, env.standardIndex.compacted)
}

func TestCompactCmd_SingleKind(t *testing.T) {
	env := setupTestConfig(t)
	env.reportIndex.stats = domain.IndexStats{Total: 4, Live: 2}
	env.standardIndex.stats = domain.IndexStats{Total: 4, Live: 2}

	out, err := execute(t, "compact", "--kind", "standard")

	require.NoError(t, err)
	assert.Contains(t, out, "standard: removed 2 tombstoned entries")
	assert.NotContains(t, out, "report")
	assert.Equal(t, 0, env.reportIndex.compacted)
}

func TestCompactCmd_UnconfiguredKind(t *testing.T) {
	setupTestConfig(t)

	_, err := execute(t, "compact", "-k", "requirement")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "requirement index not configured")
}

func TestCompactCmd_InvalidKind(t *testing.T) {
	setupTestConfig(t)

	_, err := execute(t, "compact", "-k", "memo")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCompactCmd_Error(t *testing.T) {
	env := setupTestConfig(t)
	env.reportIndex.stats = domain.IndexStats{Total: 2, Live: 1}
	env.reportIndex.err = errors.New("disk full")

	_, err := execute(t, "compact")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "compacting report: disk full")
}

func TestCompactCmd_NoIndexes(t *testing.T) {
	env := setupTestConfig(t)
	env.config.Collections = nil

	_, err := execute(t, "compact")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no indexes configured")
}
