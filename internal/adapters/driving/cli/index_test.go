package cli

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driving"
)

func TestIndexCmd_Use(t *testing.T) {
	assert.Equal(t, "index [path]", indexCmd.Use)
}

func TestIndexCmd_RequiresExactlyOneArg(t *testing.T) {
	setupTestConfig(t)

	_, err := execute(t, "index")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestIndexCmd_Flags(t *testing.T) {
	tests := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{name: "kind", shorthand: "k", defValue: "report"},
		{name: "category", shorthand: "c", defValue: ""},
		{name: "force", shorthand: "f", defValue: "false"},
		{name: "batch-size", defValue: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := indexCmd.Flags().Lookup(tt.name)
			require.NotNil(t, flag)
			assert.Equal(t, tt.shorthand, flag.Shorthand)
			assert.Equal(t, tt.defValue, flag.DefValue)
		})
	}
}

func TestIndexCmd_IndexesIntoReportCollection(t *testing.T) {
	env := setupTestConfig(t)
	env.reportIndexer.report = &driving.IndexReport{
		RunID:        "run-1",
		Indexed:      2,
		Skipped:      1,
		EntriesAdded: 14,
		Tombstoned:   3,
	}

	out, err := execute(t, "index", "reports", "--category", "Environmental", "--force", "--batch-size", "8")

	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 2 source(s), skipped 1 unchanged, 0 failed.")
	assert.Contains(t, out, "Entries added: 14, tombstoned: 3")
	require.Len(t, env.reportIndexer.opts, 1)
	assert.Equal(t, "reports", env.reportIndexer.paths[0])
	assert.Equal(t, driving.IndexOptions{
		Kind:      domain.SourceReport,
		Category:  "Environmental",
		BatchSize: 8,
		Force:     true,
	}, env.reportIndexer.opts[0])
}

func TestIndexCmd_StandardKind(t *testing.T) {
	env := setupTestConfig(t)
	standards := env.config.Collections[domain.SourceStandard].Indexer.(*mockIndexer)

	_, err := execute(t, "index", "standards", "--kind", "standard")

	require.NoError(t, err)
	assert.Equal(t, []string{"standards"}, standards.paths)
	assert.Empty(t, env.reportIndexer.paths)
}

func TestIndexCmd_ListsFailures(t *testing.T) {
	env := setupTestConfig(t)
	env.reportIndexer.report = &driving.IndexReport{
		Indexed: 1,
		Failed:  []driving.FailedSource{{Path: "/r/broken.pdf", Error: "extraction failed: not a pdf"}},
	}

	out, err := execute(t, "index", "reports")

	require.NoError(t, err)
	assert.Contains(t, out, "1 failed")
	assert.Contains(t, out, "FAILED /r/broken.pdf: extraction failed: not a pdf")
}

func TestIndexCmd_ReportsIndexerError(t *testing.T) {
	env := setupTestConfig(t)
	env.reportIndexer.err = domain.ErrDimensionMismatch

	_, err := execute(t, "index", "reports")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "indexing failed")
}

func TestIndexCmd_RejectsRequirementKind(t *testing.T) {
	setupTestConfig(t)

	_, err := execute(t, "index", "reqs.csv", "--kind", "requirement")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "index requirements")
}

func TestIndexCmd_UnknownKind(t *testing.T) {
	setupTestConfig(t)

	_, err := execute(t, "index", "x", "--kind", "memo")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIndexCmd_NotConfigured(t *testing.T) {
	SetConfig(nil)
	t.Cleanup(func() { resetFlags(rootCmd) })

	_, err := execute(t, "index", "reports")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestIndexRequirementsCmd(t *testing.T) {
	env := setupTestConfig(t)
	env.requirements.reqs = []domain.Requirement{
		{Category: "Environmental", Criterion: "Scope 1 emissions", Description: "Direct GHG emissions"},
		{Category: "Social", Criterion: "Employee turnover"},
	}
	env.reqIndexer.report = &driving.IndexReport{Indexed: 1, EntriesAdded: 2}

	out, err := execute(t, "index", "requirements", "UNCTAD_requirements.csv")

	require.NoError(t, err)
	abs, _ := filepath.Abs("UNCTAD_requirements.csv")
	assert.Equal(t, abs, env.requirements.lastPath)
	assert.Equal(t, []string{abs}, env.reqIndexer.paths)
	assert.Len(t, env.reqIndexer.reqs, 2)
	assert.Contains(t, out, "Entries added: 2")
}

func TestIndexRequirementsCmd_LoadError(t *testing.T) {
	env := setupTestConfig(t)
	env.requirements.err = errors.New("missing criterion column")

	_, err := execute(t, "index", "requirements", "bad.csv")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading requirements")
	assert.Empty(t, env.reqIndexer.paths)
}
