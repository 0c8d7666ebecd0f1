package cli

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

func emissionsMatch() domain.Match {
	return domain.Match{
		ID:            7,
		Text:          "Total Scope 1 emissions were 1,200 tCO2e in 2024.",
		Source:        "/reports/acme-2024.pdf",
		DocumentName:  "acme-2024.pdf",
		Page:          12,
		Similarity:    0.41,
		Value:         "1,200 tCO2e",
		ContextBefore: "Our climate strategy is set out below.",
	}
}

func TestSearchCmd_Use(t *testing.T) {
	assert.Equal(t, "search [criterion]", searchCmd.Use)
}

func TestSearchCmd_Short(t *testing.T) {
	assert.Equal(t, "Search for passages disclosing a criterion", searchCmd.Short)
}

func TestSearchCmd_RequiresExactlyOneArg(t *testing.T) {
	setupTestConfig(t)

	_, err := execute(t, "search")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestSearchCmd_HasLimitFlag(t *testing.T) {
	flag := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "limit flag should exist")
	assert.Equal(t, "n", flag.Shorthand)
	assert.Equal(t, "5", flag.DefValue)
}

func TestSearchCmd_PrintsMatches(t *testing.T) {
	env := setupTestConfig(t)
	env.searcher.matches["emissions reporting"] = []domain.Match{emissionsMatch()}

	out, err := execute(t, "search", "emissions reporting")

	require.NoError(t, err)
	assert.Contains(t, out, "Results:")
	assert.Contains(t, out, "[1] acme-2024.pdf, page 12 (0.41)")
	assert.Contains(t, out, "Value: 1,200 tCO2e")
	assert.Contains(t, out, "... Our climate strategy is set out below.")
	assert.Contains(t, out, "Total Scope 1 emissions were 1,200 tCO2e in 2024.")
	assert.Equal(t, 5, env.searcher.lastK)
	assert.Nil(t, env.searcher.lastOpts.Filter)
	assert.Nil(t, env.searcher.lastOpts.Threshold)
}

func TestSearchCmd_MarksExactMatches(t *testing.T) {
	env := setupTestConfig(t)
	m := emissionsMatch()
	m.Exact = true
	env.searcher.matches["Scope 1 emissions"] = []domain.Match{m}

	out, err := execute(t, "search", "Scope 1 emissions")

	require.NoError(t, err)
	assert.Contains(t, out, "(0.41) [exact]")
}

func TestSearchCmd_NoResults(t *testing.T) {
	setupTestConfig(t)

	out, err := execute(t, "search", "board diversity")

	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}

func TestSearchCmd_PassesOptions(t *testing.T) {
	env := setupTestConfig(t)

	_, err := execute(t, "search", "water usage",
		"-n", "3", "--category", "Environmental", "--source", "acme-2024.pdf", "--threshold", "0.5")

	require.NoError(t, err)
	assert.Equal(t, 3, env.searcher.lastK)
	assert.Equal(t, "Environmental", env.searcher.lastOpts.Category)
	require.NotNil(t, env.searcher.lastOpts.Filter)
	assert.Equal(t, "acme-2024.pdf", env.searcher.lastOpts.Filter.Source)
	require.NotNil(t, env.searcher.lastOpts.Threshold)
	assert.InDelta(t, 0.5, *env.searcher.lastOpts.Threshold, 1e-9)
}

func TestSearchCmd_ZeroThresholdIsAnOverride(t *testing.T) {
	env := setupTestConfig(t)

	_, err := execute(t, "search", "water usage", "--threshold", "0")

	require.NoError(t, err)
	require.NotNil(t, env.searcher.lastOpts.Threshold)
	assert.Zero(t, *env.searcher.lastOpts.Threshold)
}

func TestSearchCmd_RejectsThresholdAboveOne(t *testing.T) {
	env := setupTestConfig(t)

	_, err := execute(t, "search", "water usage", "--threshold", "1.5")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, env.searcher.searchCalls)
}

func TestSearchCmd_JSON(t *testing.T) {
	env := setupTestConfig(t)
	env.searcher.matches["emissions reporting"] = []domain.Match{emissionsMatch()}

	out, err := execute(t, "search", "emissions reporting", "--json")

	require.NoError(t, err)
	var result domain.QueryResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "emissions reporting", result.Criterion)
	assert.Equal(t, domain.QueryMatched, result.Status)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "1,200 tCO2e", result.Matches[0].Value)
}

func TestSearchCmd_JSONEmptyResult(t *testing.T) {
	setupTestConfig(t)

	out, err := execute(t, "search", "board diversity", "--json")

	require.NoError(t, err)
	assert.Contains(t, out, `"status": "empty"`)
	assert.Contains(t, out, `"matches": []`)
}

func TestSearchCmd_SearchError(t *testing.T) {
	env := setupTestConfig(t)
	env.searcher.err = errors.New("embedding failed")

	_, err := execute(t, "search", "water usage")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "search failed")
}

func TestSearchCmd_CollectionWithoutSearcher(t *testing.T) {
	env := setupTestConfig(t)
	env.config.Collections[domain.SourceStandard].Searcher = nil

	_, err := execute(t, "search", "water usage", "--kind", "standard")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "search service not configured")
}
