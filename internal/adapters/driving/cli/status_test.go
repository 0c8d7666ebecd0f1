package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

func TestStatusCmd_Text(t *testing.T) {
	env := setupTestConfig(t)
	env.reportIndex.stats = domain.IndexStats{
		Dimension:  512,
		Metric:     "l2",
		Total:      14,
		Live:       10,
		Sources:    2,
		Categories: map[string]int{"Social": 4, "Environmental": 6},
	}

	out, err := execute(t, "status")

	require.NoError(t, err)
	assert.Contains(t, out, "report\n")
	assert.Contains(t, out, "Entries:    10 live, 4 tombstoned")
	assert.Contains(t, out, "Sources:    2")
	assert.Contains(t, out, "Vectors:    512 dimensions, l2")
	assert.Contains(t, out, "standard\n")
	assert.NotContains(t, out, "requirement", "collections without an index are not listed")
	assert.Less(t, strings.Index(out, "Environmental"), strings.Index(out, "Social"), "categories are sorted")
}

func TestStatusCmd_JSON(t *testing.T) {
	env := setupTestConfig(t)
	env.reportIndex.stats = domain.IndexStats{Dimension: 512, Metric: "l2", Total: 3, Live: 3, Sources: 1}

	out, err := execute(t, "status", "--json")

	require.NoError(t, err)
	var statuses []collectionStatus
	require.NoError(t, json.Unmarshal([]byte(out), &statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, domain.SourceReport, statuses[0].Kind)
	assert.Equal(t, 3, statuses[0].Live)
	assert.Equal(t, domain.SourceStandard, statuses[1].Kind)
}

func TestStatusCmd_NoIndexes(t *testing.T) {
	env := setupTestConfig(t)
	env.config.Collections = nil

	out, err := execute(t, "status")

	require.NoError(t, err)
	assert.Contains(t, out, "No indexes configured.")
}
