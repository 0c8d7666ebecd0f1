package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driving"
)

func auditRequirementsFixture() []domain.Requirement {
	return []domain.Requirement{
		{Category: "Environmental", Criterion: "Scope 1 emissions", Description: "Direct GHG emissions"},
		{Category: "Social", Criterion: "board diversity", Description: "Share of women on the board"},
	}
}

func TestAuditCmd_Use(t *testing.T) {
	assert.Equal(t, "audit [report]", auditCmd.Use)
}

func TestAuditCmd_RequiresRequirementsFlag(t *testing.T) {
	setupTestConfig(t)

	_, err := execute(t, "audit", "acme-2024.pdf")

	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "requirements" not set`)
}

func TestAuditCmd_WritesReportAndSummary(t *testing.T) {
	env := setupTestConfig(t)
	env.requirements.reqs = auditRequirementsFixture()
	env.searcher.matches["Scope 1 emissions"] = []domain.Match{emissionsMatch()}
	env.reportIndexer.report = &driving.IndexReport{Indexed: 1, EntriesAdded: 40}
	output := filepath.Join(t.TempDir(), "acme_result.csv")

	out, err := execute(t, "audit", "acme-2024.pdf", "-r", "UNCTAD_requirements.csv", "-o", output)

	require.NoError(t, err)
	reportPath, _ := filepath.Abs("acme-2024.pdf")

	// report is indexed before searching, and searches are restricted to it
	require.Len(t, env.reportIndexer.opts, 1)
	assert.Equal(t, reportPath, env.reportIndexer.paths[0])
	assert.Equal(t, domain.SourceReport, env.reportIndexer.opts[0].Kind)
	assert.Equal(t, env.requirements.reqs, env.reportIndexer.opts[0].Categories)
	require.NotNil(t, env.searcher.lastFilter)
	assert.Equal(t, reportPath, env.searcher.lastFilter.Source)
	assert.Equal(t, 5, env.searcher.lastK)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "Scope 1 emissions,Compliant\nboard diversity,No Evidence\n", string(data))

	require.NotNil(t, env.renderer.rendered)
	assert.Equal(t, "acme-2024.pdf", env.renderer.rendered.DocumentName)
	assert.Equal(t, 2, env.renderer.rendered.Summary.Total)

	assert.Contains(t, out, "Scope 1 emissions: Disclosed 1,200 tCO2e on page 12.")
	assert.Contains(t, out, "Audit of acme-2024.pdf")
	assert.Contains(t, out, "Requirements:   2")
	assert.Contains(t, out, "Compliance:     50.0%")
	assert.Contains(t, out, "Report written to "+output)
}

func TestAuditCmd_ValidatesAgainstStandards(t *testing.T) {
	env := setupTestConfig(t)
	env.requirements.reqs = []domain.Requirement{
		{Category: "Environmental", Criterion: "Scope 1 emissions"},
		{Category: "Environmental", Criterion: "water usage"},
	}
	env.searcher.matches["Scope 1 emissions"] = []domain.Match{emissionsMatch()}
	env.searcher.matches["water usage"] = []domain.Match{
		{Text: "Water usage 3,400 litres", Page: 7, DocumentName: "acme-2024.pdf", Value: "3,400 litres", Similarity: 0.7},
	}
	env.standardIndex.stats = domain.IndexStats{Total: 12, Live: 12}
	env.standardSearcher.matches["Scope 1 emissions"] = []domain.Match{
		{Text: "Disclose gross direct (Scope 1) GHG emissions", Page: 3, DocumentName: "gri-305.pdf", Similarity: 0.8},
	}
	output := filepath.Join(t.TempDir(), "out.csv")

	out, err := execute(t, "audit", "acme-2024.pdf", "-r", "reqs.csv", "-o", output, "--standard", "gri-305.pdf")

	require.NoError(t, err)
	require.Len(t, env.assessor.standards, 2)
	assert.Equal(t, 3, env.standardSearcher.lastK)
	require.NotNil(t, env.standardSearcher.lastFilter)
	assert.Equal(t, "gri-305.pdf", env.standardSearcher.lastFilter.Source)

	require.NotNil(t, env.renderer.rendered)
	got := env.renderer.rendered.Assessments
	require.Len(t, got, 2)
	assert.Equal(t, domain.VerdictCompliant, got[0].Verdict)
	require.NotNil(t, got[0].Standard)
	assert.Equal(t, "gri-305.pdf", got[0].Standard.DocumentName)
	assert.Equal(t, domain.VerdictNonCompliant, got[1].Verdict)
	assert.Nil(t, got[1].Standard)
	assert.Contains(t, out, "water usage: no standard passage")
}

func TestAuditCmd_StandardsSkipped(t *testing.T) {
	tests := []struct {
		name  string
		live  int
		extra []string
	}{
		{name: "empty standards index", live: 0},
		{name: "no-standards flag", live: 12, extra: []string{"--no-standards"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestConfig(t)
			env.requirements.reqs = auditRequirementsFixture()
			env.standardIndex.stats = domain.IndexStats{Total: tt.live, Live: tt.live}
			args := append([]string{"audit", "acme-2024.pdf", "-r", "reqs.csv",
				"-o", filepath.Join(t.TempDir(), "out.csv")}, tt.extra...)

			_, err := execute(t, args...)

			require.NoError(t, err)
			assert.Zero(t, env.standardSearcher.searchCalls)
			assert.Nil(t, env.assessor.standards)
		})
	}
}

func TestAuditCmd_DefaultOutputName(t *testing.T) {
	env := setupTestConfig(t)
	env.requirements.reqs = auditRequirementsFixture()
	t.Chdir(t.TempDir())

	out, err := execute(t, "audit", "acme-2024.pdf", "-r", "reqs.csv")

	require.NoError(t, err)
	assert.Contains(t, out, "Report written to acme-2024_result.csv")
	_, statErr := os.Stat("acme-2024_result.csv")
	assert.NoError(t, statErr)
}

func TestAuditCmd_NoIndexSkipsIndexing(t *testing.T) {
	env := setupTestConfig(t)
	env.requirements.reqs = auditRequirementsFixture()
	output := filepath.Join(t.TempDir(), "out.csv")

	_, err := execute(t, "audit", "acme-2024.pdf", "-r", "reqs.csv", "-o", output, "--no-index")

	require.NoError(t, err)
	assert.Empty(t, env.reportIndexer.paths)
}

func TestAuditCmd_UnsupportedReport(t *testing.T) {
	env := setupTestConfig(t)
	env.requirements.reqs = auditRequirementsFixture()
	env.reportIndexer.report = &driving.IndexReport{
		Failed: []driving.FailedSource{{Path: "/r/acme.xlsx", Error: "unsupported type: .xlsx"}},
	}

	_, err := execute(t, "audit", "acme.xlsx", "-r", "reqs.csv")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
	assert.Zero(t, env.searcher.searchCalls)
}

func TestAuditCmd_EmptyRequirements(t *testing.T) {
	setupTestConfig(t)

	_, err := execute(t, "audit", "acme-2024.pdf", "-r", "empty.csv", "-o", filepath.Join(t.TempDir(), "x.csv"))

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAuditCmd_ResourceExhausted(t *testing.T) {
	env := setupTestConfig(t)
	env.requirements.reqs = auditRequirementsFixture()
	env.dispatcher.err = domain.ErrResourceExhausted
	output := filepath.Join(t.TempDir(), "out.csv")

	_, err := execute(t, "audit", "acme-2024.pdf", "-r", "reqs.csv", "-o", output)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrResourceExhausted)
	assert.Contains(t, err.Error(), "audit refused")
	assert.NoFileExists(t, output)
}

func TestAuditCmd_InterruptedStillWritesReport(t *testing.T) {
	env := setupTestConfig(t)
	env.requirements.reqs = auditRequirementsFixture()
	env.dispatcher.err = context.Canceled
	output := filepath.Join(t.TempDir(), "out.csv")

	_, err := execute(t, "audit", "acme-2024.pdf", "-r", "reqs.csv", "-o", output)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.FileExists(t, output)
}

func TestAuditCmd_NotConfigured(t *testing.T) {
	env := setupTestConfig(t)
	env.config.Dispatcher = nil

	_, err := execute(t, "audit", "acme-2024.pdf", "-r", "reqs.csv")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit services not configured")
}

func TestVerdictColor_Distinct(t *testing.T) {
	seen := map[string]domain.Verdict{}
	for _, v := range []domain.Verdict{
		domain.VerdictCompliant, domain.VerdictNonCompliant, domain.VerdictNoEvidence, domain.VerdictNotProcessed,
	} {
		c := verdictColor(v)
		c.EnableColor()
		code := c.Sprint("x")
		_, dup := seen[code]
		assert.False(t, dup, "verdict %s shares a colour", v)
		seen[code] = v
	}
}
