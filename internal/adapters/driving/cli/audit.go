package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
	"github.com/custodia-labs/esgrag/internal/core/ports/driving"
)

var (
	auditRequirements string
	auditOutput       string
	auditLimit        int
	auditSkipIndex    bool
	auditStandard     string
	auditNoStandards  bool
)

// standardLimit is the number of standard passages considered per criterion.
const standardLimit = 3

var auditCmd = &cobra.Command{
	Use:   "audit [report]",
	Short: "Audit a report against a requirement list",
	Long: `Indexes the report if needed, searches it for every criterion of the
requirement list in parallel and assigns each requirement a verdict:

  Compliant      a quantitative value was disclosed and a standard covers it
  Non-Compliant  the criterion is mentioned without a value, or no
                 standard passage covers the disclosed value
  No Evidence    no passage passed the relevance threshold
  Not Processed  the query failed

Each criterion is also looked up in the standards index. When that index is
empty, or --no-standards is given, verdicts rest on the report alone.

The verdicts are written as a CSV report, <report>_result.csv by default.`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().StringVarP(&auditRequirements, "requirements", "r", "", "requirement list CSV (required)")
	auditCmd.Flags().StringVarP(&auditOutput, "output", "o", "", "CSV report path (default <report>_result.csv)")
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 5, "passages considered per criterion")
	auditCmd.Flags().BoolVar(&auditSkipIndex, "no-index", false, "assume the report is already indexed")
	auditCmd.Flags().StringVar(&auditStandard, "standard", "", "validate against one standard document only")
	auditCmd.Flags().BoolVar(&auditNoStandards, "no-standards", false, "skip validation against the standards index")
	auditCmd.MarkFlagRequired("requirements") //nolint:errcheck // flag is defined above
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	if appConfig == nil || appConfig.Dispatcher == nil || appConfig.Assessor == nil {
		return errors.New("audit services not configured")
	}
	if appConfig.Requirements == nil || appConfig.Renderer == nil {
		return errors.New("requirement source or report renderer not configured")
	}
	reports, err := collection(domain.SourceReport)
	if err != nil {
		return err
	}
	if reports.Searcher == nil {
		return errors.New("search service not configured")
	}

	ctx := cmd.Context()
	started := time.Now()

	reportPath, err := absPath(args[0])
	if err != nil {
		return err
	}

	reqs, err := appConfig.Requirements.Load(ctx, auditRequirements)
	if err != nil {
		return fmt.Errorf("loading requirements: %w", err)
	}
	if len(reqs) == 0 {
		return fmt.Errorf("%w: %s has no requirements", domain.ErrInvalidInput, auditRequirements)
	}

	if !auditSkipIndex {
		if err := indexReport(ctx, reports, reportPath, reqs); err != nil {
			return err
		}
	}

	filter := &domain.Filter{Source: reportPath}
	results, dispatchErr := appConfig.Dispatcher.DispatchRequirements(ctx, reqs,
		func(ctx context.Context, req domain.Requirement) (domain.QueryResult, error) {
			return reports.Searcher.SearchRequirement(ctx, req, auditLimit, filter)
		})
	if errors.Is(dispatchErr, domain.ErrResourceExhausted) {
		return fmt.Errorf("audit refused: %w", dispatchErr)
	}

	var standards []domain.QueryResult
	if dispatchErr == nil {
		standards, dispatchErr = searchStandards(ctx, reqs)
		if errors.Is(dispatchErr, domain.ErrResourceExhausted) {
			return fmt.Errorf("audit refused: %w", dispatchErr)
		}
	}

	assessments := appConfig.Assessor.Assess(reqs, results, standards)
	summary := appConfig.Assessor.Summarise(assessments)

	out := auditOutput
	if out == "" {
		base := filepath.Base(reportPath)
		out = strings.TrimSuffix(base, filepath.Ext(base)) + "_result.csv"
	}
	audit := driven.AuditReport{
		DocumentName: filepath.Base(reportPath),
		AuditedAt:    started,
		Duration:     time.Since(started),
		Summary:      summary,
		Assessments:  assessments,
	}
	if err := writeAuditReport(ctx, out, audit); err != nil {
		return err
	}

	printAssessments(cmd.OutOrStdout(), assessments)
	printSummary(cmd.OutOrStdout(), audit)
	cmd.Printf("Report written to %s\n", out)

	if dispatchErr != nil {
		return fmt.Errorf("audit interrupted: %w", dispatchErr)
	}
	return nil
}

// searchStandards looks every requirement up in the standards index. It
// returns nil results when standards validation is off or there is nothing
// to validate against.
func searchStandards(ctx context.Context, reqs []domain.Requirement) ([]domain.QueryResult, error) {
	if auditNoStandards {
		return nil, nil
	}
	standards, err := collection(domain.SourceStandard)
	if err != nil || standards.Searcher == nil || standards.Index == nil {
		return nil, nil
	}
	if standards.Index.Stats().Live == 0 {
		return nil, nil
	}

	var filter *domain.Filter
	if auditStandard != "" {
		filter = &domain.Filter{Source: auditStandard}
	}
	return appConfig.Dispatcher.DispatchRequirements(ctx, reqs,
		func(ctx context.Context, req domain.Requirement) (domain.QueryResult, error) {
			return standards.Searcher.SearchRequirement(ctx, req, standardLimit, filter)
		})
}

// indexReport indexes the audited report, tagging its passages with the
// requirement categories so sparse categories get the lower thresholds.
func indexReport(ctx context.Context, reports *Collection, path string, reqs []domain.Requirement) error {
	if reports.Indexer == nil {
		return errors.New("indexer not configured")
	}
	report, err := reports.Indexer.IndexFile(ctx, path, driving.IndexOptions{Kind: domain.SourceReport, Categories: reqs})
	if err != nil {
		return fmt.Errorf("indexing report: %w", err)
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("indexing report: %s", report.Failed[0].Error)
	}
	return nil
}

func writeAuditReport(ctx context.Context, path string, report driven.AuditReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	if err := appConfig.Renderer.Render(ctx, f, report); err != nil {
		_ = f.Close()
		return fmt.Errorf("rendering report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

func verdictColor(v domain.Verdict) *color.Color {
	switch v {
	case domain.VerdictCompliant:
		return color.New(color.FgGreen, color.Bold)
	case domain.VerdictNonCompliant:
		return color.New(color.FgYellow)
	case domain.VerdictNoEvidence:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgMagenta)
	}
}

func printAssessments(w io.Writer, assessments []domain.Assessment) {
	for _, as := range assessments {
		label := verdictColor(as.Verdict).Sprintf("%-13s", as.Verdict)
		fmt.Fprintf(w, "  %s  %s: %s\n", label, as.Requirement.Criterion, as.Reason)
	}
	fmt.Fprintln(w)
}

func printSummary(w io.Writer, report driven.AuditReport) {
	s := report.Summary
	bold := color.New(color.Bold)
	bold.Fprintf(w, "Audit of %s\n", report.DocumentName) //nolint:errcheck // terminal output
	fmt.Fprintf(w, "  Requirements:   %d\n", s.Total)
	fmt.Fprintf(w, "  %s  %d\n", verdictColor(domain.VerdictCompliant).Sprint("Compliant:    "), s.Compliant)
	fmt.Fprintf(w, "  %s  %d\n", verdictColor(domain.VerdictNonCompliant).Sprint("Non-Compliant:"), s.NonCompliant)
	fmt.Fprintf(w, "  %s  %d\n", verdictColor(domain.VerdictNoEvidence).Sprint("No Evidence:  "), s.NoEvidence)
	fmt.Fprintf(w, "  %s  %d\n", verdictColor(domain.VerdictNotProcessed).Sprint("Not Processed:"), s.NotProcessed)
	fmt.Fprintf(w, "  Compliance:     %.1f%%\n", s.ComplianceRate*100)
	fmt.Fprintf(w, "  Duration:       %s\n", report.Duration.Round(time.Millisecond))
}
