// Package report renders audit reports.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
)

// Ensure CSVRenderer implements the interface.
var _ driven.ReportRenderer = (*CSVRenderer)(nil)

// AuditDateLayout is the timestamp format of the Audit_Date column.
const AuditDateLayout = "2006-01-02 15:04:05"

// Columns of the report. The first two hold the summary block, the rest
// hold one row per criterion.
var Columns = []string{
	"SUMMARY_HEADER", "SUMMARY_VALUE",
	"Document_Processed", "Audit_Date", "Category", "Criterion", "Description",
	"Extracted_Value", "Source_Page", "Source", "Similarity",
	"Compliance_Status", "Compliance_Reason",
	"Standard_Source", "Standard_Page", "Standard_Passage",
}

// noStandard marks a row whose standards search found nothing.
const noStandard = "none"

// CSVRenderer writes a summary block, a blank row and the criterion rows
// under a single header.
type CSVRenderer struct{}

// NewCSVRenderer creates a CSV renderer.
func NewCSVRenderer() *CSVRenderer {
	return &CSVRenderer{}
}

// Render writes the report to w.
func (r *CSVRenderer) Render(ctx context.Context, w io.Writer, rep driven.AuditReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	row := func(values map[string]string) []string {
		out := make([]string, len(Columns))
		for i, col := range Columns {
			out[i] = values[col]
		}
		return out
	}

	records := [][]string{Columns}
	for _, kv := range summaryRows(rep) {
		records = append(records, row(map[string]string{"SUMMARY_HEADER": kv[0], "SUMMARY_VALUE": kv[1]}))
	}
	records = append(records, make([]string, len(Columns)))

	auditDate := rep.AuditedAt.Format(AuditDateLayout)
	for _, a := range rep.Assessments {
		page := ""
		if a.Page > 0 {
			page = strconv.Itoa(a.Page)
		}
		similarity := ""
		if a.Similarity > 0 {
			similarity = strconv.FormatFloat(a.Similarity, 'f', 3, 64)
		}
		values := map[string]string{
			"Document_Processed": rep.DocumentName,
			"Audit_Date":         auditDate,
			"Category":           a.Requirement.Category,
			"Criterion":          a.Requirement.Criterion,
			"Description":        a.Requirement.Description,
			"Extracted_Value":    a.Value,
			"Source_Page":        page,
			"Source":             a.Source,
			"Similarity":         similarity,
			"Compliance_Status":  a.Verdict.String(),
			"Compliance_Reason":  a.Reason,
		}
		switch {
		case a.Standard != nil:
			values["Standard_Source"] = a.Standard.DocumentName
			if values["Standard_Source"] == "" {
				values["Standard_Source"] = a.Standard.Source
			}
			if a.Standard.Page > 0 {
				values["Standard_Page"] = strconv.Itoa(a.Standard.Page)
			}
			values["Standard_Passage"] = a.Standard.Text
		case a.StandardsChecked:
			values["Standard_Source"] = noStandard
		}
		records = append(records, row(values))
	}

	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func summaryRows(rep driven.AuditReport) [][2]string {
	s := rep.Summary
	return [][2]string{
		{"Total_Criteria_Assessed", strconv.Itoa(s.Total)},
		{"Compliant_Criteria", strconv.Itoa(s.Compliant)},
		{"NonCompliant_Criteria", strconv.Itoa(s.NonCompliant)},
		{"No_Evidence_Criteria", strconv.Itoa(s.NoEvidence)},
		{"Not_Processed_Criteria", strconv.Itoa(s.NotProcessed)},
		{"Compliance_Rate", fmt.Sprintf("%.1f%%", s.ComplianceRate*100)},
		{"Processing_Time_Seconds", fmt.Sprintf("%.1f", rep.Duration.Round(100*time.Millisecond).Seconds())},
	}
}
