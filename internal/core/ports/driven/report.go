package driven

import (
	"context"
	"io"
	"time"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

// RequirementSource loads a structured requirement list.
type RequirementSource interface {
	Load(ctx context.Context, path string) ([]domain.Requirement, error)
}

// AuditReport is everything a renderer needs for one audited document.
type AuditReport struct {
	DocumentName string
	AuditedAt    time.Time
	Duration     time.Duration
	Summary      domain.AssessmentSummary
	Assessments  []domain.Assessment
}

// ReportRenderer writes an audit report as a tabular artifact.
type ReportRenderer interface {
	Render(ctx context.Context, w io.Writer, report AuditReport) error
}
