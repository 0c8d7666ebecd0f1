package driving

import "github.com/custodia-labs/esgrag/internal/core/domain"

// ComplianceAssessor turns dispatched query results into verdicts.
type ComplianceAssessor interface {
	// Assess returns one assessment per requirement, in requirement order.
	// standards holds the standards collection results for the same
	// requirements; nil means the standards were not consulted and
	// verdicts rest on the report alone.
	Assess(reqs []domain.Requirement, results, standards []domain.QueryResult) []domain.Assessment

	// Summarise counts verdicts and the compliance rate.
	Summarise(assessments []domain.Assessment) domain.AssessmentSummary
}
