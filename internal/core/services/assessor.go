package services

import (
	"errors"
	"fmt"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driving"
	"github.com/custodia-labs/esgrag/internal/logger"
)

// Ensure Assessor implements the interface.
var _ driving.ComplianceAssessor = (*Assessor)(nil)

var errNoResult = errors.New("no result returned")

// Assessor turns query results into compliance verdicts.
type Assessor struct {
	log *logger.Logger
}

// NewAssessor creates an assessor.
func NewAssessor(log *logger.Logger) *Assessor {
	return &Assessor{log: logger.OrNop(log)}
}

// Assess returns one assessment per requirement, in requirement order.
// Results are matched to requirements by criterion; a requirement without a
// result is not processed. When standards is non-nil a disclosed value is
// only compliant if a standard passage also covers the criterion.
func (a *Assessor) Assess(reqs []domain.Requirement, results, standards []domain.QueryResult) []domain.Assessment {
	byCriterion := make(map[string]domain.QueryResult, len(results))
	for _, r := range results {
		byCriterion[r.Criterion] = r
	}
	var standardBy map[string]domain.QueryResult
	if standards != nil {
		standardBy = make(map[string]domain.QueryResult, len(standards))
		for _, r := range standards {
			standardBy[r.Criterion] = r
		}
	}

	out := make([]domain.Assessment, 0, len(reqs))
	for _, req := range reqs {
		res, ok := byCriterion[req.Criterion]
		if !ok {
			res = domain.NewQueryResult(req.Criterion, nil, errNoResult)
		}
		as := a.assess(req, res)
		if standardBy != nil {
			a.validate(&as, standardBy[req.Criterion])
		}
		out = append(out, as)
	}
	return out
}

// validate records the supporting standard passage and withdraws a
// compliant verdict that no standard passage backs.
func (a *Assessor) validate(as *domain.Assessment, std domain.QueryResult) {
	as.StandardsChecked = true
	if best, ok := std.Best(); ok {
		as.Standard = &best
		return
	}
	if std.Status == domain.QueryFailed {
		a.log.Warn("standards query for %q failed: %s", as.Requirement.Criterion, std.Err)
	}
	if as.Verdict != domain.VerdictCompliant {
		return
	}
	as.Verdict = domain.VerdictNonCompliant
	as.Reason = fmt.Sprintf("Disclosed %s on page %d, but no standard passage covers criterion '%s'.",
		as.Value, as.Page, as.Requirement.Criterion)
}

func (a *Assessor) assess(req domain.Requirement, res domain.QueryResult) domain.Assessment {
	as := domain.Assessment{Requirement: req, Result: res}

	switch res.Status {
	case domain.QueryFailed:
		as.Verdict = domain.VerdictNotProcessed
		as.Reason = fmt.Sprintf("Query failed for criterion '%s': %s.", req.Criterion, res.Err)
		return as
	case domain.QueryEmpty:
		as.Verdict = domain.VerdictNoEvidence
		as.Reason = fmt.Sprintf("No passage above the relevance threshold for criterion '%s'.", req.Criterion)
		return as
	}

	best, ok := res.Best()
	if !ok {
		as.Verdict = domain.VerdictNoEvidence
		as.Reason = fmt.Sprintf("No passage above the relevance threshold for criterion '%s'.", req.Criterion)
		return as
	}

	// Prefer the highest ranked match that discloses a quantity.
	chosen := best
	for _, m := range res.Matches {
		if m.Value != "" {
			chosen = m
			break
		}
	}
	as.Page = chosen.Page
	as.Source = chosen.DocumentName
	if as.Source == "" {
		as.Source = chosen.Source
	}
	as.Similarity = chosen.Similarity

	if chosen.Value != "" {
		as.Verdict = domain.VerdictCompliant
		as.Value = chosen.Value
		as.Reason = fmt.Sprintf("Disclosed %s on page %d.", chosen.Value, chosen.Page)
		return as
	}
	as.Verdict = domain.VerdictNonCompliant
	as.Reason = fmt.Sprintf("Criterion '%s' mentioned on page %d without quantitative disclosure.",
		req.Criterion, chosen.Page)
	return as
}

// Summarise counts verdicts.
func (a *Assessor) Summarise(assessments []domain.Assessment) domain.AssessmentSummary {
	return Summarise(assessments)
}

// Summarise counts verdicts. The compliance rate is compliant over total.
func Summarise(assessments []domain.Assessment) domain.AssessmentSummary {
	var s domain.AssessmentSummary
	s.Total = len(assessments)
	for _, as := range assessments {
		switch as.Verdict {
		case domain.VerdictCompliant:
			s.Compliant++
		case domain.VerdictNonCompliant:
			s.NonCompliant++
		case domain.VerdictNoEvidence:
			s.NoEvidence++
		case domain.VerdictNotProcessed:
			s.NotProcessed++
		}
	}
	if s.Total > 0 {
		s.ComplianceRate = float64(s.Compliant) / float64(s.Total)
	}
	return s
}
