package domain

import "strings"

// Requirement is one row of a structured requirement list.
type Requirement struct {
	// Category groups related criteria, e.g. "Environmental".
	Category string

	// Criterion is the short name searched for, e.g. "Scope 1 emissions".
	Criterion string

	// Description is the longer disclosure requirement.
	Description string
}

// EmbeddingText is the text embedded for the requirements index.
func (r Requirement) EmbeddingText() string {
	return strings.TrimSpace(r.Criterion + " " + r.Description)
}

// Verdict is the compliance outcome for a requirement.
type Verdict string

// Available verdicts.
const (
	// VerdictCompliant means a quantitative disclosure was found.
	VerdictCompliant Verdict = "Compliant"

	// VerdictNonCompliant means the criterion is mentioned without a value.
	VerdictNonCompliant Verdict = "Non-Compliant"

	// VerdictNoEvidence means no passage passed the threshold.
	VerdictNoEvidence Verdict = "No Evidence"

	// VerdictNotProcessed means the query failed.
	VerdictNotProcessed Verdict = "Not Processed"
)

// String returns the string representation.
func (v Verdict) String() string {
	return string(v)
}

// Assessment is the verdict for one requirement.
type Assessment struct {
	Requirement Requirement
	Result      QueryResult
	Verdict     Verdict
	Reason      string

	// Value, Page, Source and Similarity come from the best match.
	Value      string
	Page       int
	Source     string
	Similarity float64

	// StandardsChecked is set when the audit searched the standards
	// collection. Standard is then the best standard passage for the
	// criterion, or nil when none passed the threshold.
	StandardsChecked bool
	Standard         *Match
}

// AssessmentSummary aggregates a set of assessments.
type AssessmentSummary struct {
	Total          int
	Compliant      int
	NonCompliant   int
	NoEvidence     int
	NotProcessed   int
	ComplianceRate float64
}
