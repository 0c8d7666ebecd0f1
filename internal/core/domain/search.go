package domain

// Filter restricts retrieval to a subset of the index.
// Empty fields match everything.
type Filter struct {
	// Source restricts results to one source path or document name.
	Source string

	// Kind restricts results to one collection type.
	Kind SourceKind

	// Category restricts results to entries tagged with a category.
	Category string
}

// IsZero returns true if the filter matches everything.
func (f *Filter) IsZero() bool {
	return f == nil || (f.Source == "" && f.Kind == "" && f.Category == "")
}

// Matches reports whether an entry passes the filter.
func (f *Filter) Matches(m EntryMetadata) bool {
	if f.IsZero() {
		return true
	}
	if f.Source != "" && m.SourceID != f.Source && m.DocumentName != f.Source {
		return false
	}
	if f.Kind != "" && m.SourceKind != f.Kind {
		return false
	}
	if f.Category != "" && m.Category != f.Category {
		return false
	}
	return true
}

// SearchOptions configures a retrieval query.
type SearchOptions struct {
	// Filter drops candidates after retrieval.
	Filter *Filter

	// Category selects the dynamic threshold tier.
	// Empty uses the default threshold.
	Category string

	// Threshold overrides the threshold policy when set.
	Threshold *float64
}

// Match is a ranked passage returned for a criterion.
type Match struct {
	// ID is the index entry id.
	ID int `json:"id"`

	// Text is the passage.
	Text string `json:"text"`

	// Source is the source path.
	Source string `json:"source"`

	// DocumentName is the base name of the source.
	DocumentName string `json:"document_name,omitempty"`

	// Page is the 1-based page number.
	Page int `json:"page"`

	// Similarity is the combined relevance score in [0,1].
	Similarity float64 `json:"similarity"`

	// Exact is set when the criterion appears verbatim in the passage.
	Exact bool `json:"exact,omitempty"`

	// Value is a literal quantity extracted for the criterion, if any.
	Value string `json:"value,omitempty"`

	// ContextBefore is the preceding unit on the same page.
	ContextBefore string `json:"context_before,omitempty"`

	// ContextAfter is the following unit on the same page.
	ContextAfter string `json:"context_after,omitempty"`

	// Category is the entry category, if tagged.
	Category string `json:"category,omitempty"`
}

// QueryStatus distinguishes a processed query from a failed one.
type QueryStatus string

// Available query statuses.
const (
	// QueryMatched means at least one match passed the threshold.
	QueryMatched QueryStatus = "matched"

	// QueryEmpty means the query ran but nothing passed the threshold.
	QueryEmpty QueryStatus = "empty"

	// QueryFailed means the query was not processed.
	QueryFailed QueryStatus = "failed"
)

// QueryResult is the outcome of one criterion query.
type QueryResult struct {
	// Criterion is the query text and the key used to match results back.
	Criterion string `json:"criterion"`

	// Category is carried through from the requirement, if any.
	Category string `json:"category,omitempty"`

	// Status tells empty results apart from failures.
	Status QueryStatus `json:"status"`

	// Matches are ordered by descending similarity.
	Matches []Match `json:"matches"`

	// Err holds the failure message when Status is QueryFailed.
	Err string `json:"error,omitempty"`
}

// Best returns the top match, if any.
func (r QueryResult) Best() (Match, bool) {
	if len(r.Matches) == 0 {
		return Match{}, false
	}
	return r.Matches[0], true
}

// NewQueryResult builds a result from matches and a search error.
func NewQueryResult(criterion string, matches []Match, err error) QueryResult {
	res := QueryResult{Criterion: criterion, Matches: matches}
	switch {
	case err != nil:
		res.Status = QueryFailed
		res.Err = err.Error()
		res.Matches = nil
	case len(matches) == 0:
		res.Status = QueryEmpty
		res.Matches = []Match{}
	default:
		res.Status = QueryMatched
	}
	return res
}
