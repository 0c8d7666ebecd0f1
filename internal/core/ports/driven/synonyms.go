package driven

// SynonymTable is a read-only mapping from a term to related terms.
// Terms are lowercase and may contain spaces.
type SynonymTable interface {
	// Related returns the terms related to word, excluding word itself.
	Related(word string) []string

	// Len returns the number of head terms.
	Len() int
}
