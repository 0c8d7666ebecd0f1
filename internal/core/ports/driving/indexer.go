package driving

import (
	"context"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

// IndexOptions tags and tunes one indexing run.
type IndexOptions struct {
	// Kind is the collection type tag written to every entry.
	Kind domain.SourceKind

	// Category tags every entry, e.g. for a standards folder per category.
	Category string

	// Categories assigns each unit to the best matching category of this
	// requirement list. Ignored when Category is set.
	Categories []domain.Requirement

	// BatchSize overrides the configured embedding batch size.
	BatchSize int

	// Force re-indexes sources even when their fingerprint matches.
	Force bool
}

// FailedSource records a source that was not fully indexed.
type FailedSource struct {
	Path  string
	Error string
}

// IndexReport summarises an indexing run.
type IndexReport struct {
	RunID        string
	Indexed      int
	Skipped      int
	Failed       []FailedSource
	EntriesAdded int
	Tombstoned   int
}

// CorpusIndexer turns source documents into index entries.
type CorpusIndexer interface {
	// IndexPath indexes a file or every supported file under a directory.
	IndexPath(ctx context.Context, path string, opts IndexOptions) (*IndexReport, error)

	// IndexFile indexes a single file.
	IndexFile(ctx context.Context, path string, opts IndexOptions) (*IndexReport, error)

	// IndexRequirements embeds a requirement list as one source.
	IndexRequirements(ctx context.Context, source string, reqs []domain.Requirement) (*IndexReport, error)

	// RemoveSource tombstones a source's entries and forgets its fingerprint.
	RemoveSource(ctx context.Context, path string) error
}
