package driven

import (
	"context"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

// VectorHit is a nearest-neighbour result.
type VectorHit struct {
	// ID is the dense index entry id.
	ID int

	// Distance under the index metric. Smaller is closer.
	Distance float64
}

// VectorIndex is an append-only collection of (vector, metadata) pairs.
// The vector store and the metadata store are parallel arrays addressed by
// the same dense id, and their lengths are always equal.
//
// Implementations allow many concurrent readers and a single writer.
type VectorIndex interface {
	// Add appends vectors and their metadata and persists both before
	// returning. Ids are assigned from the current length upwards.
	// A count or dimension mismatch returns domain.ErrDimensionMismatch and
	// leaves the index unchanged.
	Add(ctx context.Context, vectors [][]float32, records []domain.EntryMetadata) ([]int, error)

	// Search returns up to k live entries nearest to query, ordered by
	// ascending distance and then ascending id. An empty index yields an
	// empty result and no error.
	Search(ctx context.Context, query []float32, k int) ([]VectorHit, error)

	// Entry returns the entry with the given id.
	Entry(id int) (domain.IndexEntry, bool)

	// Vector returns the stored vector with the given id.
	Vector(id int) ([]float32, bool)

	// Neighbours returns up to before/after live entries adjacent to id that
	// share its source and page, in id order.
	Neighbours(id, before, after int) (prev, next []domain.IndexEntry)

	// CountBySource returns the number of live entries for a source.
	CountBySource(source string) int

	// Tombstone hides every live entry of a source and persists the change.
	Tombstone(ctx context.Context, source string) (int, error)

	// TombstoneStale hides the live entries of a source that were not
	// written by run keepRunID. Re-indexing uses it to retire the previous
	// version of a source only after the new one is stored.
	TombstoneStale(ctx context.Context, source, keepRunID string) (int, error)

	// Compact rebuilds the index without tombstoned entries.
	Compact(ctx context.Context) error

	// Stats summarises the index, including live entries per category.
	Stats() domain.IndexStats

	// Dimension returns the fixed vector length.
	Dimension() int

	// Close releases resources.
	Close() error
}
