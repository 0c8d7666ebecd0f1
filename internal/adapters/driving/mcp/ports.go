package mcp

import (
	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driving"
)

// IndexReader is the read-only view of a collection the server exposes.
type IndexReader interface {
	Entry(id int) (domain.IndexEntry, bool)
	Stats() domain.IndexStats
}

// Ports aggregates everything the MCP server needs.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Search answers criteria against the report collection.
	Search driving.RetrievalSearcher

	// Indexes are the open collections, keyed by kind.
	Indexes map[domain.SourceKind]IndexReader
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	// Indexes are optional; status and entry lookups report nothing without them
	return nil
}
