// Package domain defines the core entities of the esgrag indexing and
// retrieval engine.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - TextUnit: A sentence, paragraph or table row extracted from a source
//   - IndexEntry: A persisted unit of a vector index, addressed by a dense id
//   - ContentFingerprint: The content hash used to skip unchanged sources
//   - Match, QueryResult: Ranked retrieval output for one criterion
//   - Requirement, Assessment: Compliance criteria and their verdicts
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
