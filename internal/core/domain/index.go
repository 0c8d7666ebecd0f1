package domain

import "time"

// SourceKind tags which collection an entry belongs to.
type SourceKind string

// Available source kinds.
const (
	// SourceStandard is a regulatory standard or framework document.
	SourceStandard SourceKind = "standard"

	// SourceReport is a company report under audit.
	SourceReport SourceKind = "report"

	// SourceRequirement is a row of a structured requirement list.
	SourceRequirement SourceKind = "requirement"
)

// IsValid returns true if the source kind is recognised.
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceStandard, SourceReport, SourceRequirement:
		return true
	default:
		return false
	}
}

// IsDocument reports whether sources of this kind are document files that a
// directory scan can index. Requirement lists are loaded from CSV instead.
func (k SourceKind) IsDocument() bool {
	return k == SourceStandard || k == SourceReport
}

// String returns the string representation.
func (k SourceKind) String() string {
	return string(k)
}

// EntryMetadata is the metadata stored alongside each vector.
type EntryMetadata struct {
	TextUnit

	// DocumentName is the base name of the source file.
	DocumentName string `json:"document_name"`

	// Category is the requirement category, when known.
	Category string `json:"category,omitempty"`

	// Criterion is the requirement criterion, for requirement entries.
	Criterion string `json:"criterion,omitempty"`

	// Description is the requirement description, for requirement entries.
	Description string `json:"description,omitempty"`

	// SourceKind is the collection type tag.
	SourceKind SourceKind `json:"type"`

	// RunID identifies the indexing run that wrote the entry.
	RunID string `json:"run_id,omitempty"`
}

// IndexEntry is one persisted unit of a vector index.
// Its ID is dense and equals its position in the vector store.
type IndexEntry struct {
	// ID is assigned in insertion order starting at 0.
	ID int `json:"id"`

	// Metadata describes the embedded unit.
	Metadata EntryMetadata `json:"metadata"`

	// Tombstoned entries are excluded from search until compaction removes them.
	Tombstoned bool `json:"tombstoned,omitempty"`
}

// IndexStats summarises an index.
type IndexStats struct {
	// Dimension is the fixed vector length.
	Dimension int

	// Metric is the distance metric name.
	Metric string

	// Total counts every entry including tombstones.
	Total int

	// Live counts entries visible to search.
	Live int

	// Sources counts distinct live sources.
	Sources int

	// Categories is the live entry count per category.
	Categories map[string]int
}

// ContentFingerprint records the content hash of a successfully indexed source.
type ContentFingerprint struct {
	// SourcePath is the absolute path of the source.
	SourcePath string

	// Hash is the hex sha256 digest of the source content.
	Hash string

	// Entries is the number of index entries written for the source.
	Entries int

	// IndexedAt is when the source was indexed.
	IndexedAt time.Time

	// RunID identifies the indexing run.
	RunID string
}
