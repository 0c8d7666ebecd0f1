package domain

import "fmt"

// UnitKind classifies a TextUnit by how it was segmented.
type UnitKind string

// Available unit kinds.
const (
	// UnitSentence is a single sentence split out of a long paragraph.
	UnitSentence UnitKind = "sentence"

	// UnitParagraph is a block of text separated by blank lines.
	UnitParagraph UnitKind = "paragraph"

	// UnitTableRow is a line whose cells are separated by tabs, pipes or wide gaps.
	UnitTableRow UnitKind = "table_row"
)

// IsValid returns true if the unit kind is recognised.
func (k UnitKind) IsValid() bool {
	switch k {
	case UnitSentence, UnitParagraph, UnitTableRow:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (k UnitKind) String() string {
	return string(k)
}

// Page is one page of text produced by a TextExtractor.
type Page struct {
	// Number is the 1-based page number.
	Number int

	// Text is the extracted text of the page.
	Text string
}

// TextUnit is an immutable piece of text extracted from a source.
// Identity is (SourceID, Page, UnitIndex).
type TextUnit struct {
	// SourceID identifies the source document, usually its path.
	SourceID string `json:"source_id"`

	// Page is the 1-based page the unit was found on.
	Page int `json:"page"`

	// UnitIndex is the 0-based position of the unit within its source.
	UnitIndex int `json:"unit_index"`

	// Text is the unit content. Never empty.
	Text string `json:"text"`

	// Kind is how the unit was segmented.
	Kind UnitKind `json:"kind"`
}

// Key returns the identity of the unit as a string.
func (u TextUnit) Key() string {
	return fmt.Sprintf("%s#%d#%d", u.SourceID, u.Page, u.UnitIndex)
}

// Validate checks the unit invariants.
func (u TextUnit) Validate() error {
	switch {
	case u.SourceID == "":
		return fmt.Errorf("%w: text unit has no source", ErrInvalidInput)
	case u.Page < 1:
		return fmt.Errorf("%w: page %d must be >= 1", ErrInvalidInput, u.Page)
	case u.UnitIndex < 0:
		return fmt.Errorf("%w: unit index %d must be >= 0", ErrInvalidInput, u.UnitIndex)
	case u.Text == "":
		return fmt.Errorf("%w: text unit %s is empty", ErrInvalidInput, u.Key())
	case !u.Kind.IsValid():
		return fmt.Errorf("%w: unknown unit kind %q", ErrInvalidInput, u.Kind)
	}
	return nil
}

// EmbeddingRecord pairs a unit with its embedding vector.
type EmbeddingRecord struct {
	Unit   TextUnit
	Vector []float32
}
