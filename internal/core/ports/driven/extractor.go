package driven

import (
	"context"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

// TextExtractor reads a source file into ordered pages of text.
// Unreadable or corrupt input fails with domain.ErrExtraction.
// A source with no extractable text returns an empty slice and no error.
type TextExtractor interface {
	Extract(ctx context.Context, path string) ([]domain.Page, error)
}

// ExtractorRegistry selects an extractor by file extension.
type ExtractorRegistry interface {
	TextExtractor

	// Supports reports whether a file can be extracted.
	Supports(path string) bool

	// Extensions lists the supported extensions, including the dot.
	Extensions() []string
}

// Segmenter splits pages into ordered text units.
type Segmenter interface {
	Segment(sourceID string, pages []domain.Page) []domain.TextUnit
}
