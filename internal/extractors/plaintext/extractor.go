// Package plaintext extracts text and Markdown files.
package plaintext

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// pageBreak separates pages in text output, as pdftotext emits it.
const pageBreak = "\f"

// Extractor reads UTF-8 text files.
type Extractor struct{}

// New creates a new plain text extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract reads the file and splits it into pages on form feeds.
// Files containing NUL bytes are treated as binary and rejected.
func (e *Extractor) Extract(ctx context.Context, path string) ([]domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrExtraction, path, err)
	}
	if bytes.IndexByte(content, 0) >= 0 {
		return nil, fmt.Errorf("%w: %s looks like a binary file", domain.ErrExtraction, path)
	}
	return SplitPages(strings.ToValidUTF8(string(content), "�")), nil
}

// SplitPages splits text on form feeds. Pages keep their position in the
// source even when blank pages between them are dropped.
func SplitPages(text string) []domain.Page {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, pageBreak)
	pages := make([]domain.Page, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pages = append(pages, domain.Page{Number: i + 1, Text: part})
	}
	return pages
}
