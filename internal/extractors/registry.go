package extractors

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
	"github.com/custodia-labs/esgrag/internal/extractors/docx"
	"github.com/custodia-labs/esgrag/internal/extractors/html"
	"github.com/custodia-labs/esgrag/internal/extractors/pdf"
	"github.com/custodia-labs/esgrag/internal/extractors/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry maps lowercase file extensions to extractors.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]driven.TextExtractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]driven.TextExtractor)}
}

// NewDefaultRegistry registers every built-in extractor.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	text := plaintext.New()
	r.Register(".txt", text)
	r.Register(".md", text)
	r.Register(".pdf", pdf.New())
	r.Register(".docx", docx.New())
	markup := html.New()
	r.Register(".html", markup)
	r.Register(".htm", markup)
	return r
}

// Register adds or replaces the extractor for an extension.
func (r *Registry) Register(ext string, e driven.TextExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[normaliseExt(ext)] = e
}

// Supports reports whether a file can be extracted.
func (r *Registry) Supports(path string) bool {
	_, ok := r.lookup(path)
	return ok
}

// Extensions lists the supported extensions in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.extractors))
	for ext := range r.extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract dispatches to the extractor registered for the file extension.
func (r *Registry) Extract(ctx context.Context, path string) ([]domain.Page, error) {
	e, ok := r.lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, filepath.Ext(path))
	}
	return e.Extract(ctx, path)
}

func (r *Registry) lookup(path string) (driven.TextExtractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[normaliseExt(filepath.Ext(path))]
	return e, ok
}

func normaliseExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
