// Package html extracts readable text from HTML documents.
package html

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// Elements whose content is never shown.
var skipped = map[string]bool{
	"script": true, "style": true, "noscript": true, "head": true, "svg": true, "template": true,
}

// Elements that end a paragraph.
var blocks = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "blockquote": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "ul": true, "ol": true, "table": true, "header": true, "footer": true, "hr": true,
}

var (
	inlineSpace    = regexp.MustCompile(`[ \r\n\f\v]+`)
	spaceAroundTab = regexp.MustCompile(` *\t *`)
	extraNewlines  = regexp.MustCompile(`\n{3,}`)
)

// Extractor converts an HTML file into a single page of text.
type Extractor struct{}

// New creates a new HTML extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract strips markup. Table cells are tab separated and rows end lines.
func (e *Extractor) Extract(ctx context.Context, path string) ([]domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrExtraction, path, err)
	}
	defer f.Close()

	text, err := Text(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrExtraction, path, err)
	}
	if text == "" {
		return []domain.Page{}, nil
	}
	return []domain.Page{{Number: 1, Text: text}}, nil
}

// Text tokenises r and returns its visible text.
func Text(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var (
		b    strings.Builder
		skip int
	)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return "", err
			}
			return tidy(b.String()), nil

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case skipped[tag]:
				if tt == html.StartTagToken {
					skip++
				}
			case tag == "br":
				b.WriteString("\n")
			case blocks[tag]:
				b.WriteString("\n\n")
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch {
			case skipped[tag]:
				if skip > 0 {
					skip--
				}
			case tag == "td" || tag == "th":
				b.WriteString("\t")
			case tag == "tr":
				b.WriteString("\n")
			case blocks[tag]:
				b.WriteString("\n\n")
			}

		case html.TextToken:
			if skip == 0 {
				b.WriteString(inlineSpace.ReplaceAllString(string(z.Text()), " "))
			}
		}
	}
}

func tidy(s string) string {
	s = spaceAroundTab.ReplaceAllString(s, "\t")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Trim(line, " \t")
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(extraNewlines.ReplaceAllString(s, "\n\n"))
}
