// Package docx extracts Word (.docx) documents.
package docx

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
	"github.com/custodia-labs/esgrag/internal/extractors/plaintext"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

const documentPart = "word/document.xml"

// Extractor reads the main document part of a .docx archive.
type Extractor struct{}

// New creates a new DOCX extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract returns the document text. Explicit page breaks start a new page,
// and table rows are written as tab separated lines.
func (e *Extractor) Extract(ctx context.Context, path string) ([]domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrExtraction, path, err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.Name != documentPart {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrExtraction, path, err)
		}
		text, err := documentText(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrExtraction, path, err)
		}
		return plaintext.SplitPages(text), nil
	}
	return nil, fmt.Errorf("%w: %s has no %s", domain.ErrExtraction, path, documentPart)
}

// documentText walks the WordprocessingML token stream.
func documentText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		b         strings.Builder
		inText    bool
		cellDepth int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteString("\t")
			case "br":
				if attr(t, "type") == "page" {
					b.WriteString("\f")
				} else {
					b.WriteString("\n")
				}
			case "tc":
				cellDepth++
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if cellDepth > 0 {
					b.WriteString(" ")
				} else {
					b.WriteString("\n\n")
				}
			case "tc":
				cellDepth--
				b.WriteString("\t")
			case "tr":
				b.WriteString("\n")
			case "tbl":
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return tidy(b.String()), nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

var spaceBeforeTab = regexp.MustCompile(` +\t`)

// tidy trims the padding left by cell and paragraph separators.
func tidy(s string) string {
	s = spaceBeforeTab.ReplaceAllString(s, "\t")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(strings.TrimLeft(line, " "), " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
