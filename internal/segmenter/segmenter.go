// Package segmenter splits extracted pages into text units.
package segmenter

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
)

// Ensure Segmenter implements the interface.
var _ driven.Segmenter = (*Segmenter)(nil)

// DefaultMinLength is the shortest paragraph kept, in characters.
const DefaultMinLength = 30

// DefaultMaxParagraph is the longest paragraph kept whole; longer ones are
// split into sentences.
const DefaultMaxParagraph = 600

// DefaultMinCells is the number of cells that makes a line a table row.
const DefaultMinCells = 3

var (
	blockSep     = regexp.MustCompile(`\n{2,}`)
	paragraphSep = regexp.MustCompile(`\s{4,}`)
	cellSep      = regexp.MustCompile(`\t|\||\s{2,}`)
	numericCell  = regexp.MustCompile(`^[-+$€£(]?\d`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Segmenter turns pages into paragraph, sentence and table row units.
type Segmenter struct {
	minLength    int
	maxParagraph int
	minCells     int
}

// Option configures the segmenter.
type Option func(*Segmenter)

// WithMinLength sets the minimum paragraph length in characters.
func WithMinLength(n int) Option {
	return func(s *Segmenter) {
		if n >= 0 {
			s.minLength = n
		}
	}
}

// WithMaxParagraph sets the length above which paragraphs are split into sentences.
func WithMaxParagraph(n int) Option {
	return func(s *Segmenter) {
		if n > 0 {
			s.maxParagraph = n
		}
	}
}

// WithMinCells sets how many cells a line needs to count as a table row.
func WithMinCells(n int) Option {
	return func(s *Segmenter) {
		if n > 1 {
			s.minCells = n
		}
	}
}

// New creates a segmenter with the given options.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{
		minLength:    DefaultMinLength,
		maxParagraph: DefaultMaxParagraph,
		minCells:     DefaultMinCells,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Segment returns the units of every page in reading order. Unit indexes
// count from zero across the whole source.
func (s *Segmenter) Segment(sourceID string, pages []domain.Page) []domain.TextUnit {
	var units []domain.TextUnit
	emit := func(page int, text string, kind domain.UnitKind) {
		units = append(units, domain.TextUnit{
			SourceID:  sourceID,
			Page:      page,
			UnitIndex: len(units),
			Text:      text,
			Kind:      kind,
		})
	}

	for _, page := range pages {
		if page.Number < 1 {
			continue
		}
		text := strings.ReplaceAll(page.Text, "\r\n", "\n")
		for _, block := range blockSep.Split(text, -1) {
			var prose []string
			flush := func() {
				for _, para := range s.paragraphs(strings.Join(prose, "\n")) {
					if utf8.RuneCountInString(para) <= s.maxParagraph {
						emit(page.Number, para, domain.UnitParagraph)
						continue
					}
					for _, sentence := range s.sentences(para) {
						emit(page.Number, sentence, domain.UnitSentence)
					}
				}
				prose = prose[:0]
			}

			for _, line := range strings.Split(block, "\n") {
				if row, ok := s.tableRow(line); ok {
					flush()
					emit(page.Number, row, domain.UnitTableRow)
					continue
				}
				prose = append(prose, line)
			}
			flush()
		}
	}
	return units
}

// paragraphs splits prose on wide gaps and drops fragments that are too short.
func (s *Segmenter) paragraphs(text string) []string {
	var out []string
	for _, part := range paragraphSep.Split(strings.TrimSpace(text), -1) {
		part = normalise(part)
		if part == "" || utf8.RuneCountInString(part) < s.minLength {
			continue
		}
		out = append(out, part)
	}
	return out
}

// tableRow recognises a line with enough cells and at least one letter.
// Cells split only on wide gaps also need a numeric cell, so justified prose
// is not mistaken for a table.
func (s *Segmenter) tableRow(line string) (string, bool) {
	if strings.TrimSpace(line) == "" {
		return "", false
	}
	var (
		cells   []string
		numeric bool
	)
	for _, cell := range cellSep.Split(line, -1) {
		if cell = strings.TrimSpace(cell); cell != "" {
			cells = append(cells, cell)
			numeric = numeric || numericCell.MatchString(cell)
		}
	}
	if len(cells) < s.minCells {
		return "", false
	}
	if !numeric && !strings.ContainsAny(line, "\t|") {
		return "", false
	}
	row := strings.Join(cells, " | ")
	if strings.IndexFunc(row, unicode.IsLetter) < 0 {
		return "", false
	}
	return row, true
}

// sentences splits at '.', '!' or '?' followed by whitespace and an upper
// case letter or digit. Sentences shorter than the minimum length are
// merged into the next one.
func (s *Segmenter) sentences(para string) []string {
	runes := []rune(para)
	var (
		out     []string
		pending strings.Builder
		start   int
	)
	push := func(end int) {
		chunk := strings.TrimSpace(string(runes[start:end]))
		start = end
		if chunk == "" {
			return
		}
		if pending.Len() > 0 {
			pending.WriteString(" ")
		}
		pending.WriteString(chunk)
		if utf8.RuneCountInString(pending.String()) >= s.minLength {
			out = append(out, pending.String())
			pending.Reset()
		}
	}

	for i := 0; i < len(runes)-2; i++ {
		switch runes[i] {
		case '.', '!', '?':
		default:
			continue
		}
		if !unicode.IsSpace(runes[i+1]) {
			continue
		}
		next := runes[i+2]
		if unicode.IsUpper(next) || unicode.IsDigit(next) {
			push(i + 1)
		}
	}
	push(len(runes))

	// A short tail is attached to the previous sentence.
	if tail := strings.TrimSpace(pending.String()); tail != "" {
		if len(out) == 0 {
			out = append(out, tail)
		} else {
			out[len(out)-1] += " " + tail
		}
	}
	return out
}

func normalise(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}
