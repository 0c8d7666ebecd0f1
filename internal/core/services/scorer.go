package services

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
)

// ScoreInput is one (criterion, candidate) pair with precomputed vectors.
type ScoreInput struct {
	Criterion       string
	Candidate       string
	CriterionVector []float32
	CandidateVector []float32
}

// Score is the combined relevance of a candidate and the signals behind it.
type Score struct {
	Value      float64
	Similarity float64
	Overlap    float64
	Synonym    float64
	Exact      bool
}

// maxInexactScore is the largest value a candidate without an exact match
// can score.
var maxInexactScore = math.Nextafter(1, 0)

// Scorer combines vector similarity with token overlap and synonym hits.
// Short ESG criteria embed poorly on their own, so the lexical signals act as
// boosts on top of the cosine similarity.
type Scorer struct {
	cfg      domain.ScorerSettings
	synonyms driven.SynonymTable
}

// NewScorer creates a scorer. A nil synonym table disables the synonym signal.
func NewScorer(cfg domain.ScorerSettings, synonyms driven.SynonymTable) *Scorer {
	return &Scorer{cfg: cfg, synonyms: synonyms}
}

// Score rates a candidate in [0,1]. A missing or mismatched vector returns
// domain.ErrDimensionMismatch and the candidate should be dropped.
func (s *Scorer) Score(in ScoreInput) (Score, error) {
	if len(in.CriterionVector) == 0 || len(in.CandidateVector) != len(in.CriterionVector) {
		return Score{}, fmt.Errorf("%w: criterion vector %d, candidate vector %d",
			domain.ErrDimensionMismatch, len(in.CriterionVector), len(in.CandidateVector))
	}

	if ContainsExact(in.Candidate, in.Criterion) {
		return Score{Value: 1, Similarity: 1, Overlap: 1, Synonym: 1, Exact: true}, nil
	}

	criterionTokens := ContentTokens(in.Criterion)
	candidateWords := words(in.Candidate)
	candidateTokens := tokenSet(candidateWords)

	var score Score
	score.Similarity = clamp01(cosine(in.CriterionVector, in.CandidateVector))
	if len(criterionTokens) > 0 {
		shared := 0
		for tok := range criterionTokens {
			if _, ok := candidateTokens[tok]; ok {
				shared++
			}
		}
		score.Overlap = float64(shared) / float64(len(criterionTokens))

		hits := s.synonymHits(in.Criterion, criterionTokens, candidateWords)
		score.Synonym = math.Min(1, float64(hits)/float64(len(criterionTokens)))
	}

	weighted := s.cfg.WeightSimilarity*score.Similarity +
		s.cfg.WeightOverlap*score.Overlap +
		s.cfg.WeightSynonym*score.Synonym
	// Only an exact match may reach 1.
	score.Value = math.Min(maxInexactScore, clamp01(weighted))
	return score, nil
}

// synonymHits counts distinct related terms of the criterion that appear in
// the candidate. Terms that are themselves criterion tokens do not count.
func (s *Scorer) synonymHits(criterion string, criterionTokens map[string]struct{}, candidateWords []string) int {
	if s.synonyms == nil {
		return 0
	}

	critWords := words(criterion)
	related := make(map[string]struct{})
	lookup := func(term string) {
		for _, r := range s.synonyms.Related(term) {
			related[r] = struct{}{}
		}
	}
	// Heads may span several words ("supply chain"), so try every n-gram.
	for n := 1; n <= 3; n++ {
		for i := 0; i+n <= len(critWords); i++ {
			lookup(strings.Join(critWords[i:i+n], " "))
			if n == 1 {
				lookup(fold(critWords[i]))
			}
		}
	}
	if len(critWords) > 3 {
		lookup(strings.Join(critWords, " "))
	}

	haystack := " " + strings.Join(candidateWords, " ") + " "
	hits := 0
	for term := range related {
		termWords := words(term)
		if len(termWords) == 0 {
			continue
		}
		if len(termWords) == 1 {
			if _, own := criterionTokens[fold(termWords[0])]; own {
				continue
			}
		}
		if strings.Contains(haystack, " "+strings.Join(termWords, " ")+" ") {
			hits++
		}
	}
	return hits
}

// ThresholdPolicy picks the acceptance threshold for a category. Categories
// that are sparse in the index get a lower bar so they are not starved.
type ThresholdPolicy struct {
	cfg    domain.ScorerSettings
	counts map[string]int
	total  int
}

// NewThresholdPolicy builds a policy from index statistics.
func NewThresholdPolicy(cfg domain.ScorerSettings, stats domain.IndexStats) *ThresholdPolicy {
	total := stats.Live
	if total == 0 {
		for _, n := range stats.Categories {
			total += n
		}
	}
	return &ThresholdPolicy{cfg: cfg, counts: stats.Categories, total: total}
}

// For returns the threshold for category. Uncategorised queries and
// categories absent from the index use the default threshold.
func (p *ThresholdPolicy) For(category string) float64 {
	if category == "" || p.total == 0 {
		return p.cfg.DefaultThreshold
	}
	n, ok := p.counts[category]
	if !ok {
		return p.cfg.DefaultThreshold
	}
	share := float64(n) / float64(p.total)
	switch {
	case share < p.cfg.TierLow:
		return p.cfg.ThresholdLow
	case share < p.cfg.TierMid:
		return p.cfg.ThresholdMid
	default:
		return p.cfg.ThresholdHigh
	}
}

var (
	wordPattern  = regexp.MustCompile(`[\p{L}\p{N}]+`)
	spacePattern = regexp.MustCompile(`\s+`)
)

var scorerStopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {}, "with": {},
	"that": {}, "this": {}, "these": {}, "those": {}, "from": {}, "into": {}, "its": {},
	"their": {}, "our": {}, "has": {}, "have": {}, "had": {}, "been": {}, "not": {},
	"all": {}, "any": {}, "can": {}, "per": {}, "such": {}, "than": {}, "also": {},
	"which": {}, "who": {}, "whom": {}, "what": {}, "when": {}, "where": {}, "how": {},
	"there": {}, "other": {}, "each": {}, "more": {}, "most": {}, "some": {}, "about": {},
	"over": {}, "under": {}, "between": {}, "during": {}, "including": {}, "within": {},
	"will": {}, "would": {}, "should": {}, "could": {}, "may": {}, "shall": {}, "must": {},
}

// words returns the lowercased alphanumeric words of text.
func words(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// fold strips a trailing plural "s", leaving "ss" endings alone.
func fold(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return w[:len(w)-1]
	}
	return w
}

// ContentTokens returns the folded content words of text: at least three
// characters long and not a stop word.
func ContentTokens(text string) map[string]struct{} {
	return tokenSet(words(text))
}

func tokenSet(ws []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range ws {
		if utf8.RuneCountInString(w) < 3 {
			continue
		}
		if _, stop := scorerStopWords[w]; stop {
			continue
		}
		out[fold(w)] = struct{}{}
	}
	return out
}

// ContainsExact reports whether criterion appears verbatim in text, ignoring
// case and runs of whitespace. A blank criterion never matches.
func ContainsExact(text, criterion string) bool {
	needle := normaliseSpace(criterion)
	if needle == "" {
		return false
	}
	return strings.Contains(normaliseSpace(text), needle)
}

func normaliseSpace(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(strings.ToLower(s), " "))
}

const valueUnits = `billion|million|thousand|tCO2e|%|tons|tonnes|litres|m³|kWh|MWh|hours|employees|USD|EUR|GBP|BRL`

var quantityPattern = regexp.MustCompile(`(?i)([$€£]?\d[\d,.]*\s*(?:` + valueUnits + `))`)

// ExtractValue finds a quantity disclosed for criterion in text, such as
// "1,200 tCO2e" or "$4.5 million". A quantity directly after the criterion
// wins; otherwise the first quantity with a unit is returned. Empty means the
// passage has no quantitative disclosure.
func ExtractValue(criterion, text string) string {
	if c := strings.TrimSpace(criterion); c != "" {
		labelled := regexp.MustCompile(`(?i)(?:` + regexp.QuoteMeta(c) +
			`)\s*[:=]?\s*([$€£]?[\d,.]+\s*(?:` + valueUnits + `))`)
		if v := firstBounded(labelled, text); v != "" {
			return v
		}
	}
	return firstBounded(quantityPattern, text)
}

// firstBounded returns the first submatch not running into a following word,
// so "12 hoursly" or "5 tonsils" are not read as quantities.
func firstBounded(re *regexp.Regexp, text string) string {
	for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
		end := loc[1]
		if end < len(text) {
			r, _ := utf8.DecodeRuneInString(text[end:])
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				continue
			}
		}
		v := strings.TrimSpace(text[loc[2]:loc[3]])
		if strings.Trim(v, "$€£,.") == "" {
			continue
		}
		return v
	}
	return ""
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
