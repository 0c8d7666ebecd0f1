package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/esgrag/internal/core/domain"
	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
)

// Blend of the category assignment score.
const (
	categoryEmbeddingWeight = 0.7
	categoryKeywordWeight   = 0.3
)

// genericCategoryTerms appear across every category of a requirement list.
var genericCategoryTerms = map[string]struct{}{
	"total": {}, "number": {}, "description": {}, "policies": {}, "data": {},
	"report": {}, "company": {}, "information": {}, "general": {},
}

// Categoriser assigns text units to the categories of a requirement list.
// Each category is profiled by the embedding of its criteria and
// descriptions and by keywords weighted against their frequency in it.
type Categoriser struct {
	profiles []categoryProfile
	cfg      domain.ScorerSettings
	digest   string
}

type categoryProfile struct {
	name     string
	vector   []float32
	keywords map[string]float64
}

// NewCategoriser profiles the distinct categories of reqs with one batch
// embedding call. Threshold tiers come from cfg.
func NewCategoriser(
	ctx context.Context, embedder driven.EmbeddingService, reqs []domain.Requirement, cfg domain.ScorerSettings,
) (*Categoriser, error) {
	var names []string
	texts := make(map[string]*strings.Builder)
	for _, r := range reqs {
		name := strings.TrimSpace(r.Category)
		if name == "" {
			continue
		}
		b, ok := texts[name]
		if !ok {
			b = &strings.Builder{}
			texts[name] = b
			names = append(names, name)
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.TrimSpace(r.Criterion + " " + r.Description))
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: requirement list has no categories", domain.ErrInvalidInput)
	}

	docs := make([]string, len(names))
	h := sha256.New()
	for i, name := range names {
		docs[i] = texts[name].String()
		fmt.Fprintf(h, "%s\x1f%s\n", name, docs[i])
	}
	vectors, err := embedder.EmbedBatch(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("embed categories: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("%w: %d vectors for %d categories", domain.ErrDimensionMismatch, len(vectors), len(docs))
	}

	c := &Categoriser{cfg: cfg, digest: hex.EncodeToString(h.Sum(nil))}
	for i, name := range names {
		c.profiles = append(c.profiles, categoryProfile{
			name:     name,
			vector:   vectors[i],
			keywords: categoryKeywords(docs[i]),
		})
	}
	return c, nil
}

// Categories returns the category names in requirement order.
func (c *Categoriser) Categories() []string {
	out := make([]string, len(c.profiles))
	for i, p := range c.profiles {
		out[i] = p.name
	}
	return out
}

// Digest identifies the category profiles. Sources indexed under different
// profiles have different fingerprints.
func (c *Categoriser) Digest() string {
	return c.digest
}

// NewTally starts the assignment counts for one source with every category
// at zero.
func (c *Categoriser) NewTally() map[string]int {
	tally := make(map[string]int, len(c.profiles)+1)
	for _, p := range c.profiles {
		tally[p.name] = 0
	}
	return tally
}

// Assign returns the best category for a unit, or "" when the best score does
// not clear that category's threshold. The threshold tiers follow the
// category's share of tally, which Assign updates.
func (c *Categoriser) Assign(tally map[string]int, text string, vector []float32) string {
	if isZeroVector(vector) {
		tally[""]++
		return ""
	}

	lower := strings.ToLower(text)
	keyword := make([]float64, len(c.profiles))
	var maxKeyword float64
	for i, p := range c.profiles {
		for kw, w := range p.keywords {
			if strings.Contains(lower, kw) {
				keyword[i] += w
			}
		}
		maxKeyword = max(maxKeyword, keyword[i])
	}

	best, bestScore := 0, -1.0
	for i, p := range c.profiles {
		var score float64
		if len(p.vector) == len(vector) {
			score = categoryEmbeddingWeight * cosine(vector, p.vector)
		}
		if maxKeyword > 0 {
			score += categoryKeywordWeight * keyword[i] / maxKeyword
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	name := c.profiles[best].name
	policy := NewThresholdPolicy(c.cfg, domain.IndexStats{Categories: tally})
	if bestScore > policy.For(name) {
		tally[name]++
		return name
	}
	tally[""]++
	return ""
}

// categoryKeywords weights each keyword of a category text inversely to its
// share of the text.
func categoryKeywords(text string) map[string]float64 {
	counts := make(map[string]int)
	total := 0
	for _, w := range words(text) {
		if utf8.RuneCountInString(w) <= 3 {
			continue
		}
		if _, generic := genericCategoryTerms[w]; generic {
			continue
		}
		counts[w]++
		total++
	}
	out := make(map[string]float64, len(counts))
	for w, n := range counts {
		out[w] = 1 / (float64(n)/float64(total) + 0.1)
	}
	return out
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
