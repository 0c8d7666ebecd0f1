package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/esgrag/internal/core/ports/driven"
)

// Ensure SynonymStore implements the interface.
var _ driven.SynonymTable = (*SynonymStore)(nil)

// synonymsFile is the user-editable synonym table.
const synonymsFile = "synonyms.toml"

// DefaultSynonyms is the built-in ESG synonym table. Each head term maps to
// the terms it is related to.
var DefaultSynonyms = map[string][]string{
	"disclosure":     {"reporting", "transparency", "statement", "publication", "announcement"},
	"compliance":     {"adherence", "conformity", "observance", "alignment", "fulfillment"},
	"emissions":      {"ghg", "carbon", "co2", "tco2e", "scope 1", "scope 2", "pollution", "greenhouse gas", "exhaust"},
	"governance":     {"management", "oversight", "control", "administration", "stewardship"},
	"sustainability": {"environmental", "esg", "green", "sustainable", "eco-friendly"},
	"risk":           {"exposure", "hazard", "threat", "vulnerability", "uncertainty"},
	"stakeholder":    {"investor", "partner", "community", "shareholder", "participant"},
	"metric":         {"measure", "indicator", "value", "performance", "benchmark"},
	"policy":         {"guideline", "regulation", "rule", "procedure", "protocol"},
	"must":           {"shall", "required", "obligatory", "mandatory", "essential"},
	"report":         {"disclose", "publish", "submit", "document", "record"},
	"engagement":     {"involvement", "participation", "consultation", "collaboration", "interaction"},
	"remuneration":   {"compensation", "salary", "pay", "benefits", "wages"},
	"supply chain":   {"value chain", "logistics", "procurement", "suppliers", "distribution"},
	"revenue": {
		"income", "sales", "turnover", "earnings", "proceeds", "cash flow", "returns", "gross revenue",
	},
	"profit": {
		"net income", "earnings", "margin", "surplus", "gain", "return", "benefit", "net profit",
	},
	"financial returns": {"returns", "dividends", "yield", "profit", "gain", "earnings", "roi"},
	"local economic contributions": {
		"taxes", "investments", "community support", "local spending", "economic impact", "regional development",
	},
	"stakeholder engagement process": {
		"consultation process", "stakeholder involvement", "decision-making engagement",
	},
	"compensation structure":                   {"remuneration structure", "pay structure", "compensation policy"},
	"supply chain details":                     {"supply chain structure", "supplier details", "procurement details"},
	"stakeholder engagement on sustainability": {"sustainability engagement", "stakeholder sustainability"},
	"remuneration details":                     {"compensation details", "pay details", "remuneration policy"},
	"waste":                                    {"refuse", "debris", "scrap", "disposal"},
	"energy":                                   {"power", "electricity", "fuel", "consumption"},
	"water":                                    {"usage", "consumption", "supply", "resource"},
	"jobs":                                     {"employment", "hiring", "positions", "workforce"},
	"investment":                               {"funding", "capital", "expenditure", "financing"},
	"corruption":                               {"bribery", "fraud", "misconduct", "unethical practices"},
}

// SynonymStore serves the synonym table from a TOML file in the config
// directory, merged over DefaultSynonyms.
//
// The store uses lazy initialisation: the file is written with the defaults
// on first lookup when it does not exist yet. If the file cannot be created or
// parsed the built-in table is served.
type SynonymStore struct {
	mu      sync.RWMutex
	dir     string
	groups  map[string][]string
	related map[string][]string

	initOnce sync.Once
	initErr  error
}

// NewSynonymStore creates a synonym store reading dir/synonyms.toml.
// If dir is empty, defaults to ~/.esgrag/.
func NewSynonymStore(dir string) (*SynonymStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".esgrag")
	}
	return &SynonymStore{dir: dir}, nil
}

// NewStaticSynonyms returns a store serving only the given table.
// It never touches the filesystem.
func NewStaticSynonyms(groups map[string][]string) *SynonymStore {
	s := &SynonymStore{}
	s.initOnce.Do(func() { s.build(groups) })
	return s
}

// Path returns the synonym file path.
func (s *SynonymStore) Path() string {
	if s.dir == "" {
		return ""
	}
	return filepath.Join(s.dir, synonymsFile)
}

// Err returns the error that made the store fall back to the built-in table.
func (s *SynonymStore) Err() error {
	s.initOnce.Do(s.initialise)
	return s.initErr
}

// Related returns every term sharing a group with word, excluding word.
// A word belongs to a group when it is the head term or one of its members.
func (s *SynonymStore) Related(word string) []string {
	s.initOnce.Do(s.initialise)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.related[strings.ToLower(strings.TrimSpace(word))]
}

// Len returns the number of head terms.
func (s *SynonymStore) Len() int {
	s.initOnce.Do(s.initialise)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.groups)
}

// Reload re-reads the synonym file.
func (s *SynonymStore) Reload() error {
	groups, err := s.readFile()
	if err != nil {
		return err
	}
	s.build(groups)
	return nil
}

// initialise writes the default file when missing and loads it.
// Called once via sync.Once on first lookup.
func (s *SynonymStore) initialise() {
	groups, err := s.readFile()
	if err != nil {
		s.initErr = err
		groups = DefaultSynonyms
	}
	s.build(groups)
}

func (s *SynonymStore) readFile() (map[string][]string, error) {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return nil, fmt.Errorf("create synonym directory: %w", err)
	}

	path := s.Path()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		data, err = toml.Marshal(DefaultSynonyms)
		if err != nil {
			return nil, fmt.Errorf("encode default synonyms: %w", err)
		}
		if err := os.WriteFile(path, data, 0600); err != nil {
			return nil, fmt.Errorf("create default synonyms: %w", err)
		}
		return DefaultSynonyms, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read synonyms: %w", err)
	}

	var loaded map[string][]string
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	merged := make(map[string][]string, len(DefaultSynonyms)+len(loaded))
	for k, v := range DefaultSynonyms {
		merged[k] = v
	}
	for k, v := range loaded {
		merged[strings.ToLower(k)] = v
	}
	return merged, nil
}

// build indexes every term of every group.
func (s *SynonymStore) build(groups map[string][]string) {
	sets := make(map[string]map[string]struct{})
	add := func(term string, group []string) {
		set, ok := sets[term]
		if !ok {
			set = make(map[string]struct{})
			sets[term] = set
		}
		for _, g := range group {
			if g != term {
				set[g] = struct{}{}
			}
		}
	}

	normalised := make(map[string][]string, len(groups))
	for head, members := range groups {
		head = strings.ToLower(strings.TrimSpace(head))
		group := []string{head}
		for _, m := range members {
			if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
				group = append(group, m)
			}
		}
		normalised[head] = group[1:]
		for _, term := range group {
			add(term, group)
		}
	}

	related := make(map[string][]string, len(sets))
	for term, set := range sets {
		list := make([]string, 0, len(set))
		for r := range set {
			list = append(list, r)
		}
		sort.Strings(list)
		related[term] = list
	}

	s.mu.Lock()
	s.groups = normalised
	s.related = related
	s.mu.Unlock()
}
