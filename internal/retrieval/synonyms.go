package retrieval

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type synonymsFile struct {
	Version  int                 `yaml:"version"`
	Synonyms map[string][]string `yaml:"synonyms"`
}

// DefaultSynonyms maps common own-funds abbreviations to their long forms
var DefaultSynonyms = map[string][]string{
	"cet1":          {"common equity tier 1"},
	"at1":           {"additional tier 1"},
	"t2":            {"tier 2"},
	"aoci":          {"accumulated other comprehensive income"},
	"dta":           {"deferred tax assets"},
	"crr":           {"capital requirements regulation"},
	"own funds":     {"total capital"},
	"rwa":           {"risk weighted assets", "risk weighted exposure amount"},
	"share premium": {"share premium accounts"},
}

// SynonymsExpander adds long-form regulatory terms to full-text queries
type SynonymsExpander struct {
	groups []synonymGroup
}

type synonymGroup struct {
	terms []string // normalized, canonical first
}

// LoadSynonymsFile reads a YAML synonyms file and merges it over
// DefaultSynonyms. A missing file yields the defaults.
func LoadSynonymsFile(path string) (*SynonymsExpander, error) {
	if strings.TrimSpace(path) == "" {
		return NewSynonymsExpander(DefaultSynonyms), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewSynonymsExpander(DefaultSynonyms), nil
		}
		return nil, fmt.Errorf("read synonyms file: %w", err)
	}

	var file synonymsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse synonyms file: %w", err)
	}

	merged := make(map[string][]string, len(DefaultSynonyms)+len(file.Synonyms))
	for k, v := range DefaultSynonyms {
		merged[k] = v
	}
	for k, v := range file.Synonyms {
		merged[k] = v
	}
	return NewSynonymsExpander(merged), nil
}

// NewSynonymsExpander builds an expander from canonical term -> aliases
func NewSynonymsExpander(synonyms map[string][]string) *SynonymsExpander {
	keys := make([]string, 0, len(synonyms))
	for k := range synonyms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([]synonymGroup, 0, len(keys))
	for _, canonical := range keys {
		terms := uniqueTerms(append([]string{canonical}, synonyms[canonical]...))
		if len(terms) < 2 {
			continue
		}
		groups = append(groups, synonymGroup{terms: terms})
	}

	if len(groups) == 0 {
		return nil
	}
	return &SynonymsExpander{groups: groups}
}

// Expand returns the terms of every group the query mentions that are not
// already in the query, in group order without repeats.
func (e *SynonymsExpander) Expand(query string) []string {
	if e == nil {
		return nil
	}
	normQuery := " " + normalizeTerm(query) + " "
	if strings.TrimSpace(normQuery) == "" {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, g := range e.groups {
		if !mentionsAny(normQuery, g.terms) {
			continue
		}
		for _, term := range g.terms {
			if seen[term] || strings.Contains(normQuery, " "+term+" ") {
				continue
			}
			seen[term] = true
			out = append(out, term)
		}
	}
	return out
}

// mentionsAny matches whole words only, so "t2" does not match "at2b"
func mentionsAny(normQuery string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(normQuery, " "+term+" ") {
			return true
		}
	}
	return false
}

func uniqueTerms(terms []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		norm := normalizeTerm(term)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	return out
}

func normalizeTerm(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return ""
	}
	term = strings.NewReplacer("_", " ", "-", " ", ",", " ", ".", " ", "?", " ", "(", " ", ")", " ").Replace(term)
	return strings.Join(strings.Fields(term), " ")
}
