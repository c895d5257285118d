package retrieval

import (
	"fmt"
	"strings"
)

// Strategy selects how passages are ranked
type Strategy string

const (
	// StrategyAuto uses semantic search when an embedder is configured, else keyword
	StrategyAuto Strategy = "auto"
	// StrategySemantic ranks by cosine similarity of embeddings
	StrategySemantic Strategy = "semantic"
	// StrategyKeyword ranks by query word overlap
	StrategyKeyword Strategy = "keyword"
	// StrategyFulltext ranks by relevance over an in-memory full-text index
	StrategyFulltext Strategy = "fulltext"
)

// Strategies lists every accepted strategy name
var Strategies = []Strategy{StrategyAuto, StrategySemantic, StrategyKeyword, StrategyFulltext}

// ParseStrategy converts user input into a Strategy. Empty input means auto.
func ParseStrategy(s string) (Strategy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StrategyAuto, nil
	}
	for _, st := range Strategies {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown retrieval strategy %q (want one of auto, semantic, keyword, fulltext)", s)
}

func (s Strategy) String() string {
	return string(s)
}
