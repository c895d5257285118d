package retrieval

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/DreamCats/corep/internal/corpus"
)

const (
	minWordLen = 3
	// rowBonus rewards query words that look like template row ids (r0010)
	rowBonus = 3
)

// queryWords lowercases the query and keeps whitespace-separated words
// longer than two characters. Repeated words are kept.
func queryWords(query string) []string {
	fields := strings.Fields(query)
	words := make([]string, 0, len(fields))
	for _, w := range fields {
		if utf8.RuneCountInString(w) < minWordLen {
			continue
		}
		words = append(words, strings.ToLower(w))
	}
	return words
}

// keywordScore counts query words found in the chunk's text or keywords
func keywordScore(words []string, searchText string) int {
	score := 0
	for _, w := range words {
		if !strings.Contains(searchText, w) {
			continue
		}
		score++
		if strings.HasPrefix(w, "r0") {
			score += rowBonus
		}
	}
	return score
}

type scored struct {
	index int
	score float64
}

// rankStable sorts by descending score; equal scores keep corpus order
func rankStable(results []scored) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
}

func (e *Engine) keywordSearch(query string, topK int) []Passage {
	words := queryWords(query)

	results := make([]scored, len(e.searchText))
	for i, text := range e.searchText {
		results[i] = scored{index: i, score: float64(keywordScore(words, text))}
	}
	rankStable(results)

	return e.passages(results, topK, StrategyKeyword)
}

func (e *Engine) passages(results []scored, topK int, strategy Strategy) []Passage {
	if len(results) > topK {
		results = results[:topK]
	}
	out := make([]Passage, len(results))
	for i, r := range results {
		out[i] = newPassage(e.corpus.At(r.index), r.score, strategy)
	}
	return out
}

func newPassage(ch corpus.Chunk, score float64, strategy Strategy) Passage {
	return Passage{
		ChunkID:    ch.ID,
		Text:       ch.Text,
		Source:     ch.Source,
		SectionRef: ch.SectionRef,
		Score:      score,
		Strategy:   strategy,
	}
}
