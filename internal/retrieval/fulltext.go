package retrieval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/DreamCats/corep/internal/corpus"
)

// chunkDoc is what the full-text index stores per chunk
type chunkDoc struct {
	Content  string `json:"content"`
	Keywords string `json:"keywords"`
	Section  string `json:"section"`
}

type fulltextIndex struct {
	index    bleve.Index
	position map[string]int
	size     int
}

func newFulltextIndex(c *corpus.Corpus) (*fulltextIndex, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}

	batch := index.NewBatch()
	position := make(map[string]int, c.Len())
	for i := 0; i < c.Len(); i++ {
		ch := c.At(i)
		doc := chunkDoc{
			Content:  ch.Text,
			Keywords: strings.Join(ch.Keywords, " "),
			Section:  ch.Source + " " + ch.SectionRef,
		}
		if err := batch.Index(ch.ID, doc); err != nil {
			index.Close()
			return nil, fmt.Errorf("index chunk %s: %w", ch.ID, err)
		}
		position[ch.ID] = i
	}
	if err := index.Batch(batch); err != nil {
		index.Close()
		return nil, fmt.Errorf("apply index batch: %w", err)
	}

	return &fulltextIndex{index: index, position: position, size: c.Len()}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = "en"
	indexMapping.DefaultField = "content"

	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Store = false
	contentField.Index = true
	docMapping.AddFieldMappingsAt("content", contentField)

	keywordsField := bleve.NewTextFieldMapping()
	keywordsField.Store = false
	keywordsField.Index = true
	docMapping.AddFieldMappingsAt("keywords", keywordsField)

	sectionField := bleve.NewTextFieldMapping()
	sectionField.Store = false
	sectionField.Index = true
	docMapping.AddFieldMappingsAt("section", sectionField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// search returns every matching chunk, ranked by relevance then corpus order.
// text is matched term by term; each synonym is matched as a phrase.
func (f *fulltextIndex) search(text string, synonyms []string) ([]scored, error) {
	var clauses []query.Query
	for _, field := range []string{"content", "keywords", "section"} {
		if strings.TrimSpace(text) != "" {
			q := bleve.NewMatchQuery(text)
			q.SetField(field)
			clauses = append(clauses, q)
		}
		for _, term := range synonyms {
			q := bleve.NewMatchPhraseQuery(term)
			q.SetField(field)
			clauses = append(clauses, q)
		}
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(clauses...), f.size, 0, false)
	res, err := f.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}

	results := make([]scored, 0, len(res.Hits))
	for _, hit := range res.Hits {
		i, ok := f.position[hit.ID]
		if !ok {
			continue
		}
		results = append(results, scored{index: i, score: hit.Score})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })
	rankStable(results)
	return results, nil
}

func (f *fulltextIndex) Close() error {
	return f.index.Close()
}

func (e *Engine) fulltextSearch(query string, topK int) []Passage {
	if e.fulltext == nil {
		return e.keywordSearch(query, topK)
	}

	results, err := e.fulltext.search(query, e.synonyms.Expand(query))
	if err != nil {
		e.logger.Warn("full-text search failed, falling back to keyword search", zap.Error(err))
		return e.keywordSearch(query, topK)
	}
	if len(results) == 0 {
		return e.keywordSearch(query, topK)
	}

	return e.passages(results, topK, StrategyFulltext)
}
