// Package retrieval ranks regulatory passages for a query.
//
// Semantic search needs the vector cache and an embedding provider; any
// failure on that path degrades to keyword search, so Retrieve never
// returns an error to its caller.
package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/DreamCats/corep/internal/corpus"
	"github.com/DreamCats/corep/internal/embedding"
	"github.com/DreamCats/corep/internal/vectorcache"
)

// DefaultTopK is used when Retrieve is called with topK <= 0
const DefaultTopK = 5

// Passage is one ranked chunk. Scores are only comparable within a strategy.
type Passage struct {
	ChunkID    string   `json:"chunk_id"`
	Text       string   `json:"text"`
	Source     string   `json:"source"`
	SectionRef string   `json:"section_ref"`
	Score      float64  `json:"score"`
	Strategy   Strategy `json:"strategy"`
}

// QueryEmbedder embeds a single query. *embedding.Service satisfies it.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options configures an Engine
type Options struct {
	DefaultTopK int
	Synonyms    *SynonymsExpander
	Logger      *zap.Logger
}

// Engine answers retrieval requests over one corpus.
// It is safe for concurrent use.
type Engine struct {
	corpus     *corpus.Corpus
	cache      *vectorcache.Cache
	embedder   QueryEmbedder
	auto       Strategy
	topK       int
	searchText []string
	fulltext   *fulltextIndex
	synonyms   *SynonymsExpander
	logger     *zap.Logger
}

// New creates an engine. cache and embedder may both be nil, in which case
// auto resolves to keyword search.
func New(c *corpus.Corpus, cache *vectorcache.Cache, embedder QueryEmbedder, opts Options) *Engine {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = DefaultTopK
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	e := &Engine{
		corpus:     c,
		cache:      cache,
		embedder:   embedder,
		topK:       opts.DefaultTopK,
		searchText: make([]string, c.Len()),
		synonyms:   opts.Synonyms,
		logger:     opts.Logger,
	}
	for i := 0; i < c.Len(); i++ {
		e.searchText[i] = c.At(i).SearchText()
	}

	// Routing for auto is fixed for the engine's lifetime
	e.auto = StrategyKeyword
	if embedder != nil && cache != nil {
		e.auto = StrategySemantic
	}

	idx, err := newFulltextIndex(c)
	if err != nil {
		e.logger.Warn("full-text index unavailable, fulltext strategy will use keyword search", zap.Error(err))
	} else {
		e.fulltext = idx
	}

	return e
}

// AutoStrategy returns what StrategyAuto resolves to for this engine
func (e *Engine) AutoStrategy() Strategy {
	return e.auto
}

// Retrieve returns at most topK passages in descending score order
func (e *Engine) Retrieve(ctx context.Context, query string, topK int, strategy Strategy) []Passage {
	if topK <= 0 {
		topK = e.topK
	}

	switch strategy {
	case StrategyKeyword:
		return e.keywordSearch(query, topK)
	case StrategySemantic:
		return e.semanticSearch(ctx, query, topK)
	case StrategyFulltext:
		return e.fulltextSearch(query, topK)
	default:
		if e.auto == StrategySemantic {
			return e.semanticSearch(ctx, query, topK)
		}
		return e.keywordSearch(query, topK)
	}
}

// Close releases the full-text index
func (e *Engine) Close() error {
	if e.fulltext == nil {
		return nil
	}
	return e.fulltext.Close()
}

func (e *Engine) semanticSearch(ctx context.Context, query string, topK int) []Passage {
	if e.cache == nil || e.embedder == nil {
		return e.keywordSearch(query, topK)
	}

	if !e.cache.Ensure(ctx) {
		e.logger.Warn("vector cache unavailable, falling back to keyword search")
		return e.keywordSearch(query, topK)
	}

	qvec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Warn("query embedding failed, falling back to keyword search", zap.Error(err))
		return e.keywordSearch(query, topK)
	}

	chunks := e.cache.Normalized()
	if len(chunks) != e.corpus.Len() {
		e.logger.Warn("vector cache does not cover the corpus, falling back to keyword search",
			zap.Int("vectors", len(chunks)),
			zap.Int("chunks", e.corpus.Len()))
		return e.keywordSearch(query, topK)
	}
	if dim := e.cache.Dimension(); len(qvec) != dim {
		e.logger.Warn("query vector dimension mismatch, falling back to keyword search",
			zap.Int("query", len(qvec)),
			zap.Int("cache", dim))
		return e.keywordSearch(query, topK)
	}

	q := embedding.Normalize(qvec)
	results := make([]scored, len(chunks))
	for i, vec := range chunks {
		results[i] = scored{index: i, score: embedding.Dot(q, vec)}
	}
	rankStable(results)

	return e.passages(results, topK, StrategySemantic)
}
