package mcpserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/corep/internal/analyzer"
	"github.com/DreamCats/corep/internal/retrieval"
	"github.com/DreamCats/corep/internal/store"
	"github.com/DreamCats/corep/internal/template"
)

type fakeRetriever struct {
	strategy retrieval.Strategy
	topK     int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, topK int, strategy retrieval.Strategy) []retrieval.Passage {
	f.strategy, f.topK = strategy, topK
	if query == "nothing" {
		return nil
	}
	return []retrieval.Passage{{ChunkID: "crr_art_36_1", Source: "CRR", SectionRef: "Article 36(1)", Strategy: retrieval.StrategyKeyword}}
}

type fakeStats struct {
	stats *store.CacheStats
	err   error
}

func (f fakeStats) Stats(ctx context.Context) (*store.CacheStats, error) {
	return f.stats, f.err
}

type fakeCache struct{ current bool }

func (f fakeCache) Resident() bool { return false }
func (f fakeCache) Load(ctx context.Context) bool { return f.current }

func newServer(opts Options) (*Server, *fakeRetriever) {
	r := &fakeRetriever{}
	opts.Retriever = r
	if opts.Stats == nil {
		opts.Stats = fakeStats{stats: &store.CacheStats{}}
	}
	if opts.Cache == nil {
		opts.Cache = fakeCache{}
	}
	return New(opts), r
}

func TestRetrieveTool(t *testing.T) {
	s, r := newServer(Options{Strategy: retrieval.StrategyFulltext})
	ctx := context.Background()

	_, out, err := s.retrieveTool(ctx, nil, RetrieveInput{Query: "goodwill", TopK: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, "fulltext", out.Strategy)
	assert.Equal(t, retrieval.StrategyFulltext, r.strategy)
	assert.Equal(t, 3, r.topK)

	_, out, err = s.retrieveTool(ctx, nil, RetrieveInput{Query: "nothing", Strategy: "Keyword"})
	require.NoError(t, err)
	assert.NotNil(t, out.Results)
	assert.Equal(t, retrieval.StrategyKeyword, r.strategy)

	_, _, err = s.retrieveTool(ctx, nil, RetrieveInput{Query: "  "})
	assert.Error(t, err)
	_, _, err = s.retrieveTool(ctx, nil, RetrieveInput{Query: "x", Strategy: "hybrid"})
	assert.Error(t, err)
}

func TestValidateTool(t *testing.T) {
	s, _ := newServer(Options{})

	_, out, err := s.validateTool(context.Background(), nil, ValidateInput{Fields: []FieldValue{
		{FieldID: "r0010_c0010", Value: 100},
		{FieldID: "r0020_c0010", Value: 100},
		{FieldID: "r0020_c0010", Value: 100},
	}})
	require.NoError(t, err)
	require.Len(t, out.Results, 6)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, "V002", out.Results[1].RuleID)
	assert.False(t, out.Results[1].Passed)
	assert.Equal(t, []string{"r0020"}, out.Duplicates)

	_, _, err = s.validateTool(context.Background(), nil, ValidateInput{Fields: []FieldValue{{Value: 1}}})
	assert.Error(t, err)
}

func TestPopulateTool(t *testing.T) {
	fixed := analyzer.NewFixed(&template.Analysis{Fields: []template.PopulatedField{
		{FieldID: "r0010_c0010", Value: -5, Confidence: template.ConfidenceLow},
	}})
	s, _ := newServer(Options{Analyzer: fixed})

	_, out, err := s.populateTool(context.Background(), nil, PopulateInput{
		Query:    "own funds",
		Scenario: map[string]any{"bank_name": "Test Bank", "goodwill": 10},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, "auto", out.Strategy)
	assert.Len(t, out.Passages, 1)
	assert.Equal(t, 2, out.Failed) // V001 and V005
	assert.NotNil(t, out.Warnings)

	_, _, err = s.populateTool(context.Background(), nil, PopulateInput{
		Query:    "own funds",
		Scenario: map[string]any{"goodwill": "lots"},
	})
	assert.Error(t, err)
}

func TestDecodeScenario(t *testing.T) {
	s, err := decodeScenario(map[string]any{"bank_name": "Test Bank", "retained_earnings": 250.5})
	require.NoError(t, err)
	assert.Equal(t, "Test Bank", s.BankName)
	assert.Equal(t, "GBP", s.Currency)
	assert.Equal(t, 250.5, s.RetainedEarnings)

	s, err = decodeScenario(nil)
	require.NoError(t, err)
	assert.Equal(t, template.DefaultScenario(), s)
}

func TestStatusTool(t *testing.T) {
	built := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s, _ := newServer(Options{
		Chunks:   17,
		Semantic: true,
		Stats:    fakeStats{stats: &store.CacheStats{Entries: 17, Dimension: 3072, Model: "gemini-embedding-001", BuiltAt: built, SizeBytes: 2048}},
		Cache:    fakeCache{current: true},
	})
	s.now = func() time.Time { return built.Add(3 * time.Hour) }

	_, out, err := s.statusTool(context.Background(), nil, StatusInput{})
	require.NoError(t, err)
	assert.True(t, out.Current)
	assert.Equal(t, "2026-01-02T03:04:05Z", out.BuiltAt)
	assert.Equal(t, "3.0 hours", out.Age)
	assert.Equal(t, "2.0 KB", out.Size)
	assert.Empty(t, out.StaleReason)
}

func TestStatusTool_StaleAndNoProvider(t *testing.T) {
	s, _ := newServer(Options{
		Chunks: 17,
		Stats:  fakeStats{stats: &store.CacheStats{Entries: 12}},
	})

	_, out, err := s.statusTool(context.Background(), nil, StatusInput{})
	require.NoError(t, err)
	assert.False(t, out.Current)
	assert.Contains(t, out.StaleReason, "Corpus changed")
	assert.Contains(t, out.StaleReason, "No embedding provider")

	s, _ = newServer(Options{Stats: fakeStats{err: errors.New("disk I/O error")}})
	_, out, err = s.statusTool(context.Background(), nil, StatusInput{})
	require.NoError(t, err)
	assert.Contains(t, out.StaleReason, "disk I/O error")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2*1024*1024))
}
