package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/corep/internal/analyzer"
	"github.com/DreamCats/corep/internal/corpus"
	"github.com/DreamCats/corep/internal/retrieval"
	"github.com/DreamCats/corep/internal/template"
)

func newEngine(t *testing.T) *retrieval.Engine {
	t.Helper()
	c, err := corpus.New([]corpus.Chunk{
		{ID: "crr_72", Text: "Own funds consist of the sum of Tier 1 capital and Tier 2 capital.", Source: "CRR", SectionRef: "Article 72"},
		{ID: "crr_36", Text: "Institutions shall deduct goodwill from Common Equity Tier 1 items.", Source: "CRR", SectionRef: "Article 36"},
	})
	require.NoError(t, err)

	e := retrieval.New(c, nil, nil, retrieval.Options{})
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func field(id string, v float64) template.PopulatedField {
	return template.PopulatedField{FieldID: id, FieldName: id, Value: v, Confidence: template.ConfidenceHigh}
}

// A consistent C 01.00 population: CET1 1000, AT1 200, T2 300
func consistentFields() []template.PopulatedField {
	return []template.PopulatedField{
		field("r0010_c0010", 1500),
		field("r0020_c0010", 1200),
		field("r0030_c0010", 1000),
		field("r0040_c0010", 1000),
		field("r0050_c0010", 1000),
		field("r0300_c0010", 200),
		field("r0500_c0010", 300),
	}
}

type failingAnalyzer struct{}

func (failingAnalyzer) Analyze(ctx context.Context, query string, scenario template.Scenario, passages []retrieval.Passage) (*template.Analysis, error) {
	return nil, errors.New("quota exceeded")
}

func TestPipeline_Run(t *testing.T) {
	fixed := analyzer.NewFixed(&template.Analysis{Fields: consistentFields()})
	p := NewPipeline(newEngine(t), fixed, nil)

	r, err := p.Run(context.Background(), Request{
		Query:    "how is goodwill treated",
		Scenario: template.DefaultScenario(),
		TopK:     1,
		Strategy: retrieval.StrategyKeyword,
	})
	require.NoError(t, err)

	require.Len(t, r.Passages, 1)
	assert.Equal(t, "crr_36", r.Passages[0].ChunkID)
	assert.Len(t, r.Fields, 7)
	assert.Len(t, r.Validation, 6)
	assert.Equal(t, 6, r.Passed)
	assert.Equal(t, 0, r.Failed)
	assert.Empty(t, r.Warnings)
	assert.NotEqual(t, [16]byte{}, [16]byte(r.RunID))
}

func TestPipeline_RunAnalyzerError(t *testing.T) {
	p := NewPipeline(newEngine(t), failingAnalyzer{}, nil)

	_, err := p.Run(context.Background(), Request{Query: "own funds", Scenario: template.DefaultScenario()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestNew_DuplicateRowsWarn(t *testing.T) {
	fields := append(consistentFields(), field("r0010_c0010", 0))
	r := New("q", retrieval.StrategyKeyword, template.DefaultScenario(), nil, &template.Analysis{
		Fields:   fields,
		Warnings: []string{"AT1 assumed fully eligible"},
	})

	require.Len(t, r.Warnings, 2)
	assert.Equal(t, "AT1 assumed fully eligible", r.Warnings[0])
	assert.Contains(t, r.Warnings[1], "row r0010")

	// last value wins: own funds 0 breaks V001
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, "V001", r.Validation[0].RuleID)
	assert.False(t, r.Validation[0].Passed)
}

func TestWriteText(t *testing.T) {
	fields := consistentFields()
	fields[0].Reasoning = "CET1 + AT1 + T2"
	fields[0].Citations = []string{"CRR Art. 72"}
	r := New("own funds", retrieval.StrategyKeyword, template.DefaultScenario(),
		[]retrieval.Passage{{ChunkID: "crr_72", Source: "CRR", SectionRef: "Article 72"}},
		&template.Analysis{Fields: fields, Warnings: []string{"no T2 amortisation data"}})

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, r, true))
	out := buf.String()

	assert.Contains(t, out, "Bank:  Bank (2025-12-31, GBP)")
	assert.Contains(t, out, "1. [CRR - Article 72] crr_72")
	assert.Contains(t, out, "r0010_c0010")
	assert.Contains(t, out, "1,500")
	assert.Contains(t, out, "Sources: CRR Art. 72")
	assert.Contains(t, out, "  - no T2 amortisation data")
	assert.Contains(t, out, "[PASS] V001")
	assert.Contains(t, out, "6 passed, 0 failed")
}

func TestWriteValidation_ShowsMessages(t *testing.T) {
	r := New("q", retrieval.StrategyKeyword, template.DefaultScenario(), nil, &template.Analysis{
		Fields: []template.PopulatedField{field("r0020_c0010", 100)},
	})

	var buf bytes.Buffer
	WriteValidation(&buf, r.Validation)
	assert.Contains(t, buf.String(), "[FAIL] V001")
	assert.Contains(t, buf.String(), "r0010 (0) != r0020 (100) + r0500 (0) = 100")
}

func TestWriteJSON(t *testing.T) {
	r := New("q", retrieval.StrategyFulltext, template.DefaultScenario(), nil, &template.Analysis{Fields: consistentFields()})

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, r))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "fulltext", decoded["strategy"])
	assert.Equal(t, r.RunID.String(), decoded["run_id"])
	assert.EqualValues(t, 6, decoded["passed"])
}

func TestFormatAmount(t *testing.T) {
	tests := map[float64]string{
		0:          "0",
		999:        "999",
		1000:       "1,000",
		-1234567.5: "-1,234,567.5",
		12.3456:    "12.35",
		-0.001:     "0",
	}
	for v, want := range tests {
		assert.Equal(t, want, formatAmount(v), "%v", v)
	}
}
