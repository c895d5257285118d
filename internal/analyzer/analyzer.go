// Package analyzer asks an LLM to populate template fields from a scenario
// and the retrieved regulatory text.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/DreamCats/corep/internal/retrieval"
	"github.com/DreamCats/corep/internal/template"
)

var (
	// ErrNotConfigured is returned when no API key is available for the model
	ErrNotConfigured = errors.New("analyzer not configured")

	// ErrUnparseable marks a model response that is not a valid analysis
	ErrUnparseable = errors.New("unparseable analyzer response")
)

// Analyzer populates template fields for a scenario
type Analyzer interface {
	Analyze(ctx context.Context, query string, scenario template.Scenario, passages []retrieval.Passage) (*template.Analysis, error)
}

// Response is the raw output of one generation call
type Response struct {
	Text      string
	Truncated bool // the output budget ran out
}

// Generator runs one structured-output generation
type Generator interface {
	Generate(ctx context.Context, prompt string, maxOutputTokens int32) (Response, error)
}

// Options configures a StructuredAnalyzer
type Options struct {
	MaxOutputTokens      int32
	RetryMaxOutputTokens int32
	Logger               *zap.Logger
}

// StructuredAnalyzer builds the prompt, calls the generator and parses its JSON.
// An unparseable answer is retried once with a larger output budget; if that
// fails too the result is empty with an explanatory warning.
type StructuredAnalyzer struct {
	gen    Generator
	schema *template.Schema
	budget []int32
	logger *zap.Logger
}

// New creates an analyzer for schema
func New(gen Generator, schema *template.Schema, opts Options) *StructuredAnalyzer {
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = 16384
	}
	if opts.RetryMaxOutputTokens <= 0 {
		opts.RetryMaxOutputTokens = 2 * opts.MaxOutputTokens
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &StructuredAnalyzer{
		gen:    gen,
		schema: schema,
		budget: []int32{opts.MaxOutputTokens, opts.RetryMaxOutputTokens},
		logger: opts.Logger,
	}
}

// Analyze implements Analyzer. Transport and API errors are returned;
// malformed output never is.
func (a *StructuredAnalyzer) Analyze(ctx context.Context, query string, scenario template.Scenario, passages []retrieval.Passage) (*template.Analysis, error) {
	prompt, err := BuildPrompt(query, scenario, passages, a.schema)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt, budget := range a.budget {
		resp, err := a.gen.Generate(ctx, prompt, budget)
		if err != nil {
			return nil, fmt.Errorf("analyzer request failed: %w", err)
		}

		analysis, err := ParseResponse(resp.Text)
		if err == nil {
			a.logger.Debug("analysis parsed",
				zap.Int("attempt", attempt+1),
				zap.Int("fields", len(analysis.Fields)),
				zap.Int("warnings", len(analysis.Warnings)))
			return analysis, nil
		}

		lastErr = err
		a.logger.Warn("unparseable analyzer response",
			zap.Int("attempt", attempt+1),
			zap.Int32("max_output_tokens", budget),
			zap.Bool("truncated", resp.Truncated),
			zap.Error(err))
	}

	return &template.Analysis{
		Fields: []template.PopulatedField{},
		Warnings: []string{fmt.Sprintf(
			"LLM returned unparseable response after %d attempts. Last error: %v. Please try again.",
			len(a.budget), lastErr)},
	}, nil
}

// ParseResponse decodes a model answer into an Analysis.
// A surrounding markdown code fence is tolerated.
func ParseResponse(text string) (*template.Analysis, error) {
	text = stripFence(strings.TrimSpace(text))
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrUnparseable)
	}
	if !strings.HasPrefix(text, "{") {
		return nil, fmt.Errorf("%w: response is not a JSON object", ErrUnparseable)
	}

	var analysis template.Analysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if analysis.Fields == nil {
		analysis.Fields = []template.PopulatedField{}
	}
	for i, f := range analysis.Fields {
		if strings.TrimSpace(f.FieldID) == "" {
			return nil, fmt.Errorf("%w: field %d has no field_id", ErrUnparseable, i)
		}
	}
	return &analysis, nil
}

func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimPrefix(text, "json")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// Fixed replays a precomputed analysis, e.g. one saved from an earlier run
type Fixed struct {
	analysis template.Analysis
}

// NewFixed wraps an analysis
func NewFixed(analysis *template.Analysis) *Fixed {
	return &Fixed{analysis: *analysis}
}

// LoadFixed reads an analysis file (see template.LoadAnalysis)
func LoadFixed(path string) (*Fixed, error) {
	analysis, err := template.LoadAnalysis(path)
	if err != nil {
		return nil, err
	}
	return NewFixed(analysis), nil
}

// Analyze implements Analyzer; the inputs are ignored
func (f *Fixed) Analyze(ctx context.Context, query string, scenario template.Scenario, passages []retrieval.Passage) (*template.Analysis, error) {
	out := template.Analysis{
		Fields:   append([]template.PopulatedField(nil), f.analysis.Fields...),
		Warnings: append([]string(nil), f.analysis.Warnings...),
	}
	return &out, nil
}
