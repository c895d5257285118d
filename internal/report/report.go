// Package report runs the populate pipeline and renders its result.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DreamCats/corep/internal/analyzer"
	"github.com/DreamCats/corep/internal/fieldmap"
	"github.com/DreamCats/corep/internal/retrieval"
	"github.com/DreamCats/corep/internal/template"
	"github.com/DreamCats/corep/internal/validation"
)

// Retriever is the part of retrieval.Engine the pipeline needs
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, strategy retrieval.Strategy) []retrieval.Passage
}

// Report is the outcome of one populate run
type Report struct {
	RunID       uuid.UUID                 `json:"run_id"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Query       string                    `json:"query"`
	Strategy    retrieval.Strategy        `json:"strategy"`
	Scenario    template.Scenario         `json:"scenario"`
	Passages    []retrieval.Passage       `json:"passages"`
	Fields      []template.PopulatedField `json:"fields"`
	Warnings    []string                  `json:"warnings"`
	Validation  []validation.Result       `json:"validation"`
	Passed      int                       `json:"passed"`
	Failed      int                       `json:"failed"`
}

// Request describes one populate run
type Request struct {
	Query    string
	Scenario template.Scenario
	TopK     int
	Strategy retrieval.Strategy
}

// Pipeline wires retrieval, analysis and validation together
type Pipeline struct {
	retriever Retriever
	analyzer  analyzer.Analyzer
	logger    *zap.Logger
	now       func() time.Time
}

// NewPipeline creates a pipeline
func NewPipeline(retriever Retriever, a analyzer.Analyzer, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		retriever: retriever,
		analyzer:  a,
		logger:    logger,
		now:       time.Now,
	}
}

// Run retrieves passages, analyzes the scenario and validates the fields.
// Only analyzer request errors are returned.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Report, error) {
	runID := uuid.New()
	logger := p.logger.With(zap.String("run_id", runID.String()))

	passages := p.retriever.Retrieve(ctx, req.Query, req.TopK, req.Strategy)
	logger.Info("retrieved passages", zap.Int("count", len(passages)))

	analysis, err := p.analyzer.Analyze(ctx, req.Query, req.Scenario, passages)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	r := New(req.Query, req.Strategy, req.Scenario, passages, analysis)
	r.RunID = runID
	r.GeneratedAt = p.now().UTC()

	logger.Info("validated fields",
		zap.Int("fields", len(r.Fields)),
		zap.Int("passed", r.Passed),
		zap.Int("failed", r.Failed))
	return r, nil
}

// New assembles a report from an analysis, validating its fields.
// Rows populated more than once are added to the warnings.
func New(query string, strategy retrieval.Strategy, scenario template.Scenario, passages []retrieval.Passage, analysis *template.Analysis) *Report {
	warnings := append([]string(nil), analysis.Warnings...)
	for _, row := range fieldmap.Duplicates(analysis.Fields) {
		warnings = append(warnings, fmt.Sprintf("row %s was populated more than once; validation uses the last value", row))
	}

	results := validation.Validate(analysis.Fields)
	passed, failed := validation.Summary(results)

	return &Report{
		RunID:       uuid.New(),
		GeneratedAt: time.Now().UTC(),
		Query:       query,
		Strategy:    strategy,
		Scenario:    scenario,
		Passages:    passages,
		Fields:      analysis.Fields,
		Warnings:    warnings,
		Validation:  results,
		Passed:      passed,
		Failed:      failed,
	}
}

// WriteJSON writes the report as indented JSON
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes a human-readable report
func WriteText(w io.Writer, r *Report, verbose bool) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Run %s\n", r.RunID)
	fmt.Fprintf(&b, "Bank:  %s (%s, %s)\n", r.Scenario.BankName, r.Scenario.ReportingDate, r.Scenario.Currency)
	fmt.Fprintf(&b, "Query: %s\n\n", r.Query)

	fmt.Fprintf(&b, "Regulatory context (%d passage(s), %s):\n", len(r.Passages), r.Strategy)
	for i, p := range r.Passages {
		fmt.Fprintf(&b, "  %d. [%s - %s] %s\n", i+1, p.Source, p.SectionRef, p.ChunkID)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Populated fields (%d):\n", len(r.Fields))
	for _, f := range r.Fields {
		fmt.Fprintf(&b, "  %-12s %14s  %-6s %s\n", f.FieldID, formatAmount(f.Value), f.Confidence, f.FieldName)
		if verbose {
			if f.Reasoning != "" {
				fmt.Fprintf(&b, "      %s\n", f.Reasoning)
			}
			if len(f.Citations) > 0 {
				fmt.Fprintf(&b, "      Sources: %s\n", strings.Join(f.Citations, "; "))
			}
		}
	}
	b.WriteString("\n")

	if len(r.Warnings) > 0 {
		b.WriteString("Warnings:\n")
		for _, warning := range r.Warnings {
			fmt.Fprintf(&b, "  - %s\n", warning)
		}
		b.WriteString("\n")
	}

	WriteValidation(&b, r.Validation)

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteValidation writes one line per rule and a summary line
func WriteValidation(w io.Writer, results []validation.Result) {
	fmt.Fprintln(w, "Validation:")
	for _, res := range results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(w, "  [%s] %s %s\n", status, res.RuleID, res.Description)
		if res.Message != "" {
			fmt.Fprintf(w, "         %s\n", res.Message)
		}
	}
	passed, failed := validation.Summary(results)
	fmt.Fprintf(w, "\n%d passed, %d failed\n", passed, failed)
}

// formatAmount renders a value with thousands separators and up to 2 decimals
func formatAmount(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, hasFrac := strings.Cut(s, ".")
	var out []byte
	for i, c := range []byte(intPart) {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}

	res := string(out)
	if hasFrac {
		res += "." + frac
	}
	if neg && res != "0" {
		res = "-" + res
	}
	return res
}
