// Package mcpserver exposes retrieval, validation and population as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/DreamCats/corep/internal/analyzer"
	"github.com/DreamCats/corep/internal/fieldmap"
	"github.com/DreamCats/corep/internal/report"
	"github.com/DreamCats/corep/internal/retrieval"
	"github.com/DreamCats/corep/internal/store"
	"github.com/DreamCats/corep/internal/template"
	"github.com/DreamCats/corep/internal/validation"
)

// StatsReader reads persisted cache statistics. *store.VectorCacheStore satisfies it.
type StatsReader interface {
	Stats(ctx context.Context) (*store.CacheStats, error)
}

// CacheLoader checks whether the persisted cache matches the corpus. *vectorcache.Cache satisfies it.
type CacheLoader interface {
	Resident() bool
	Load(ctx context.Context) bool
}

// Options wires a Server to an already opened corpus
type Options struct {
	Retriever report.Retriever
	Strategy  retrieval.Strategy // used when a call names none
	Stats     StatsReader
	Cache     CacheLoader
	Chunks    int
	Semantic  bool              // an embedding provider is configured
	Analyzer  analyzer.Analyzer // nil disables corep_populate
	Version   string
	Logger    *zap.Logger
}

// Server exposes corep retrieval and validation via MCP stdio.
type Server struct {
	opts Options
	now  func() time.Time
}

// New creates a new MCP server wrapper.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{opts: opts, now: time.Now}
}

// Run starts the MCP stdio server and blocks until the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "corep",
		Title:   "COREP Assistant",
		Version: s.opts.Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name: "corep_retrieve",
		Description: `Search the regulatory corpus (CRR, PRA Rulebook, EBA instructions) for passages relevant to a question.

Strategies:
- auto: semantic when embeddings are available, keyword otherwise
- semantic: embedding similarity
- keyword: word overlap, boosted when the query names template rows such as r0010
- fulltext: analyzed full-text search that expands abbreviations (CET1, AT1, AOCI, DTA)`,
	}, s.retrieveTool)

	mcp.AddTool(server, &mcp.Tool{
		Name: "corep_validate",
		Description: `Check populated COREP C 01.00 fields against the template consistency rules V001-V006.

Missing rows count as zero. Sums must agree within 0.5 (thousands).`,
	}, s.validateTool)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "corep_cache_status",
		Description: "Report whether the embedding cache exists and matches the current corpus.",
	}, s.statusTool)

	if s.opts.Analyzer != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name: "corep_populate",
			Description: `Populate COREP C 01.00 for a bank scenario: retrieves regulation, asks the analyzer model for
every field with reasoning and citations, then validates the result.`,
		}, s.populateTool)
	}

	s.opts.Logger.Info("mcp server started", zap.Bool("populate", s.opts.Analyzer != nil))
	return server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) retrieveTool(ctx context.Context, _ *mcp.CallToolRequest, input RetrieveInput) (*mcp.CallToolResult, RetrieveOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, RetrieveOutput{}, fmt.Errorf("query is required")
	}
	strategy, err := s.strategy(input.Strategy)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	passages := s.opts.Retriever.Retrieve(ctx, input.Query, input.TopK, strategy)
	return nil, RetrieveOutput{
		Query:    input.Query,
		Strategy: strategy.String(),
		Count:    len(passages),
		Results:  ensurePassages(passages),
	}, nil
}

func (s *Server) validateTool(ctx context.Context, _ *mcp.CallToolRequest, input ValidateInput) (*mcp.CallToolResult, ValidateOutput, error) {
	fields := make([]template.PopulatedField, 0, len(input.Fields))
	for i, f := range input.Fields {
		if strings.TrimSpace(f.FieldID) == "" {
			return nil, ValidateOutput{}, fmt.Errorf("fields[%d]: field_id is required", i)
		}
		fields = append(fields, template.PopulatedField{FieldID: f.FieldID, Value: f.Value})
	}

	results := validation.Validate(fields)
	passed, failed := validation.Summary(results)
	return nil, ValidateOutput{
		Results:    results,
		Passed:     passed,
		Failed:     failed,
		Duplicates: ensureStringSlice(fieldmap.Duplicates(fields)),
	}, nil
}

func (s *Server) populateTool(ctx context.Context, _ *mcp.CallToolRequest, input PopulateInput) (*mcp.CallToolResult, PopulateOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, PopulateOutput{}, fmt.Errorf("query is required")
	}
	strategy, err := s.strategy(input.Strategy)
	if err != nil {
		return nil, PopulateOutput{}, err
	}
	scenario, err := decodeScenario(input.Scenario)
	if err != nil {
		return nil, PopulateOutput{}, err
	}

	pipeline := report.NewPipeline(s.opts.Retriever, s.opts.Analyzer, s.opts.Logger)
	r, err := pipeline.Run(ctx, report.Request{
		Query:    input.Query,
		Scenario: scenario,
		TopK:     input.TopK,
		Strategy: strategy,
	})
	if err != nil {
		return nil, PopulateOutput{}, err
	}

	return nil, PopulateOutput{
		RunID:      r.RunID.String(),
		Query:      r.Query,
		Strategy:   r.Strategy.String(),
		Passages:   ensurePassages(r.Passages),
		Fields:     r.Fields,
		Warnings:   ensureStringSlice(r.Warnings),
		Validation: r.Validation,
		Passed:     r.Passed,
		Failed:     r.Failed,
	}, nil
}

func (s *Server) statusTool(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	output := StatusOutput{
		Chunks:   s.opts.Chunks,
		Semantic: s.opts.Semantic,
		Size:     formatBytes(0),
	}

	stats, err := s.opts.Stats.Stats(ctx)
	if err != nil {
		output.StaleReason = fmt.Sprintf("Cannot read cache: %v", err)
		return nil, output, nil
	}

	output.Entries = stats.Entries
	output.Dimension = stats.Dimension
	output.Model = stats.Model
	output.Size = formatBytes(stats.SizeBytes)
	if !stats.BuiltAt.IsZero() {
		output.BuiltAt = stats.BuiltAt.UTC().Format(time.RFC3339)
		output.Age = formatDuration(s.now().Sub(stats.BuiltAt))
	}

	output.Current = s.opts.Cache.Resident() || s.opts.Cache.Load(ctx)
	switch {
	case output.Current:
	case stats.Entries == 0:
		output.StaleReason = "Cache is empty. Run 'corep cache rebuild' or make a semantic query to build it."
	default:
		output.StaleReason = "Corpus changed since the cache was built; it will be rebuilt on the next semantic query."
	}
	if !s.opts.Semantic {
		if output.StaleReason != "" {
			output.StaleReason += " "
		}
		output.StaleReason += "No embedding provider configured; retrieval uses keyword search."
	}

	return nil, output, nil
}

func (s *Server) strategy(name string) (retrieval.Strategy, error) {
	if strings.TrimSpace(name) == "" {
		if s.opts.Strategy == "" {
			return retrieval.StrategyAuto, nil
		}
		return s.opts.Strategy, nil
	}
	return retrieval.ParseStrategy(name)
}

// decodeScenario overlays the given values on the default scenario
func decodeScenario(values map[string]any) (template.Scenario, error) {
	scenario := template.DefaultScenario()
	if len(values) == 0 {
		return scenario, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return scenario, fmt.Errorf("invalid scenario: %w", err)
	}
	if err := json.Unmarshal(data, &scenario); err != nil {
		return scenario, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// formatBytes formats bytes to human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats duration to human-readable string
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%.1f hours", d.Hours())
	}
	return fmt.Sprintf("%.1f days", d.Hours()/24)
}

func ensurePassages(p []retrieval.Passage) []retrieval.Passage {
	if p == nil {
		return []retrieval.Passage{}
	}
	return p
}

func ensureStringSlice(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
