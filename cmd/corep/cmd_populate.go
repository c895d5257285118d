package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DreamCats/corep/cmd/corep/internal"
	"github.com/DreamCats/corep/internal/analyzer"
	"github.com/DreamCats/corep/internal/config"
	"github.com/DreamCats/corep/internal/report"
	"github.com/DreamCats/corep/internal/template"
)

var populateOpts struct {
	scenario   string
	presets    string
	preset     string
	analysis   string
	template   string
	topK       int
	strategy   string
	jsonOutput bool
	reasoning  bool
	save       string
}

var errNoTemplate = errors.New("no template definition: set analyzer.template_path or pass --template")

// populateCmd runs retrieval, analysis and validation for one scenario
var populateCmd = &cobra.Command{
	Use:   "populate [query]",
	Short: "Populate C 01.00 for a bank scenario and validate it",
	Long: `Retrieves the regulatory passages for the query, asks the analyzer model
to populate every C 01.00 field from the scenario, and validates the result.

The scenario comes from --scenario (a JSON/YAML file; missing amounts are 0)
or from a named preset in --presets. A preset also supplies the query when
none is given. --analysis replays saved fields instead of calling the model.`,
	Example: `  corep populate --scenario bank.yaml "Calculate our own funds position"
  corep populate --presets data/scenarios.json --preset "Simple bank"
  corep populate --scenario bank.yaml --analysis fields.json --json`,
	Args: cobra.ArbitraryArgs,
	RunE: runPopulate,
}

func init() {
	f := populateCmd.Flags()
	f.StringVar(&populateOpts.scenario, "scenario", "", "Scenario file (JSON or YAML)")
	f.StringVar(&populateOpts.presets, "presets", "", "File of named preset scenarios")
	f.StringVar(&populateOpts.preset, "preset", "", "Preset name to use from --presets")
	f.StringVar(&populateOpts.analysis, "analysis", "", "Use populated fields from this file instead of the model")
	f.StringVar(&populateOpts.template, "template", "", "Template definition (default: analyzer.template_path)")
	f.IntVarP(&populateOpts.topK, "top-k", "k", 0, "Number of passages given to the model")
	f.StringVarP(&populateOpts.strategy, "strategy", "s", "", "Retrieval strategy (default: retrieval.strategy)")
	f.BoolVar(&populateOpts.jsonOutput, "json", false, "Output the report as JSON")
	f.BoolVar(&populateOpts.reasoning, "reasoning", false, "Show reasoning and citations per field")
	f.StringVar(&populateOpts.save, "save", "", "Also write the JSON report to this file")
	populateCmd.MarkFlagsMutuallyExclusive("scenario", "preset")
}

func runPopulate(cmd *cobra.Command, args []string) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}

	strategy, err := strategyFlag(populateOpts.strategy, cfg)
	if err != nil {
		return err
	}

	query, scenario, err := resolveScenario(strings.Join(args, " "))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, !populateOpts.jsonOutput && internal.DefaultProgressEnabled())
	if err != nil {
		return err
	}
	defer a.Close()

	an, err := newAnalyzer(ctx, cfg)
	if err != nil {
		return err
	}

	pipeline := report.NewPipeline(timeoutRetriever{a.engine, cfg.Retrieval.RetrievalTimeout()}, an, logger)

	stop := internal.StartSpinner(!populateOpts.jsonOutput && internal.DefaultProgressEnabled(), "analyzing")
	r, err := pipeline.Run(ctx, report.Request{
		Query:    query,
		Scenario: scenario,
		TopK:     populateOpts.topK,
		Strategy: strategy,
	})
	stop()
	if err != nil {
		return err
	}

	if populateOpts.save != "" {
		if err := saveReport(populateOpts.save, r); err != nil {
			return err
		}
		logger.Info("saved report", zap.String("path", populateOpts.save))
	}

	if populateOpts.jsonOutput {
		return report.WriteJSON(cmd.OutOrStdout(), r)
	}
	return report.WriteText(cmd.OutOrStdout(), r, populateOpts.reasoning)
}

// resolveScenario picks the scenario and query from the flags
func resolveScenario(query string) (string, template.Scenario, error) {
	switch {
	case populateOpts.preset != "":
		if populateOpts.presets == "" {
			return "", template.Scenario{}, fmt.Errorf("--preset requires --presets")
		}
		presets, err := template.LoadScenarios(populateOpts.presets)
		if err != nil {
			return "", template.Scenario{}, err
		}
		for _, p := range presets {
			if strings.EqualFold(p.Name, populateOpts.preset) {
				if query == "" {
					query = p.Query
				}
				if query == "" {
					return "", template.Scenario{}, fmt.Errorf("preset %q has no query; pass one as an argument", p.Name)
				}
				return query, p.Scenario, nil
			}
		}
		names := make([]string, len(presets))
		for i, p := range presets {
			names[i] = p.Name
		}
		return "", template.Scenario{}, fmt.Errorf("unknown preset %q (available: %s)", populateOpts.preset, strings.Join(names, ", "))

	case populateOpts.scenario != "":
		s, err := template.LoadScenario(populateOpts.scenario)
		if err != nil {
			return "", template.Scenario{}, err
		}
		if query == "" {
			return "", template.Scenario{}, fmt.Errorf("a query is required")
		}
		return query, *s, nil

	default:
		return "", template.Scenario{}, fmt.Errorf("either --scenario or --preset is required")
	}
}

// newAnalyzer returns the replay analyzer for --analysis, otherwise the Gemini analyzer
func newAnalyzer(ctx context.Context, cfg *config.Config) (analyzer.Analyzer, error) {
	if populateOpts.analysis != "" {
		fixed, err := analyzer.LoadFixed(populateOpts.analysis)
		if err != nil {
			return nil, err
		}
		return fixed, nil
	}

	an, err := newGeminiAnalyzer(ctx, cfg, populateOpts.template)
	if errors.Is(err, analyzer.ErrNotConfigured) {
		return nil, fmt.Errorf("%w (set GEMINI_API_KEY, or use --analysis to replay saved fields)", err)
	}
	if err != nil {
		return nil, err
	}
	return an, nil
}

// newGeminiAnalyzer loads the template definition and connects the Gemini analyzer
func newGeminiAnalyzer(ctx context.Context, cfg *config.Config, templatePath string) (*analyzer.StructuredAnalyzer, error) {
	if templatePath == "" {
		templatePath = cfg.Analyzer.TemplatePath
	}
	if templatePath == "" {
		return nil, errNoTemplate
	}
	schema, err := template.LoadSchema(templatePath)
	if err != nil {
		return nil, err
	}
	return analyzer.NewGemini(ctx, &cfg.Analyzer, cfg.AnalyzerAPIKey(), schema, logger)
}

func saveReport(path string, r *report.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()
	return report.WriteJSON(f, r)
}
