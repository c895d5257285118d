package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DreamCats/corep/cmd/corep/internal"
	"github.com/DreamCats/corep/internal/retrieval"
)

var retrieveOpts struct {
	topK       int
	strategy   string
	jsonOutput bool
	full       bool
}

// retrieveCmd searches the regulatory corpus
var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Search the regulatory corpus",
	Long: `Ranks corpus passages for a query.

Strategies:
  auto      semantic when an embedding provider is configured, keyword otherwise
  semantic  cosine similarity against the vector cache (built on first use)
  keyword   word overlap with a bonus for matching template row ids (r0010...)
  fulltext  analyzed full-text search with abbreviation expansion (CET1, AOCI...)

Semantic and fulltext fall back to keyword search when they cannot answer.`,
	Example: `  corep retrieve "deduction of goodwill"
  corep retrieve "r0010 own funds" --strategy keyword -k 3
  corep retrieve "AOCI" --strategy fulltext --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRetrieve,
}

func init() {
	retrieveCmd.Flags().IntVarP(&retrieveOpts.topK, "top-k", "k", 0, "Number of passages (default: retrieval.default_top_k)")
	retrieveCmd.Flags().StringVarP(&retrieveOpts.strategy, "strategy", "s", "", "auto, semantic, keyword or fulltext (default: retrieval.strategy)")
	retrieveCmd.Flags().BoolVar(&retrieveOpts.jsonOutput, "json", false, "Output as JSON")
	retrieveCmd.Flags().BoolVar(&retrieveOpts.full, "full", false, "Print full passage text")
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}

	strategy, err := strategyFlag(retrieveOpts.strategy, cfg)
	if err != nil {
		return err
	}

	query := strings.Join(args, " ")

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Retrieval.RetrievalTimeout())
	defer cancel()

	a, err := newApp(ctx, cfg, !retrieveOpts.jsonOutput && internal.DefaultProgressEnabled())
	if err != nil {
		return err
	}
	defer a.Close()

	passages := a.engine.Retrieve(ctx, query, retrieveOpts.topK, strategy)

	if retrieveOpts.jsonOutput {
		return outputPassagesJSON(cmd.OutOrStdout(), query, strategy, passages)
	}
	outputPassagesText(cmd.OutOrStdout(), query, passages, retrieveOpts.full)
	return nil
}

// outputPassagesText prints passages as human-readable text
func outputPassagesText(w io.Writer, query string, passages []retrieval.Passage, full bool) {
	if len(passages) == 0 {
		fmt.Fprintln(w, "No results found")
		return
	}

	fmt.Fprintf(w, "Found %d result(s) for: %s\n\n", len(passages), query)

	for i, p := range passages {
		fmt.Fprintf(w, "%d. %s\n", i+1, p.ChunkID)
		fmt.Fprintf(w, "   Source:   %s - %s\n", p.Source, p.SectionRef)
		fmt.Fprintf(w, "   Score:    %.3f (%s)\n", p.Score, p.Strategy)

		text := p.Text
		if !full && len(text) > 160 {
			text = text[:160] + "..."
		}
		fmt.Fprintf(w, "   %s\n\n", text)
	}
}

// outputPassagesJSON prints passages as JSON
func outputPassagesJSON(w io.Writer, query string, strategy retrieval.Strategy, passages []retrieval.Passage) error {
	output := map[string]interface{}{
		"query":    query,
		"strategy": strategy,
		"count":    len(passages),
		"results":  passages,
	}

	jsonData, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	_, err = fmt.Fprintln(w, string(jsonData))
	return err
}
