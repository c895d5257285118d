package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DreamCats/corep/cmd/corep/internal"
	"github.com/DreamCats/corep/internal/analyzer"
	"github.com/DreamCats/corep/internal/mcpserver"
	"github.com/DreamCats/corep/internal/retrieval"
)

// mcpCmd runs the MCP stdio server
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP stdio server",
	Long: `Run an MCP stdio server exposing:
  - corep_retrieve
  - corep_validate
  - corep_cache_status
  - corep_populate (only when the analyzer is configured)

Logs go to stderr and the log file; stdout carries the protocol.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		strategy, err := retrieval.ParseStrategy(cfg.Retrieval.Strategy)
		if err != nil {
			return err
		}

		a, err := newApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		var an analyzer.Analyzer
		if gem, err := newGeminiAnalyzer(ctx, cfg, ""); err != nil {
			logger.Info("corep_populate disabled", zap.Error(err))
		} else {
			an = gem
		}

		server := mcpserver.New(mcpserver.Options{
			Retriever: timeoutRetriever{a.engine, cfg.Retrieval.RetrievalTimeout()},
			Strategy:  strategy,
			Stats:     a.store,
			Cache:     a.cache,
			Chunks:    a.corpus.Len(),
			Semantic:  a.embedder != nil,
			Analyzer:  an,
			Version:   internal.Version,
			Logger:    logger,
		})
		if err := server.Run(ctx); err != nil {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		return nil
	},
}
