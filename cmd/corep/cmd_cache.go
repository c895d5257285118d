package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DreamCats/corep/cmd/corep/internal"
)

var cacheJSON bool

// cacheCmd groups vector cache maintenance commands
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the vector cache",
	Long: `The vector cache stores one embedding per corpus chunk in SQLite.
It is only used when its chunk ids match the corpus exactly, in order;
any change to the corpus makes it stale and it is rebuilt on next use.`,
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache statistics and whether it matches the corpus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.store.Stats(ctx)
		if err != nil {
			return err
		}
		current := a.cache.Load(ctx)
		status := cacheStatus(current, stats.Entries, stats.Model, a.cache.Model())

		providerDim := 0
		if a.embedder != nil {
			providerDim = a.embedder.Dimensions()
		}

		out := cmd.OutOrStdout()
		if cacheJSON {
			data, err := json.MarshalIndent(map[string]interface{}{
				"path":               a.db.Path(),
				"chunks":             a.corpus.Len(),
				"entries":            stats.Entries,
				"dimension":          stats.Dimension,
				"model":              stats.Model,
				"built_at":           stats.BuiltAt,
				"size_bytes":         stats.SizeBytes,
				"current":            current,
				"status":             status,
				"provider":           a.embedder != nil,
				"provider_model":     a.cache.Model(),
				"provider_dimension": providerDim,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintln(out, "Vector Cache")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Path:      %s\n", a.db.Path())
		fmt.Fprintf(out, "Chunks:    %6d\n", a.corpus.Len())
		fmt.Fprintf(out, "Entries:   %6d\n", stats.Entries)
		if stats.Entries > 0 {
			fmt.Fprintf(out, "Dimension: %6d\n", stats.Dimension)
			fmt.Fprintf(out, "Model:     %s\n", stats.Model)
			fmt.Fprintf(out, "Built:     %s\n", stats.BuiltAt.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintf(out, "Size:      %.1f KiB\n", float64(stats.SizeBytes)/1024)
		if a.embedder != nil {
			fmt.Fprintf(out, "Provider:  %s (dimension %d)\n", a.cache.Model(), providerDim)
		}
		fmt.Fprintf(out, "Status:    %s\n", status)
		if a.embedder == nil {
			fmt.Fprintln(out, "\nNo embedding provider configured; retrieval uses keyword search.")
		}
		return nil
	},
}

// cacheStatus classifies the persisted cache against the corpus and the configured model
func cacheStatus(current bool, entries int, cachedModel, model string) string {
	switch {
	case current && cachedModel != "" && model != "" && cachedModel != model:
		return "stale (embedding model changed)"
	case current:
		return "current"
	case entries == 0:
		return "empty"
	default:
		return "stale (corpus changed)"
	}
}

var cacheRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-embed the whole corpus and replace the cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, internal.DefaultProgressEnabled())
		if err != nil {
			return err
		}
		defer a.Close()

		if a.embedder == nil {
			return errors.New("no embedding provider configured (set embedding.provider and an API key)")
		}

		if !a.cache.Build(cmd.Context()) {
			return errors.New("vector cache build failed, see log for details")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Embedded %d chunk(s) (dimension %d) into %s\n",
			a.corpus.Len(), a.cache.Dimension(), a.db.Path())
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached vectors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared vector cache at %s\n", a.db.Path())
		return nil
	},
}

func init() {
	cacheStatusCmd.Flags().BoolVar(&cacheJSON, "json", false, "Output as JSON")

	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheRebuildCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
