package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DreamCats/corep/cmd/corep/internal"
	"github.com/DreamCats/corep/internal/config"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg     *config.Config
	cfgErr  error
	logger  = zap.NewNop()
	cleanup = func() {}
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:           "corep",
	Short:         "COREP own funds reporting assistant",
	Long:          internal.RootLong,
	Example:       internal.RootExample,
	Version:       internal.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := internal.LoadEnv(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}

		cfg, cfgErr = internal.LoadConfig(configPath)

		level, dir := "info", ""
		if cfg != nil {
			level, dir = cfg.Logging.Level, cfg.Logging.Dir
		}
		if verbose {
			level = "debug"
		}

		l, _, done, err := internal.SetupLogging(cmd.Name(), level, dir)
		if l != nil {
			logger, cleanup = l, done
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to initialize log file: %v\n", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.corep/config/corep.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(populateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	err := rootCmd.Execute()
	cleanup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if config.IsNotFound(err) {
			fmt.Fprintln(os.Stderr)
			internal.PrintConfigExample(os.Stderr)
		}
		os.Exit(1)
	}
}

// requireConfig returns the loaded configuration or the error that prevented loading it
func requireConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	return cfg, nil
}
