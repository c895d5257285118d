package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DreamCats/corep/cmd/corep/internal"
	"github.com/DreamCats/corep/internal/config"
)

// initCmd writes a default configuration file
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Writes a commented default configuration to ~/.corep/config/corep.yaml
(or the path given with --config). An existing file is left untouched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := internal.ConfigPath(configPath)
		if err != nil {
			return err
		}

		created, err := config.WriteDefaultTemplate(path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !created {
			fmt.Fprintf(out, "Config already exists at %s\n", path)
			return nil
		}
		fmt.Fprintf(out, "Created default config at %s\n", path)
		fmt.Fprintln(out, "Set embedding.api_key (or GEMINI_API_KEY in .env) and run `corep cache rebuild`.")
		return nil
	},
}
