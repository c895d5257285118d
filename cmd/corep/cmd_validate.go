package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DreamCats/corep/internal/fieldmap"
	"github.com/DreamCats/corep/internal/report"
	"github.com/DreamCats/corep/internal/template"
	"github.com/DreamCats/corep/internal/validation"
)

var validateOpts struct {
	fields     string
	jsonOutput bool
	strict     bool
}

// validateCmd checks populated fields against the C 01.00 consistency rules
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check populated fields against the C 01.00 rules",
	Long: `Runs rules V001-V006 over a file of populated fields. The file holds either
an analysis object ({"fields": [...], "warnings": [...]}) or a bare list of
fields, as JSON or YAML. Missing rows count as zero and values within 0.5
of the expected total pass.`,
	Example: `  corep validate --fields fields.json
  corep validate --fields fields.yaml --json --strict`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		analysis, err := template.LoadAnalysis(validateOpts.fields)
		if err != nil {
			return err
		}

		results := validation.Validate(analysis.Fields)
		passed, failed := validation.Summary(results)
		duplicates := fieldmap.Duplicates(analysis.Fields)

		out := cmd.OutOrStdout()
		if validateOpts.jsonOutput {
			data, err := json.MarshalIndent(map[string]interface{}{
				"fields":     len(analysis.Fields),
				"duplicates": duplicates,
				"results":    results,
				"passed":     passed,
				"failed":     failed,
			}, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal results: %w", err)
			}
			fmt.Fprintln(out, string(data))
		} else {
			fmt.Fprintf(out, "Validating %d field(s) from %s\n\n", len(analysis.Fields), validateOpts.fields)
			for _, row := range duplicates {
				fmt.Fprintf(out, "Warning: row %s appears more than once; the last value is used\n", row)
			}
			if len(duplicates) > 0 {
				fmt.Fprintln(out)
			}
			report.WriteValidation(out, results)
		}

		if validateOpts.strict && failed > 0 {
			return fmt.Errorf("%d validation rule(s) failed", failed)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateOpts.fields, "fields", "f", "", "Populated fields file (JSON or YAML)")
	validateCmd.Flags().BoolVar(&validateOpts.jsonOutput, "json", false, "Output as JSON")
	validateCmd.Flags().BoolVar(&validateOpts.strict, "strict", false, "Exit with an error when any rule fails")
	_ = validateCmd.MarkFlagRequired("fields")
}
