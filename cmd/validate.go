// Package cmd implements CLI commands.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/pcapscan/internal/config"
	"firestige.xyz/pcapscan/internal/query"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a query file",
	Long: `Validate a query file (JSON or YAML) without reading the capture.

Checks field ranges, column names and the filter expression, and reports
whether the filter runs inside the scanner or client-side.
File format is auto-detected from extension (.json, .yaml, .yml).

Examples:
  pcapscan validate -f query.json
  pcapscan validate -f query.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(validateQueryFile, cmd.OutOrStdout())
	},
}

var validateQueryFile string

func init() {
	validateCmd.Flags().StringVarP(&validateQueryFile, "file", "f", "",
		"query file to validate (required)")
	validateCmd.MarkFlagRequired("file")
}

func runValidate(path string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", path, err)
	}

	qc, err := config.ParseQueryConfigAuto(data, path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	opts := query.Options{MaxRows: qc.Limit}
	if qc.Columns != nil {
		opts.Columns = &qc.Columns
	}
	if qc.Where != "" {
		opts.Predicate = &qc.Where
	}
	if qc.BatchSize > 0 {
		opts.BatchSize = &qc.BatchSize
	}
	plan, err := query.NewPlan(opts)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	fmt.Fprintf(out, "VALID: query on %q: %s\n", qc.File, plan)
	if !plan.PushedDown() {
		fmt.Fprintf(out, "  filter runs client-side: %v\n", plan.Reason)
	}
	return nil
}
