// Package cmd implements CLI commands.
package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/pcapscan/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "List the output columns",
	Long: `List every output column in order with its Arrow type, whether it can be
null and the type it has in filter expressions.

The schema is fixed; it does not depend on the capture file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSchema(cmd.OutOrStdout())
	},
}

func runSchema(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCOLUMN\tTYPE\tNULLABLE\tFILTER TYPE")
	for i, c := range schema.Columns() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\n", i, c.Name, c.Type, c.Nullable, c.Kind)
	}
	return tw.Flush()
}
