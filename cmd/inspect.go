package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brensch/gdelthelper/internal/inspector"
)

var inspectTop int

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Summarise a merged output file using DuckDB",
	Long:  `Loads the merged table (the configured output path by default) into DuckDB and prints its schema, row count and most frequent actor-country pairs.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		path := appConfig.OutputPath
		if len(args) > 0 {
			path = args[0]
		}
		s, err := inspector.Inspect(cmd.Context(), path, inspectTop, logger)
		if err != nil {
			return fmt.Errorf("inspection failed: %w", err)
		}
		s.Print(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	inspectCmd.Flags().IntVarP(&inspectTop, "top", "n", inspector.DefaultTopPairs, "Number of actor-country pairs to list")
}
