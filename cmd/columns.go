package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/brensch/gdelthelper/internal/config"
	"github.com/brensch/gdelthelper/internal/schema"
)

var columnsCmd = &cobra.Command{
	Use:   "columns",
	Short: "List the columns that can be selected for processing",
	Long:  `Fetches the current-era and historical header definitions and prints their union. Columns in the default selection are marked with '*'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r := schema.NewResolver(appConfig, nil, store, getLogger())
		cols, err := r.ResolveUnion(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, c := range cols {
			mark := " "
			if slices.Contains(config.BuiltinColumns, c) {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %s\n", mark, c)
		}
		return nil
	},
}
