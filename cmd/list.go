package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brensch/gdelthelper/internal/probe"
)

var (
	listYear        int
	listShowMissing bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show which periods of a year the source index publishes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		p := probe.New(appConfig, nil, getLogger())
		remote, err := p.ListRemote(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if listYear == 0 {
			fmt.Fprintf(out, "Remote index lists %d archives.\n", len(remote))
			return nil
		}
		published, missing := probe.Coverage(listYear, remote)
		fmt.Fprintf(out, "%d: %d of %d periods published.\n", listYear, len(published), len(published)+len(missing))

		done, err := store.CompletedPeriods(ctx)
		if err != nil {
			return err
		}
		local := 0
		for _, tok := range published {
			if done[tok] {
				local++
			}
		}
		fmt.Fprintf(out, "%d of the published periods are already downloaded.\n", local)
		if listShowMissing && len(missing) > 0 {
			fmt.Fprintf(out, "Missing: %s\n", strings.Join(missing, ", "))
		}
		return nil
	},
}

func init() {
	listCmd.Flags().IntVar(&listYear, "year", 0, "Year to check against the index")
	listCmd.Flags().BoolVar(&listShowMissing, "missing", false, "Print the periods missing from the index")
}
