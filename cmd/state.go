package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brensch/gdelthelper/internal/db"
)

var (
	stateLimit int
	stateEvent string
	stateRunID string
)

var stateCmd = &cobra.Command{
	Use:   "state [kind]",
	Short: "View the event log history (periods, files or runs)",
	Long: `Queries the DuckDB event log and displays its history, newest first.
Specify 'periods', 'files' or 'runs' as an optional argument to filter by target kind.
Use flags to filter by event type and run id and to limit the output.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		f := db.HistoryFilter{Event: stateEvent, RunID: stateRunID, Limit: stateLimit}
		if len(args) > 0 {
			switch strings.ToLower(args[0]) {
			case "period", "periods":
				f.Kind = db.KindPeriod
			case "file", "files":
				f.Kind = db.KindFile
			case "run", "runs":
				f.Kind = db.KindRun
			default:
				return fmt.Errorf("invalid kind filter: %s (use 'periods', 'files' or 'runs')", args[0])
			}
		}
		logger.Debug("Querying database event log.", "kind", f.Kind, "event", f.Event, "limit", f.Limit)
		return store.DisplayHistory(cmd.Context(), cmd.OutOrStdout(), f)
	},
}

func init() {
	stateCmd.Flags().IntVarP(&stateLimit, "limit", "n", 50, "Limit the number of log records displayed")
	stateCmd.Flags().StringVarP(&stateEvent, "event", "e", "", "Filter records by event type (e.g. download_end, not_found, error)")
	stateCmd.Flags().StringVar(&stateRunID, "run", "", "Filter records by run id")
}
