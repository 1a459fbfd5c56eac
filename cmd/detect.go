package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brensch/gdelthelper/internal/session"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Find the latest year with published archives",
	Long: `Walks back one day at a time from today (UTC), up to max_back_days, until a
published archive is found, and prints the resulting range of selectable years.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		return runSession(cmd.Context(), session.KindDetect, detectSession(appConfig), func(ev session.Event) {
			if ev.Kind != session.KindYears || len(ev.Years) == 0 {
				return
			}
			fmt.Fprintf(out, "Latest available year: %d\n", ev.Years[len(ev.Years)-1])
			fmt.Fprintf(out, "Selectable years: %d-%d\n", ev.Years[0], ev.Years[len(ev.Years)-1])
		})
	},
}
