package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/brensch/gdelthelper/internal/session"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download and extract the event archives of the selected years",
	Long: `Enumerates every period of the selected years, skips periods whose extracted
file is already in the raw directory, and downloads and extracts the rest.
Ctrl+C cancels cleanly; no partial archive is left behind.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig
		body := downloadSession(cfg, store)
		show, end := progressPrinter(cmd.ErrOrStderr())
		defer end()
		return runSession(cmd.Context(), session.KindDownload, func(ctx context.Context, s *session.Session) error {
			return body(ctx, s, cfg.Years)
		}, show)
	},
}
