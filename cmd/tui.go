package cmd

import (
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/brensch/gdelthelper/internal/app"
	"github.com/brensch/gdelthelper/internal/session"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Run the interactive terminal interface",
	Long: `Starts a terminal interface from which download, processing and year
detection sessions can be started, watched and cancelled ('c').
Logs are shown in the interface; use --log-output to also keep them in a file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig
		// Writing to the terminal would tear the interface.
		var base slog.Handler
		if logToFile {
			base = rootHandler
		}
		q := session.NewQueue(session.DefaultQueueSize)
		runner := session.NewRunner(q, base, rootLevel)

		model := app.NewAppModel(cmd.Context(), cfg, runner, app.Actions{
			Download: downloadSession(cfg, store),
			Process:  processSession(cfg, store),
			Detect:   detectSession(cfg),
		})
		_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
		runner.Shutdown()
		return err
	},
}
