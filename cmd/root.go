package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/brensch/gdelthelper/internal/config"
	"github.com/brensch/gdelthelper/internal/db"
	"github.com/brensch/gdelthelper/internal/processor"
)

var (
	// Config flags - bound in init()
	cfgFile      string
	rawDir       string
	outputPath   string
	outputFormat string
	dbPath       string
	years        []int
	rps          float64
	logFormat    string
	logLevel     string
	logOutput    string

	// Populated in PersistentPreRunE
	rootLogger  *slog.Logger
	rootHandler slog.Handler
	rootLevel   = new(slog.LevelVar)
	logToFile   bool
	store       *db.Store
	appConfig   config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gdelthelper",
	Short: "Download GDELT 1.0 event archives and merge them into one filtered table.",
	Long: `gdelthelper fetches the GDELT 1.0 event archives for selected years,
extracts them, and merges the extracted files into a single tab-separated
(or Parquet) table filtered by year, actor country and actor type.

A DuckDB database records every download and processing event, and caches
the column header definitions fetched from the source.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initLogger(); err != nil {
			return err
		}

		cfg, err := config.Load(cfgFile, time.Now())
		if err != nil {
			return err
		}
		applyRootFlags(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		appConfig = cfg
		rootLogger.Debug("Configuration loaded.", slog.Any("config", appConfig))

		if appConfig.DbPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(appConfig.DbPath), 0o755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		pingCtx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		store, err = db.Open(pingCtx, appConfig.DbPath)
		if err != nil {
			return err
		}
		rootLogger.Debug("State database ready.", slog.String("path", appConfig.DbPath))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if store != nil {
			if err := store.Close(); err != nil {
				rootLogger.Error("Failed to close DuckDB connection cleanly.", "error", err)
			}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	rootCmd.AddCommand(downloadCmd, processCmd, detectCmd, listCmd, columnsCmd, inspectCmd, stateCmd, tuiCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		// An aborted run has already logged its summary line.
		if errors.Is(err, processor.ErrFatal) {
			os.Exit(1)
		}
		if rootLogger != nil {
			rootLogger.Error("Command execution failed.", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "YAML config file (GDELT_* environment variables override it)")
	pf.StringVarP(&rawDir, "raw-dir", "r", "", "Directory for downloaded and extracted event files")
	pf.StringVarP(&outputPath, "output", "o", "", "Path of the merged output table")
	pf.StringVar(&outputFormat, "format", "", "Output format (tsv or parquet)")
	pf.StringVarP(&dbPath, "db-path", "d", "", "Path to DuckDB state database file (:memory: for in-memory)")
	pf.IntSliceVarP(&years, "years", "y", nil, "Years to download (comma separated)")
	pf.Float64Var(&rps, "requests-per-second", 0, "Throttle outbound requests (0 disables)")
	pf.StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")

	rootCmd.Version = "0.1.0"
}

func initLogger() error {
	switch strings.ToLower(logLevel) {
	case "debug":
		rootLevel.Set(slog.LevelDebug)
	case "warn":
		rootLevel.Set(slog.LevelWarn)
	case "error":
		rootLevel.Set(slog.LevelError)
	default:
		rootLevel.Set(slog.LevelInfo)
	}

	var logWriter io.Writer = os.Stderr
	switch strings.ToLower(logOutput) {
	case "", "stderr":
	case "stdout":
		logWriter = os.Stdout
	default:
		f, err := os.OpenFile(logOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", logOutput, err)
		}
		logWriter = f
		logToFile = true
	}

	opts := &slog.HandlerOptions{Level: rootLevel}
	if logFormat == "json" {
		rootHandler = slog.NewJSONHandler(logWriter, opts)
	} else {
		rootHandler = slog.NewTextHandler(logWriter, opts)
	}
	rootLogger = slog.New(rootHandler)
	slog.SetDefault(rootLogger)
	return nil
}

// applyRootFlags overrides cfg with the persistent flags set on the command line.
func applyRootFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("raw-dir") {
		cfg.RawDir = rawDir
	}
	if f.Changed("output") {
		cfg.OutputPath = outputPath
	}
	if f.Changed("format") {
		cfg.OutputFormat = strings.ToLower(outputFormat)
	}
	if f.Changed("db-path") {
		cfg.DbPath = dbPath
	}
	if f.Changed("years") {
		cfg.Years = years
	}
	if f.Changed("requests-per-second") {
		cfg.RequestsPerSecond = rps
	}
}

func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}
