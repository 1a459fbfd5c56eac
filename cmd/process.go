package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/brensch/gdelthelper/internal/config"
	"github.com/brensch/gdelthelper/internal/session"
)

var (
	procColumns      []string
	procAllColumns   bool
	procYearFilter   bool
	procYearStart    int
	procYearEnd      int
	procCrossCountry bool
	procSides        = map[string]*sideFlags{"actor1": {}, "actor2": {}}
)

type sideFlags struct {
	countryMode string
	countries   string
	typeMode    string
	types       string
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Merge the extracted files into one filtered table",
	Long: `Reads every extracted file in the raw directory in name order, applies the
year, actor country and actor type filters, projects the selected columns and
writes the surviving rows to a single output table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig
		applyProcessFlags(cmd, &cfg.Processor)
		if err := cfg.Validate(); err != nil {
			return err
		}
		show, end := progressPrinter(cmd.ErrOrStderr())
		defer end()
		return runSession(cmd.Context(), session.KindProcess, processSession(cfg, store), show)
	},
}

func init() {
	f := processCmd.Flags()
	f.StringSliceVarP(&procColumns, "columns", "c", nil, "Columns to keep (default: the built-in selection)")
	f.BoolVar(&procAllColumns, "all-columns", false, "Keep every column of the schema")
	f.BoolVar(&procYearFilter, "year-filter", false, "Only keep events within --year-start..--year-end")
	f.IntVar(&procYearStart, "year-start", config.DefaultYearStart, "First year kept by the year filter")
	f.IntVar(&procYearEnd, "year-end", 0, "Last year kept by the year filter (default: current year)")
	f.BoolVar(&procCrossCountry, "cross-country", false, "Only keep events between two different actor countries")
	for _, role := range []string{"actor1", "actor2"} {
		s := procSides[role]
		f.StringVar(&s.countryMode, role+"-country-mode", config.CountryAll, "Country filter mode (all or custom)")
		f.StringVar(&s.countries, role+"-countries", "", "Comma separated country codes for custom mode")
		f.StringVar(&s.typeMode, role+"-type-mode", config.TypeAll, "Type filter mode (all, labeled or custom)")
		f.StringVar(&s.types, role+"-types", "", "Comma separated type codes for custom mode")
	}
}

// applyProcessFlags overrides p with the process flags set on the command line.
func applyProcessFlags(cmd *cobra.Command, p *config.ProcessorConfig) {
	f := cmd.Flags()
	if f.Changed("columns") {
		p.SelectedColumns = procColumns
	}
	if procAllColumns {
		p.SelectedColumns = nil
	}
	if f.Changed("year-filter") {
		p.EnableYearFilter = procYearFilter
	}
	if f.Changed("year-start") {
		p.YearStart = procYearStart
	}
	if f.Changed("year-end") {
		p.YearEnd = procYearEnd
	}
	if f.Changed("cross-country") {
		p.OnlyCrossCountry = procCrossCountry
	}
	for role, side := range map[string]*config.SideFilter{"actor1": &p.Actor1, "actor2": &p.Actor2} {
		s := procSides[role]
		if f.Changed(role + "-country-mode") {
			side.CountryMode = strings.ToLower(s.countryMode)
		}
		if f.Changed(role + "-countries") {
			side.Countries = s.countries
		}
		if f.Changed(role + "-type-mode") {
			side.TypeMode = strings.ToLower(s.typeMode)
		}
		if f.Changed(role + "-types") {
			side.TypeCodes = s.types
		}
	}
}
