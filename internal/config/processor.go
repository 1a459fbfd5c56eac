package config

import (
	"slices"
	"strings"
	"time"
)

// Country filter modes for one actor role.
const (
	CountryAll    = "all"
	CountryCustom = "custom"
)

// Type filter modes for one actor role.
const (
	TypeAll     = "all"
	TypeLabeled = "labeled"
	TypeCustom  = "custom"
)

// DefaultYearStart is the lower bound of the year window when none is configured.
const DefaultYearStart = 2005

// BuiltinColumns is the default column selection offered for a run.
var BuiltinColumns = []string{
	"Year", "SQLDATE", "MonthYear",
	"Actor1CountryCode", "Actor1Type1Code",
	"Actor2CountryCode", "Actor2Type1Code",
	"IsRootEvent",
	"EventCode", "EventBaseCode",
	"QuadClass", "GoldsteinScale", "AvgTone",
}

// CommonActorTypes and QuickCountries are shortcuts a front end can offer
// when building custom token lists.
var (
	CommonActorTypes = []string{"GOV", "MIL", "COP", "JUD", "SPY", "OPP", "REB", "BUS", "EDU", "HLH", "MED", "ELI", "CVL", "REF", "JRN", "NGO"}
	QuickCountries   = []string{"USA", "CHN", "RUS", "GBR", "FRA", "DEU", "JPN"}
)

// SideFilter configures country and type filtering for one actor role.
// Countries and TypeCodes are comma-separated token lists.
type SideFilter struct {
	CountryMode string `yaml:"country_mode" validate:"oneof=all custom"`
	Countries   string `yaml:"countries"`
	TypeMode    string `yaml:"type_mode" validate:"oneof=all labeled custom"`
	TypeCodes   string `yaml:"type_codes"`
}

// CountrySet returns the parsed custom country tokens.
func (s SideFilter) CountrySet() map[string]struct{} { return ParseTokenList(s.Countries) }

// TypeSet returns the parsed custom type tokens.
func (s SideFilter) TypeSet() map[string]struct{} { return ParseTokenList(s.TypeCodes) }

// ProcessorConfig is the per-run configuration of a merge. An empty
// SelectedColumns means every column of the resolved schema.
type ProcessorConfig struct {
	SelectedColumns  []string   `yaml:"selected_columns"`
	EnableYearFilter bool       `yaml:"enable_year_filter"`
	YearStart        int        `yaml:"year_start"`
	YearEnd          int        `yaml:"year_end" validate:"gtefield=YearStart"`
	OnlyCrossCountry bool       `yaml:"only_cross_country"`
	Actor1           SideFilter `yaml:"actor1"`
	Actor2           SideFilter `yaml:"actor2"`
}

// DefaultProcessorConfig mirrors the defaults a fresh session starts with.
func DefaultProcessorConfig(now time.Time) ProcessorConfig {
	return ProcessorConfig{
		SelectedColumns: slices.Clone(BuiltinColumns),
		YearStart:       DefaultYearStart,
		YearEnd:         now.UTC().Year(),
		Actor1:          SideFilter{CountryMode: CountryAll, TypeMode: TypeAll},
		Actor2:          SideFilter{CountryMode: CountryAll, TypeMode: TypeAll},
	}
}

// Clone returns a copy that shares no slices with p.
func (p ProcessorConfig) Clone() ProcessorConfig {
	p.SelectedColumns = slices.Clone(p.SelectedColumns)
	return p
}

// Validate checks the processor section on its own.
func (p ProcessorConfig) Validate() error {
	if err := validate.Struct(p); err != nil {
		return flattenValidation(err)
	}
	return nil
}

// ParseTokenList splits a comma-separated list into an upper-cased token set.
// Blank tokens are dropped; an empty input yields an empty set.
func ParseTokenList(txt string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range strings.Split(txt, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out[strings.ToUpper(t)] = struct{}{}
	}
	return out
}
