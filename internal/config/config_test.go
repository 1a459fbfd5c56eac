package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", testNow)
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, FormatTSV, cfg.OutputFormat)
	assert.Equal(t, DefaultYearStart, cfg.Processor.YearStart)
	assert.Equal(t, 2026, cfg.Processor.YearEnd)
	assert.Equal(t, BuiltinColumns, cfg.Processor.SelectedColumns)
	assert.Equal(t, CountryAll, cfg.Processor.Actor1.CountryMode)
	assert.Equal(t, TypeAll, cfg.Processor.Actor2.TypeMode)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gdelt.yaml")
	yamlDoc := `
raw_dir: /data/raw
request_timeout: 45s
years: [2013, 2014]
processor:
  selected_columns: [SQLDATE, Actor1CountryCode]
  enable_year_filter: true
  year_start: 2010
  year_end: 2014
  only_cross_country: true
  actor1:
    country_mode: custom
    countries: "usa, chn"
    type_mode: labeled
  actor2:
    country_mode: all
    type_mode: custom
    type_codes: gov,mil
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	t.Setenv("GDELT_RAW_DIR", "/override/raw")
	t.Setenv("GDELT_CHUNK_SIZE", "1024")

	cfg, err := Load(path, testNow)
	require.NoError(t, err)

	assert.Equal(t, "/override/raw", cfg.RawDir, "env wins over yaml")
	assert.Equal(t, 1024, cfg.ChunkSize)
	assert.Equal(t, 45*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []int{2013, 2014}, cfg.Years)
	assert.Equal(t, []string{"SQLDATE", "Actor1CountryCode"}, cfg.Processor.SelectedColumns)
	assert.True(t, cfg.Processor.OnlyCrossCountry)
	assert.Equal(t, CountryCustom, cfg.Processor.Actor1.CountryMode)
	assert.Equal(t, map[string]struct{}{"USA": {}, "CHN": {}}, cfg.Processor.Actor1.CountrySet())
	assert.Equal(t, map[string]struct{}{"GOV": {}, "MIL": {}}, cfg.Processor.Actor2.TypeSet())
}

func TestLoad_RejectsBadModes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processor:\n  actor1:\n    country_mode: some\n    type_mode: all\n  actor2:\n    country_mode: all\n    type_mode: all\n"), 0o644))

	_, err := Load(path, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CountryMode")
}

func TestProcessorConfig_YearWindowOrder(t *testing.T) {
	p := DefaultProcessorConfig(testNow)
	p.YearStart, p.YearEnd = 2015, 2010
	assert.Error(t, p.Validate())

	p.YearEnd = 2015
	assert.NoError(t, p.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), testNow)
	assert.Error(t, err)
}

func TestParseTokenList(t *testing.T) {
	assert.Empty(t, ParseTokenList(""))
	assert.Empty(t, ParseTokenList(" , ,"))
	assert.Equal(t, map[string]struct{}{"USA": {}, "GBR": {}}, ParseTokenList(" usa,GBR , Usa"))
}

func TestProcessorConfig_CloneIsIndependent(t *testing.T) {
	p := DefaultProcessorConfig(testNow)
	c := p.Clone()
	c.SelectedColumns[0] = "changed"
	assert.Equal(t, "Year", p.SelectedColumns[0])
}
