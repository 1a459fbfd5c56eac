package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Remote endpoints of the GDELT 1.0 event dataset.
const (
	DefaultBaseURL             = "http://data.gdeltproject.org/events/"
	DefaultIndexURL            = "http://data.gdeltproject.org/events/index.html"
	DefaultCurrentHeaderURL    = "https://www.gdeltproject.org/data/lookups/CSV.header.dailyupdates.txt"
	DefaultHistoricalHeaderURL = "https://www.gdeltproject.org/data/lookups/CSV.header.historical.txt"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultChunkSize      = 256 << 10
	DefaultMaxBackDays    = 540
	// DefaultPollInterval is how often a foreground drains the session queue.
	DefaultPollInterval = 120 * time.Millisecond
)

// Output formats for the merged table.
const (
	FormatTSV     = "tsv"
	FormatParquet = "parquet"
)

// envPrefix is the prefix of environment overrides, e.g. GDELT_RAW_DIR.
const envPrefix = "GDELT"

// Config holds application settings. A resolved Config is passed by value
// into each run; nothing reads it from package state.
type Config struct {
	BaseURL             string        `yaml:"base_url" envconfig:"BASE_URL" validate:"required,url"`
	IndexURL            string        `yaml:"index_url" envconfig:"INDEX_URL" validate:"omitempty,url"`
	CurrentHeaderURL    string        `yaml:"current_header_url" envconfig:"CURRENT_HEADER_URL" validate:"required,url"`
	HistoricalHeaderURL string        `yaml:"historical_header_url" envconfig:"HISTORICAL_HEADER_URL" validate:"required,url"`
	RequestTimeout      time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" validate:"gt=0"`
	ChunkSize           int           `yaml:"chunk_size" envconfig:"CHUNK_SIZE" validate:"gt=0"`
	MaxBackDays         int           `yaml:"max_back_days" envconfig:"MAX_BACK_DAYS" validate:"gte=0"`
	// RequestsPerSecond throttles outbound requests; 0 disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second" envconfig:"REQUESTS_PER_SECOND" validate:"gte=0"`

	RawDir       string `yaml:"raw_dir" envconfig:"RAW_DIR"`
	OutputPath   string `yaml:"output_path" envconfig:"OUTPUT_PATH"`
	OutputFormat string `yaml:"output_format" envconfig:"OUTPUT_FORMAT" validate:"oneof=tsv parquet"`
	DbPath       string `yaml:"db_path" envconfig:"DB_PATH"`
	Years        []int  `yaml:"years" envconfig:"YEARS"`

	Processor ProcessorConfig `yaml:"processor" ignored:"true"`
}

// Default returns the built-in configuration.
func Default(now time.Time) Config {
	return Config{
		BaseURL:             DefaultBaseURL,
		IndexURL:            DefaultIndexURL,
		CurrentHeaderURL:    DefaultCurrentHeaderURL,
		HistoricalHeaderURL: DefaultHistoricalHeaderURL,
		RequestTimeout:      DefaultRequestTimeout,
		ChunkSize:           DefaultChunkSize,
		MaxBackDays:         DefaultMaxBackDays,
		RawDir:              "./gdelt_raw",
		OutputPath:          "./gdelt_merged.tsv",
		OutputFormat:        FormatTSV,
		DbPath:              "./gdelt_state.duckdb",
		Processor:           DefaultProcessorConfig(now),
	}
}

// Load layers the YAML file at path (if any) and GDELT_* environment
// variables over the defaults, then validates the result. Flags are applied
// by the caller afterwards and re-validated with Validate.
func Load(path string, now time.Time) (Config, error) {
	cfg := Default(now)

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("read %s_* environment: %w", envPrefix, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints of the config and its processor section.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", flattenValidation(err))
	}
	return nil
}

func flattenValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	var out error
	for _, fe := range verrs {
		out = errors.Join(out, fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return out
}
