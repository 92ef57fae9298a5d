package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"geoipsql/internal/repository"
	"geoipsql/internal/service"
	"geoipsql/internal/source"
)

type Config struct {
	SourceDir         string   `mapstructure:"source"`
	StoreDriver       string   `mapstructure:"driver"`
	StoreDSN          string   `mapstructure:"db"`
	Languages         []string `mapstructure:"language"`
	Regions           []string `mapstructure:"regions"`
	Countries         []string `mapstructure:"countries"`
	BlocksFile        string   `mapstructure:"blocks_file"`
	LocationsTemplate string   `mapstructure:"locations_template"`
	BatchSize         int      `mapstructure:"batch_size"`
	ProgressEvery     int      `mapstructure:"progress_every"`
	Progress          bool     `mapstructure:"progress"`
	RedisURL          string   `mapstructure:"redis_url"`
	Probes            []string `mapstructure:"probe"`
	ProbeLocale       string   `mapstructure:"probe_locale"`
	Debug             bool     `mapstructure:"debug"`
}

// Load reads configuration from defaults, an optional YAML file, GEOIPSQL_*
// environment variables and command-line flags, in increasing priority.
func Load(args []string) (*Config, error) {
	v := viper.New()

	v.SetDefault("driver", repository.DriverSQLite)
	v.SetDefault("db", "geoip.sqlite")
	v.SetDefault("language", []string{"en"})
	v.SetDefault("blocks_file", source.DefaultBlocksFile)
	v.SetDefault("locations_template", source.DefaultLocationsTemplate)
	v.SetDefault("batch_size", repository.DefaultBatchSize)
	v.SetDefault("progress_every", service.DefaultProgressEvery)
	v.SetDefault("progress", true)

	flags := pflag.NewFlagSet("geoipsql", pflag.ContinueOnError)
	configFile := flags.String("config", "", "configuration file path")
	flags.String("source", "", "directory with extracted MaxMind GeoLite2 CSV files")
	flags.String("db", "", "output store path or DSN")
	flags.String("driver", "", "store driver: sqlite or postgres")
	flags.StringSlice("language", nil, "languages to process, the first one is primary")
	flags.StringSlice("regions", nil, "continent codes to include")
	flags.StringSlice("countries", nil, "country ISO codes to include")
	flags.Int("batch-size", 0, "ranges per transaction")
	flags.Bool("progress", true, "log progress while loading ranges")
	flags.String("redis-url", "", "mirror the built store into Redis")
	flags.StringSlice("probe", nil, "IPv4 addresses to resolve after the build")
	flags.String("probe-locale", "", "locale used for probe lookups")
	flags.Bool("debug", false, "enable debug logging")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	for key, name := range map[string]string{
		"source":       "source",
		"db":           "db",
		"driver":       "driver",
		"language":     "language",
		"regions":      "regions",
		"countries":    "countries",
		"batch_size":   "batch-size",
		"progress":     "progress",
		"redis_url":    "redis-url",
		"probe":        "probe",
		"probe_locale": "probe-locale",
		"debug":        "debug",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix("geoipsql")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.SourceDir == "" {
		return errors.New("source directory is required")
	}
	if len(c.Languages) == 0 {
		return errors.New("at least one language is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	switch c.StoreDriver {
	case repository.DriverSQLite, repository.DriverPostgres:
	default:
		return fmt.Errorf("unsupported store driver %q", c.StoreDriver)
	}

	return nil
}

// Files returns the source file layout.
func (c *Config) Files() source.Files {
	return source.NewFiles(c.SourceDir, c.BlocksFile, c.LocationsTemplate)
}

// PipelineOptions maps the configuration onto pipeline options. progress is
// only attached when progress reporting is enabled.
func (c *Config) PipelineOptions(progress func(rows int)) service.Options {
	opts := service.Options{
		Languages: c.Languages,
		Filter: service.Filter{
			Regions:   lo.Compact(c.Regions),
			Countries: lo.Compact(c.Countries),
		},
		Ranges: service.RangeOptions{
			BatchSize:     c.BatchSize,
			ProgressEvery: c.ProgressEvery,
		},
	}

	if c.Progress {
		opts.Ranges.Progress = progress
	}

	return opts
}
