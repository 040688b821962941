package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/labstack/gommon/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"trackstats/internal/catalog"
	"trackstats/internal/engine"
	"trackstats/internal/render"
)

// EnvPrefix prefixes every environment override, e.g. TRACKSTATS_MAX_ROWS.
const EnvPrefix = "TRACKSTATS"

// Config is the resolved configuration of one trackstats invocation.
type Config struct {
	Source   string `mapstructure:"source"`
	Format   string `mapstructure:"format"`
	Generate int    `mapstructure:"generate"`
	Seed     uint64 `mapstructure:"seed"`
	MaxRows  int    `mapstructure:"max_rows"`
	Workers  int    `mapstructure:"workers"`
	LogLevel string `mapstructure:"log_level"`
	Metrics  bool   `mapstructure:"metrics"`

	Output    string `mapstructure:"output"`
	Delimiter string `mapstructure:"delimiter"`
	Limit     int    `mapstructure:"limit"`
	Offset    int    `mapstructure:"offset"`

	Index  string `mapstructure:"index"`
	Value  string `mapstructure:"value"`
	Repeat int    `mapstructure:"repeat"`
	SQL    bool   `mapstructure:"sql"`

	Out string `mapstructure:"out"`

	Catalog catalog.Params `mapstructure:"catalog"`
}

// flagKeys maps config keys to the CLI flags that override them.
var flagKeys = map[string]string{
	"source":    "source",
	"format":    "format",
	"generate":  "generate",
	"seed":      "seed",
	"max_rows":  "max-rows",
	"workers":   "workers",
	"log_level": "log-level",
	"metrics":   "metrics",
	"output":    "output",
	"delimiter": "delimiter",
	"limit":     "limit",
	"offset":    "offset",
	"index":     "index",
	"value":     "value",
	"repeat":    "repeat",
	"sql":       "sql",
	"out":       "out",
}

func setDefaults(v *viper.Viper) {
	p := catalog.DefaultParams()
	v.SetDefault("source", "")
	v.SetDefault("format", string(engine.FormatAuto))
	v.SetDefault("generate", 0)
	v.SetDefault("seed", 1)
	v.SetDefault("max_rows", engine.DefaultMaxRows)
	v.SetDefault("workers", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics", false)
	v.SetDefault("output", "table")
	v.SetDefault("delimiter", ",")
	v.SetDefault("limit", 0)
	v.SetDefault("offset", 0)
	v.SetDefault("index", "")
	v.SetDefault("value", "")
	v.SetDefault("repeat", 1)
	v.SetDefault("sql", false)
	v.SetDefault("out", "")
	v.SetDefault("catalog.stream_threshold", p.StreamThreshold)
	v.SetDefault("catalog.top_energy", p.TopEnergy)
	v.SetDefault("catalog.top_per_artist", p.TopPerArtist)
}

// Load resolves configuration from defaults, the config file, TRACKSTATS_*
// environment variables and flags, later sources winning. With an empty
// path ./trackstats.yaml is read if present.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	// 1. Config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	} else {
		v.SetConfigName("trackstats")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// Optional when not asked for explicitly
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, errors.Wrap(err, "read trackstats.yaml")
			}
		}
	}

	// 2. Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// 3. Flags, only those the command defines
	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, errors.Wrapf(err, "bind flag %s", name)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field that has a restricted domain.
func (c Config) Validate() error {
	if _, err := engine.ParseFormat(c.Format); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := render.ParseDelimiter(c.Delimiter); err != nil {
		return err
	}
	switch {
	case c.Output != "table" && c.Output != "json":
		return errors.Newf("output must be table or json, got %q", c.Output)
	case c.Generate < 0:
		return errors.Newf("generate must be >= 0, got %d", c.Generate)
	case c.MaxRows < 0:
		return errors.Newf("max rows must be >= 0, got %d", c.MaxRows)
	case c.Workers < 0:
		return errors.Newf("workers must be >= 0, got %d", c.Workers)
	case c.Limit < 0 || c.Offset < 0:
		return errors.Newf("limit and offset must be >= 0")
	case c.Repeat < 1:
		return errors.Newf("repeat must be >= 1, got %d", c.Repeat)
	}
	return errors.Wrap(c.Catalog.Validate(), "catalog")
}

// Level maps LogLevel onto a gommon log level.
func (c Config) Level() (log.Lvl, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return log.DEBUG, nil
	case "info", "":
		return log.INFO, nil
	case "warn", "warning":
		return log.WARN, nil
	case "error":
		return log.ERROR, nil
	case "off":
		return log.OFF, nil
	}
	return 0, errors.Newf("unknown log level %q", c.LogLevel)
}

// LoadOptions turns the data settings into engine load options.
func (c Config) LoadOptions() []engine.Option {
	f, _ := engine.ParseFormat(c.Format)
	return []engine.Option{
		engine.WithFormat(f),
		engine.WithMaxRows(c.MaxRows),
		engine.WithWorkers(c.Workers),
	}
}
