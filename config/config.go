package config

import (
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Query sources.
const (
	QuerySourceDriver  = "driver"
	QuerySourceTracing = "tracing"
)

// EnvPrefix is prepended to every environment override, e.g.
// API_DEBUGGER_COLLECT_QUERIES=true.
const EnvPrefix = "API_DEBUGGER"

var (
	// ErrInvalidQuerySource indicates an unknown query_source value.
	ErrInvalidQuerySource = errors.New("config: invalid query source")

	// ErrInvalidLogLevel indicates an unknown log_level value.
	ErrInvalidLogLevel = errors.New("config: invalid log level")
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Config holds the debugger configuration.
type Config struct {
	ServiceName      string        `mapstructure:"service_name"`
	LogLevel         string        `mapstructure:"log_level"`
	Enabled          bool          `mapstructure:"enabled"`
	CollectQueries   bool          `mapstructure:"collect_queries"`
	QuerySource      string        `mapstructure:"query_source"`
	MaxBodyBytes     int64         `mapstructure:"max_body_bytes"`
	StaleSpanTimeout time.Duration `mapstructure:"stale_span_timeout"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ServiceName:      "api-debugger",
		LogLevel:         "info",
		Enabled:          true,
		CollectQueries:   false,
		QuerySource:      QuerySourceDriver,
		MaxBodyBytes:     4 << 20,
		StaleSpanTimeout: 2 * time.Minute,
	}
}

// Load reads config.yaml from path, when present, and applies environment
// overrides on top of the defaults. An empty path only reads the environment.
func Load(path string) (config Config, err error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.AddConfigPath(path)
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if err = v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return config, errors.Wrapf(err, "read config from %s", path)
			}
			err = nil
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, errors.Wrap(err, "decode config")
	}
	return config, config.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.QuerySource != QuerySourceDriver && c.QuerySource != QuerySourceTracing {
		return errors.Wrapf(ErrInvalidQuerySource, "%q", c.QuerySource)
	}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return errors.Wrapf(ErrInvalidLogLevel, "%q", c.LogLevel)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("service_name", d.ServiceName)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("enabled", d.Enabled)
	v.SetDefault("collect_queries", d.CollectQueries)
	v.SetDefault("query_source", d.QuerySource)
	v.SetDefault("max_body_bytes", d.MaxBodyBytes)
	v.SetDefault("stale_span_timeout", d.StaleSpanTimeout)
}
