// Package config defines the application configuration and loads it from a
// YAML file with environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/haroldofalcao/optinutri/pkg/constants"
	"github.com/haroldofalcao/optinutri/pkg/validation"
)

// EnvPrefix prefixes environment overrides, e.g. OPTINUTRI_HISTORY_BACKEND.
const EnvPrefix = "OPTINUTRI"

// Configuration holds all configuration for optinutri.
type Configuration struct {
	Logging   LoggingConfig   `yaml:"logging,omitempty" mapstructure:"logging"`
	Output    OutputConfig    `yaml:"output,omitempty" mapstructure:"output"`
	Catalog   CatalogConfig   `yaml:"catalog,omitempty" mapstructure:"catalog"`
	Optimizer OptimizerConfig `yaml:"optimizer,omitempty" mapstructure:"optimizer"`
	Server    ServerConfig    `yaml:"server,omitempty" mapstructure:"server"`
	History   HistoryConfig   `yaml:"history,omitempty" mapstructure:"history"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" mapstructure:"level"`           // debug, info, warn, error
	Format     string `yaml:"format,omitempty" mapstructure:"format"`         // json, console
	OutputFile string `yaml:"outputFile,omitempty" mapstructure:"outputFile"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty" mapstructure:"format"` // pretty, csv, json
}

// CatalogConfig points at the formula catalog. An empty path selects the
// catalog embedded in the binary.
type CatalogConfig struct {
	Path string `yaml:"path,omitempty" mapstructure:"path"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Address       string        `yaml:"address,omitempty" mapstructure:"address"`
	MaxUploadSize string        `yaml:"maxUploadSize,omitempty" mapstructure:"maxUploadSize"`
	RateLimit     float64       `yaml:"rateLimit,omitempty" mapstructure:"rateLimit"`
	Burst         int           `yaml:"burst,omitempty" mapstructure:"burst"`
	CacheTTL      time.Duration `yaml:"cacheTTL,omitempty" mapstructure:"cacheTTL"`
	Version       string        `yaml:"version,omitempty" mapstructure:"version"`
}

// HistoryConfig selects where optimization history is kept.
type HistoryConfig struct {
	Backend       string `yaml:"backend,omitempty" mapstructure:"backend"` // memory, redis
	RedisAddr     string `yaml:"redisAddr,omitempty" mapstructure:"redisAddr"`
	RedisPassword string `yaml:"redisPassword,omitempty" mapstructure:"redisPassword"`
	RedisDB       int    `yaml:"redisDB,omitempty" mapstructure:"redisDB"`
	MaxEntries    int    `yaml:"maxEntries,omitempty" mapstructure:"maxEntries"`
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. Environment variables prefixed with EnvPrefix override
// file values.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}

	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}

	configuration.Normalize()
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	return &configuration, nil
}

// Default returns a normalized configuration for running without a file.
func Default() *Configuration {
	c := &Configuration{}
	c.Normalize()
	return c
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputFile", "")
	v.SetDefault("output.format", constants.OutputFormatPretty)
	v.SetDefault("catalog.path", "")
	v.SetDefault("optimizer.nutrientTolerance", constants.NutrientTolerance)
	v.SetDefault("optimizer.countTolerance", constants.CountTolerance)
	v.SetDefault("optimizer.bagEpsilon", constants.BagEpsilon)
	v.SetDefault("optimizer.solverTimeLimit", "0s")
	v.SetDefault("server.address", constants.DefaultServerAddress)
	v.SetDefault("server.maxUploadSize", "256K")
	v.SetDefault("server.rateLimit", constants.DefaultRateLimit)
	v.SetDefault("server.burst", constants.DefaultRateBurst)
	v.SetDefault("server.cacheTTL", fmt.Sprintf("%ds", constants.DefaultCacheTTLSeconds))
	v.SetDefault("server.version", "dev")
	v.SetDefault("history.backend", constants.HistoryBackendMemory)
	v.SetDefault("history.redisAddr", "")
	v.SetDefault("history.redisPassword", "")
	v.SetDefault("history.redisDB", 0)
	v.SetDefault("history.maxEntries", constants.DefaultHistoryEntries)
}

// Normalize applies defaults and canonical spellings.
func (c *Configuration) Normalize() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if c.Output.Format == "" {
		c.Output.Format = constants.OutputFormatPretty
	}

	c.Catalog.Path = strings.TrimSpace(c.Catalog.Path)

	c.Optimizer.Normalize()

	if strings.TrimSpace(c.Server.Address) == "" {
		c.Server.Address = constants.DefaultServerAddress
	}
	if c.Server.RateLimit <= 0 {
		c.Server.RateLimit = constants.DefaultRateLimit
	}
	if c.Server.Burst <= 0 {
		c.Server.Burst = constants.DefaultRateBurst
	}
	if c.Server.CacheTTL <= 0 {
		c.Server.CacheTTL = constants.DefaultCacheTTLSeconds * time.Second
	}
	if strings.TrimSpace(c.Server.Version) == "" {
		c.Server.Version = "dev"
	}

	c.History.Backend = CanonicalHistoryBackend(c.History.Backend)
	if c.History.MaxEntries <= 0 {
		c.History.MaxEntries = constants.DefaultHistoryEntries
	}
}

// Validate returns an error when the configuration holds unsupported values.
func (c *Configuration) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}
	if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
		return err
	}
	if err := c.Optimizer.Validate(); err != nil {
		return err
	}

	switch c.History.Backend {
	case constants.HistoryBackendMemory:
	case constants.HistoryBackendRedis:
		if strings.TrimSpace(c.History.RedisAddr) == "" {
			return fmt.Errorf("history backend %q requires redisAddr", c.History.Backend)
		}
	default:
		return fmt.Errorf("history backend %q is not supported", c.History.Backend)
	}
	return nil
}

// CanonicalHistoryBackend returns the canonical identifier for a history backend.
func CanonicalHistoryBackend(value string) string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	switch trimmed {
	case "", "mem", "memory", "in-memory", "inmemory":
		return constants.HistoryBackendMemory
	default:
		return trimmed
	}
}
