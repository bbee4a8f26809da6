package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/isdmx/scriptbox/hostfunc"
	"github.com/isdmx/scriptbox/limits"
)

// EnvPrefix prefixes environment overrides, e.g. SCRIPTBOX_LIMITS_MAX_OPERATIONS.
const EnvPrefix = "SCRIPTBOX"

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Limits        limits.Policy       `mapstructure:"limits"`
	Executor      ExecutorConfig      `mapstructure:"executor"`
	HostFunctions HostFunctionsConfig `mapstructure:"hostfunctions"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport  string `mapstructure:"transport"`
	HTTPPort   int    `mapstructure:"http_port"`
	HealthPort int    `mapstructure:"health_port"`
}

// ExecutorConfig holds script executor configuration
type ExecutorConfig struct {
	CacheSize       int      `mapstructure:"cache_size"`
	DisabledSymbols []string `mapstructure:"disabled_symbols"`
}

// HostFunctionsConfig selects the host capabilities exposed to scripts
type HostFunctionsConfig struct {
	KV  KVConfig  `mapstructure:"kv"`
	Log LogConfig `mapstructure:"log"`
}

// KVConfig enables the in-memory key-value store
type KVConfig struct {
	hostfunc.KVConfig `mapstructure:",squash"`

	Enabled bool `mapstructure:"enabled"`
}

// LogConfig enables the script log function
type LogConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// New loads config.yaml from the working directory or ./config, applies
// environment overrides and validates the result. A missing file is not an
// error.
func New() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// Load reads the configuration from path instead of the search paths.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	kv := hostfunc.DefaultKVConfig()
	policy := limits.DefaultPolicy()

	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.health_port", 8081)

	v.SetDefault("limits.max_operations", policy.MaxOperations)
	v.SetDefault("limits.max_duration", policy.MaxDuration)
	v.SetDefault("limits.max_string_len", policy.MaxStringLen)
	v.SetDefault("limits.max_array_size", policy.MaxArraySize)
	v.SetDefault("limits.memory_limit_bytes", policy.MemoryLimitBytes)

	v.SetDefault("executor.cache_size", 256)
	v.SetDefault("executor.disabled_symbols", []string{})

	v.SetDefault("hostfunctions.kv.enabled", false)
	v.SetDefault("hostfunctions.kv.max_key_size", kv.MaxKeySize)
	v.SetDefault("hostfunctions.kv.max_value_size", kv.MaxValueSize)
	v.SetDefault("hostfunctions.kv.max_entries", kv.MaxEntries)
	v.SetDefault("hostfunctions.log.enabled", true)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be between 1 and 65535, got: %d", c.Server.HTTPPort)
	}

	if c.Server.HealthPort <= 0 || c.Server.HealthPort > 65535 {
		return fmt.Errorf("server.health_port must be between 1 and 65535, got: %d", c.Server.HealthPort)
	}

	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}

	if c.Executor.CacheSize < 0 {
		return fmt.Errorf("executor.cache_size must not be negative, got: %d", c.Executor.CacheSize)
	}

	if kv := c.HostFunctions.KV; kv.Enabled && (kv.MaxKeySize <= 0 || kv.MaxValueSize <= 0 || kv.MaxEntries <= 0) {
		return errors.New("hostfunctions.kv sizes must be positive")
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// Policy returns the resource limits as an execution policy.
func (c *Config) Policy() limits.Policy {
	return c.Limits
}
