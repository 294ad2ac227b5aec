// Package config loads runtime settings from defaults, an optional
// config.yaml, a .env file and the process environment, in rising priority.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"

	minPersistentSecretLength = 16
)

type Config struct {
	// HTTP Server
	Port               string   `mapstructure:"port"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`

	// Storage
	DataBackend  string `mapstructure:"data_backend"`
	SQLiteDBPath string `mapstructure:"sqlite_db_path"`

	// Auth
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTTTL    time.Duration `mapstructure:"jwt_ttl"`

	// AMQP, optional: an empty URL disables event publishing
	AMQPURL      string `mapstructure:"amqp_url"`
	AMQPExchange string `mapstructure:"amqp_exchange"`
	AMQPQueue    string `mapstructure:"amqp_queue"`

	// Recurring engine sweep
	RecurringSweepInterval    time.Duration `mapstructure:"recurring_sweep_interval"`
	RecurringSweepConcurrency int           `mapstructure:"recurring_sweep_concurrency"`

	// Analytics cache
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	CacheSize int           `mapstructure:"cache_size"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// keys lists every setting; each is bound to the upper-cased env name.
var keys = []string{
	"port", "cors_allowed_origins", "rate_limit_per_minute",
	"data_backend", "sqlite_db_path",
	"jwt_secret", "jwt_ttl",
	"amqp_url", "amqp_exchange", "amqp_queue",
	"recurring_sweep_interval", "recurring_sweep_concurrency",
	"cache_ttl", "cache_size",
	"log_level", "log_format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8081")
	v.SetDefault("cors_allowed_origins", []string{"*"})
	v.SetDefault("rate_limit_per_minute", 20)

	v.SetDefault("data_backend", BackendMemory)
	v.SetDefault("sqlite_db_path", "./data/spendwise.db")

	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_ttl", "168h")

	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "spendwise")
	v.SetDefault("amqp_queue", "")

	v.SetDefault("recurring_sweep_interval", "1h")
	v.SetDefault("recurring_sweep_concurrency", 4)

	v.SetDefault("cache_ttl", "5m")
	v.SetDefault("cache_size", 1000)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load reads configuration. envFile, when not empty, names a dotenv file
// to load first; a missing default .env is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.spendwise")

	for _, k := range keys {
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSAllowedOrigins = splitList(cfg.CORSAllowedOrigins)
	return &cfg, nil
}

// splitList flattens comma-separated entries and drops blanks.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate validates the configuration and returns an error listing every problem.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{BackendMemory, BackendSQLite}
	if !slices.Contains(validBackends, c.DataBackend) {
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.JWTSecret == "" {
		errs = append(errs, "JWT secret cannot be empty")
	} else if c.DataBackend == BackendSQLite && len(c.JWTSecret) < minPersistentSecretLength {
		errs = append(errs, fmt.Sprintf("JWT secret must be at least %d characters with a persistent backend", minPersistentSecretLength))
	}
	if c.JWTTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid JWT TTL %v: must be at least 1 minute", c.JWTTTL))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RecurringSweepInterval < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid recurring sweep interval %v: must be at least 1 minute", c.RecurringSweepInterval))
	} else if c.RecurringSweepInterval > 24*time.Hour {
		errs = append(errs, fmt.Sprintf("invalid recurring sweep interval %v: must be at most 24 hours", c.RecurringSweepInterval))
	}
	if c.RecurringSweepConcurrency < 1 || c.RecurringSweepConcurrency > 64 {
		errs = append(errs, fmt.Sprintf("invalid recurring sweep concurrency %d: must be between 1 and 64", c.RecurringSweepConcurrency))
	}

	if c.RateLimitPerMinute < 1 {
		errs = append(errs, fmt.Sprintf("invalid rate limit %d: must be at least 1 per minute", c.RateLimitPerMinute))
	}
	if c.CacheSize < 0 {
		errs = append(errs, fmt.Sprintf("invalid cache size %d: must not be negative", c.CacheSize))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, fmt.Sprintf("invalid cache TTL %v: must not be negative", c.CacheTTL))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level '%s'", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
