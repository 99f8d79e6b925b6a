// Package config loads server settings from defaults, an optional YAML
// file, and the environment, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config aggregates every tunable part of the server.
type Config struct {
	Port            int           `yaml:"port"`
	StoreBackend    string        `yaml:"store_backend"` // memory | sqlite
	SQLitePath      string        `yaml:"sqlite_path"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"` // json | text
	LookbackMonths  int           `yaml:"lookback_months"`
	BulkConcurrency int           `yaml:"bulk_concurrency"`
	Timezone        string        `yaml:"timezone"` // IANA name; decides which day is "today"
	CORSOrigins     []string      `yaml:"cors_origins"`
	AMQPURL         string        `yaml:"amqp_url"`
	AMQPExchange    string        `yaml:"amqp_exchange"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:            8080,
		StoreBackend:    "memory",
		SQLitePath:      "rewards.db",
		LogLevel:        "info",
		LogFormat:       "json",
		LookbackMonths:  3,
		BulkConcurrency: 8,
		Timezone:        "UTC",
		CORSOrigins:     []string{"http://localhost:5173", "http://localhost:8080"},
		AMQPExchange:    "rewards",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Load reads .env (if present), then CONFIG_FILE (if set), then the
// environment, and validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []string

	c.Port = getEnvInt("PORT", c.Port, &errs)
	c.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", c.StoreBackend))
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
	c.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", c.LogFormat))
	c.LookbackMonths = getEnvInt("LOOKBACK_MONTHS", c.LookbackMonths, &errs)
	c.BulkConcurrency = getEnvInt("BULK_CONCURRENCY", c.BulkConcurrency, &errs)
	c.Timezone = getEnv("TIMEZONE", c.Timezone)
	if v := getEnv("CORS_ORIGINS", ""); v != "" {
		c.CORSOrigins = splitList(v)
	}
	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.ReadTimeout = getEnvDuration("READ_TIMEOUT", c.ReadTimeout, &errs)
	c.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", c.WriteTimeout, &errs)
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout, &errs)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Location returns the configured time zone, or UTC if it cannot be loaded.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate returns an error listing every invalid setting.
func (c Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", c.Port))
	}
	switch c.StoreBackend {
	case "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, "sqlite path cannot be empty when using sqlite backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid store backend %q: must be memory or sqlite", c.StoreBackend))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("invalid log format %q: must be json or text", c.LogFormat))
	}
	if c.LookbackMonths < 1 {
		errs = append(errs, "lookback months must be at least 1")
	}
	if c.BulkConcurrency < 1 {
		errs = append(errs, "bulk concurrency must be at least 1")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("invalid timezone %q: %v", c.Timezone, err))
	}
	if c.AMQPURL != "" && c.AMQPExchange == "" {
		errs = append(errs, "AMQP exchange cannot be empty when AMQP URL is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int, errs *[]string) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s=%q is not a number", key, value))
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration, errs *[]string) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s=%q is not a duration", key, value))
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
