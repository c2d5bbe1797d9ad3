package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"foxylend/observability/logging"
	telemetry "foxylend/observability/otel"
)

const (
	defaultListen       = ":8446"
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 50
	defaultMaxAttempts  = 5

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Environment variables that override the file. Secrets are expected to come
// from here in production.
const (
	envListen       = "LENDINGD_LISTEN"
	envEnvironment  = "LENDINGD_ENV"
	envDataDir      = "LENDINGD_DATA_DIR"
	envGenesis      = "LENDINGD_GENESIS"
	envHMACSecret   = "LENDINGD_AUTH_HMAC_SECRET"
	envOutboxDriver = "LENDINGD_OUTBOX_DRIVER"
	envOutboxDSN    = "LENDINGD_OUTBOX_DSN"
	envLogLevel     = "LENDINGD_LOG_LEVEL"
	envOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envOTLPHeaders  = "OTEL_EXPORTER_OTLP_HEADERS"
	envOTLPInsecure = "OTEL_EXPORTER_OTLP_INSECURE"
)

// Config captures the runtime settings for the lending service daemon.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Environment   string          `yaml:"environment"`
	DataDir       string          `yaml:"data_dir"`
	GenesisPath   string          `yaml:"genesis"`
	TLS           TLSConfig       `yaml:"tls"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Outbox        OutboxConfig    `yaml:"outbox"`
	Logging       LoggingConfig   `yaml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

// TLSConfig describes the TLS material for the HTTP listener.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	HMACSecret string        `yaml:"hmac_secret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ClockSkew  time.Duration `yaml:"clock_skew"`
}

// RateLimitConfig bounds mutations per caller. Zero disables throttling.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// OutboxConfig selects the transfer outbox database and worker cadence.
type OutboxConfig struct {
	Driver       string        `yaml:"driver"`
	DSN          string        `yaml:"dsn"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// LoggingConfig controls verbosity and the optional rotated log file.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// TelemetryConfig configures the OTLP exporters.
type TelemetryConfig struct {
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	Headers     map[string]string `yaml:"headers"`
	Traces      bool              `yaml:"traces"`
	Metrics     bool              `yaml:"metrics"`
	SampleRatio float64           `yaml:"sample_ratio"`
}

// Load reads the YAML configuration from disk, applies environment overrides
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{ListenAddress: defaultListen}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsDev reports whether the daemon runs in the development environment.
func (cfg Config) IsDev() bool {
	return strings.EqualFold(cfg.Environment, "dev")
}

// Sanitized returns a copy with secrets masked for logging.
func (cfg Config) Sanitized() Config {
	clone := cfg
	clone.Auth.HMACSecret = logging.MaskValue(clone.Auth.HMACSecret)
	clone.Outbox.DSN = maskDSN(clone.Outbox.DSN, clone.Outbox.Driver)
	if len(clone.Telemetry.Headers) > 0 {
		headers := make(map[string]string, len(clone.Telemetry.Headers))
		for k := range clone.Telemetry.Headers {
			headers[k] = logging.RedactedValue
		}
		clone.Telemetry.Headers = headers
	}
	return clone
}

func (cfg *Config) applyEnv() {
	cfg.ListenAddress = stringFromEnv(envListen, cfg.ListenAddress)
	cfg.Environment = stringFromEnv(envEnvironment, cfg.Environment)
	cfg.DataDir = stringFromEnv(envDataDir, cfg.DataDir)
	cfg.GenesisPath = stringFromEnv(envGenesis, cfg.GenesisPath)
	cfg.Auth.HMACSecret = stringFromEnv(envHMACSecret, cfg.Auth.HMACSecret)
	cfg.Outbox.Driver = stringFromEnv(envOutboxDriver, cfg.Outbox.Driver)
	cfg.Outbox.DSN = stringFromEnv(envOutboxDSN, cfg.Outbox.DSN)
	cfg.Logging.Level = stringFromEnv(envLogLevel, cfg.Logging.Level)
	cfg.Telemetry.Endpoint = stringFromEnv(envOTLPEndpoint, cfg.Telemetry.Endpoint)
	cfg.Telemetry.Insecure = boolFromEnv(envOTLPInsecure, cfg.Telemetry.Insecure)
	if raw := strings.TrimSpace(os.Getenv(envOTLPHeaders)); raw != "" {
		cfg.Telemetry.Headers = telemetry.ParseHeaders(raw)
	}
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.GenesisPath = strings.TrimSpace(cfg.GenesisPath)
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)
	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	cfg.Auth.Issuer = strings.TrimSpace(cfg.Auth.Issuer)
	cfg.Auth.Audience = strings.TrimSpace(cfg.Auth.Audience)

	cfg.Outbox.Driver = strings.ToLower(strings.TrimSpace(cfg.Outbox.Driver))
	if cfg.Outbox.Driver == "" {
		cfg.Outbox.Driver = DriverSQLite
	}
	cfg.Outbox.DSN = strings.TrimSpace(cfg.Outbox.DSN)
	if cfg.Outbox.DSN == "" && cfg.Outbox.Driver == DriverSQLite {
		cfg.Outbox.DSN = "file::memory:?cache=shared"
	}
	if cfg.Outbox.PollInterval <= 0 {
		cfg.Outbox.PollInterval = defaultPollInterval
	}
	if cfg.Outbox.BatchSize <= 0 {
		cfg.Outbox.BatchSize = defaultBatchSize
	}
	if cfg.Outbox.MaxAttempts <= 0 {
		cfg.Outbox.MaxAttempts = defaultMaxAttempts
	}
	cfg.Logging.Level = strings.TrimSpace(cfg.Logging.Level)
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
}

func (cfg Config) validate() error {
	hasCert := cfg.TLS.CertPath != ""
	hasKey := cfg.TLS.KeyPath != ""
	if hasCert != hasKey {
		return fmt.Errorf("tls: cert and key must either both be provided or both be empty")
	}
	if !cfg.TLS.AllowInsecure && !hasCert {
		return fmt.Errorf("tls: cert and key are required unless allow_insecure=true")
	}
	if cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("auth: hmac_secret is required")
	}
	if !cfg.IsDev() && len(cfg.Auth.HMACSecret) < 32 {
		return fmt.Errorf("auth: hmac_secret must be at least 32 bytes outside dev")
	}
	if cfg.DataDir == "" && !cfg.IsDev() {
		return fmt.Errorf("data_dir is required outside dev")
	}
	switch cfg.Outbox.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if cfg.Outbox.DSN == "" {
			return fmt.Errorf("outbox: dsn is required for postgres")
		}
	default:
		return fmt.Errorf("outbox: unsupported driver %q", cfg.Outbox.Driver)
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must be non-negative")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0,1]")
	}
	return nil
}

func maskDSN(dsn, driver string) string {
	if dsn == "" || driver != DriverPostgres {
		return dsn
	}
	return logging.RedactedValue
}

func stringFromEnv(key, fallback string) string {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func boolFromEnv(key string, fallback bool) bool {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}
