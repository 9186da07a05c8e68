// Package config loads application configuration from environment variables
// with an optional YAML overlay file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/docuvault/docuvault/pkg/storage"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Storage storage.Config `yaml:"storage"`
	Session SessionConfig  `yaml:"session"`
	Authz   AuthzConfig    `yaml:"authz"`
	History HistoryConfig  `yaml:"history"`
	Log     LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SessionConfig holds session token settings.
//
// PropagationWindow is the bounded-staleness interval for grants baked into
// session tokens: an authorization-affecting change becomes visible to an
// already-issued session only after this window elapses and the token is
// refreshed. This is a deliberate trade-off between responsiveness and
// per-request database cost, not a bug.
type SessionConfig struct {
	SigningKey        string        `yaml:"signing_key"`
	Issuer            string        `yaml:"issuer"`
	TokenExpiry       time.Duration `yaml:"token_expiry"`
	RefreshExpiry     time.Duration `yaml:"refresh_expiry"`
	PropagationWindow time.Duration `yaml:"propagation_window"`
}

// AuthzConfig holds access-resolution engine settings
type AuthzConfig struct {
	// CacheTTL bounds how long a resolved grant set may be served from the
	// in-process cache. Matches the session propagation window by default.
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	CacheSize int           `yaml:"cache_size"`
}

// HistoryConfig holds document history retention settings
type HistoryConfig struct {
	RetentionDays   int    `yaml:"retention_days"`
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables. If DOCUVAULT_CONFIG
// points at a YAML file, its values are applied first and the environment
// overrides them.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("DOCUVAULT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: storage.DefaultConfig(),
		Session: SessionConfig{
			SigningKey:        "",
			Issuer:            "docuvault",
			TokenExpiry:       24 * time.Hour,
			RefreshExpiry:     7 * 24 * time.Hour,
			PropagationWindow: 60 * time.Second,
		},
		Authz: AuthzConfig{
			CacheTTL:  60 * time.Second,
			CacheSize: 4096,
		},
		History: HistoryConfig{
			RetentionDays:   365,
			CleanupSchedule: "0 3 * * *",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("DOCUVAULT_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("DOCUVAULT_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvDuration("DOCUVAULT_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("DOCUVAULT_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvDuration("DOCUVAULT_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("DOCUVAULT_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Storage.PostgresURL = getEnv("DOCUVAULT_POSTGRES_URL", cfg.Storage.PostgresURL)
	cfg.Storage.PostgresMaxConns = getEnvInt("DOCUVAULT_POSTGRES_MAX_CONNS", cfg.Storage.PostgresMaxConns)
	cfg.Storage.PostgresMinConns = getEnvInt("DOCUVAULT_POSTGRES_MIN_CONNS", cfg.Storage.PostgresMinConns)
	cfg.Storage.PostgresTimeout = getEnvDuration("DOCUVAULT_POSTGRES_TIMEOUT", cfg.Storage.PostgresTimeout)
	cfg.Storage.RedisURL = getEnv("DOCUVAULT_REDIS_URL", cfg.Storage.RedisURL)
	cfg.Storage.RedisPassword = getEnv("DOCUVAULT_REDIS_PASSWORD", cfg.Storage.RedisPassword)
	cfg.Storage.RedisDB = getEnvInt("DOCUVAULT_REDIS_DB", cfg.Storage.RedisDB)

	cfg.Session.SigningKey = getEnv("DOCUVAULT_SIGNING_KEY", cfg.Session.SigningKey)
	cfg.Session.Issuer = getEnv("DOCUVAULT_ISSUER", cfg.Session.Issuer)
	cfg.Session.TokenExpiry = getEnvDuration("DOCUVAULT_TOKEN_EXPIRY", cfg.Session.TokenExpiry)
	cfg.Session.RefreshExpiry = getEnvDuration("DOCUVAULT_REFRESH_EXPIRY", cfg.Session.RefreshExpiry)
	cfg.Session.PropagationWindow = getEnvDuration("DOCUVAULT_PROPAGATION_WINDOW", cfg.Session.PropagationWindow)

	cfg.Authz.CacheTTL = getEnvDuration("DOCUVAULT_AUTHZ_CACHE_TTL", cfg.Authz.CacheTTL)
	cfg.Authz.CacheSize = getEnvInt("DOCUVAULT_AUTHZ_CACHE_SIZE", cfg.Authz.CacheSize)

	cfg.History.RetentionDays = getEnvInt("DOCUVAULT_HISTORY_RETENTION_DAYS", cfg.History.RetentionDays)
	cfg.History.CleanupSchedule = getEnv("DOCUVAULT_HISTORY_CLEANUP_SCHEDULE", cfg.History.CleanupSchedule)

	cfg.Log.Level = getEnv("DOCUVAULT_LOG_LEVEL", cfg.Log.Level)
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Session.SigningKey == "" {
		return fmt.Errorf("session signing key is required (DOCUVAULT_SIGNING_KEY)")
	}
	if c.Session.PropagationWindow <= 0 {
		return fmt.Errorf("session propagation window must be positive")
	}
	if c.Authz.CacheTTL < 0 {
		return fmt.Errorf("authz cache TTL must not be negative")
	}
	if c.Authz.CacheSize <= 0 {
		return fmt.Errorf("authz cache size must be positive")
	}
	if c.History.RetentionDays <= 0 {
		return fmt.Errorf("history retention must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
