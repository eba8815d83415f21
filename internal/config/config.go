// Package config loads application configuration from YAML files and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix scopes environment overrides, e.g. RELAY_DATABASE__URL.
// Double underscore separates nesting levels.
const envPrefix = "RELAY_"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Bus           BusConfig           `koanf:"bus"`
	Consumer      ConsumerConfig      `koanf:"consumer"`
	Retry         RetryConfig         `koanf:"retry"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Auth          AuthConfig          `koanf:"auth"`
	CORS          CORSConfig          `koanf:"cors"`
	Log           LogConfig           `koanf:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	MigrationsPath  string        `koanf:"migrations_path"`
}

// BusConfig contains event bus settings.
type BusConfig struct {
	Partitions int `koanf:"partitions"`
}

// ConsumerConfig contains event consumer settings.
type ConsumerConfig struct {
	Group string `koanf:"group"`
}

// RetryConfig contains notification retry sweep settings.
type RetryConfig struct {
	Schedule          string        `koanf:"schedule"`
	BatchSize         int           `koanf:"batch_size"`
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// NotificationsConfig contains notification delivery settings.
type NotificationsConfig struct {
	Enabled bool        `koanf:"enabled"`
	Email   EmailConfig `koanf:"email"`
	SMS     SMSConfig   `koanf:"sms"`
}

// EmailConfig contains SMTP settings.
type EmailConfig struct {
	Enabled      bool   `koanf:"enabled"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
	FromAddress  string `koanf:"from_address"`
}

// SMSConfig contains SMS gateway settings.
type SMSConfig struct {
	Enabled   bool    `koanf:"enabled"`
	From      string  `koanf:"from"`
	RateLimit float64 `koanf:"rate_limit"`
}

// AuthConfig contains request authentication settings.
type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

var defaults = map[string]any{
	"server.host":                 "0.0.0.0",
	"server.port":                 "8080",
	"server.metrics_port":         "9090",
	"server.read_timeout":         "10s",
	"server.read_header_timeout":  "5s",
	"server.write_timeout":        "30s",
	"server.idle_timeout":         "120s",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  "30m",
	"database.connect_timeout":    "30s",
	"database.connect_attempts":   5,
	"database.migrations_path":    "migrations",
	"bus.partitions":              8,
	"consumer.group":              "notification-service",
	"retry.schedule":              "@every 1m",
	"retry.batch_size":            100,
	"retry.max_attempts":          3,
	"retry.initial_backoff":       "30s",
	"retry.max_backoff":           "10m",
	"retry.backoff_multiplier":    2.0,
	"notifications.enabled":       true,
	"notifications.email.enabled": false,
	"notifications.email.smtp_port": 587,
	"notifications.sms.enabled":     false,
	"notifications.sms.rate_limit":  1.0,
	"cors.allowed_origins":          []string{"*"},
	"log.level":                     "info",
	"log.format":                    "json",
}

// Load reads configuration with precedence: defaults, then the optional YAML
// file at path, then RELAY_ environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envKey maps RELAY_DATABASE__URL to database.url.
func envKey(key string) string {
	key = strings.TrimPrefix(key, envPrefix)
	key = strings.ToLower(key)
	return strings.ReplaceAll(key, "__", ".")
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return errors.New("config: database.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("config: auth.jwt_secret is required")
	}
	if c.Bus.Partitions < 1 {
		return errors.New("config: bus.partitions must be at least 1")
	}
	return nil
}
