// Package config handles application configuration loading from environment
// variables. Load covers the account service; LoadClient covers the
// terminal journey client.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// devJWTSecret is only accepted outside production.
const devJWTSecret = "pathways-dev-secret-change-me"

// Config holds all account service configuration loaded from the environment.
type Config struct {
	// Server settings
	Host string
	Port string
	Env  string // "development", "production", "testing"

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (Redis-compatible) for token sessions and the progress cache
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string

	// Bearer tokens
	JWTSecret string
	JWTTTL    time.Duration

	// HTTP surface
	CORSOrigins   []string
	AuthRateLimit int // requests per minute per client on /auth routes

	// Logging
	LogLevel  string
	LogFormat string // "console" or "json"
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. Returns an error if critical values
// are missing in production mode or a value cannot be parsed.
func Load() (*Config, error) {
	cfg := &Config{
		Host: envOrDefault("APP_HOST", "0.0.0.0"),
		Port: envOrDefault("APP_PORT", "8080"),
		Env:  envOrDefault("APP_ENV", "development"),

		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBUser:     envOrDefault("POSTGRES_USER", "pathways"),
		DBPassword: envOrDefault("POSTGRES_PASSWORD", "changeme"),
		DBName:     envOrDefault("POSTGRES_DB", "pathways"),

		ValkeyHost:     envOrDefault("VALKEY_HOST", "localhost"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),

		JWTSecret:   envOrDefault("JWT_SECRET", devJWTSecret),
		CORSOrigins: splitList(envOrDefault("CORS_ORIGINS", "http://localhost:3000")),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.JWTTTL, err = durationOrDefault("JWT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.AuthRateLimit, err = intOrDefault("AUTH_RATE_LIMIT", 20); err != nil {
		return nil, err
	}

	defaultFormat := "json"
	if cfg.IsDev() {
		defaultFormat = "console"
	}
	cfg.LogFormat = envOrDefault("LOG_FORMAT", defaultFormat)

	if cfg.Env == "production" {
		if cfg.DBPassword == "changeme" {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
		if cfg.JWTSecret == devJWTSecret {
			return nil, fmt.Errorf("JWT_SECRET must be set in production")
		}
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// ClientConfig configures the terminal journey client.
type ClientConfig struct {
	APIURL  string
	DBPath  string // empty means the platform default
	Timeout time.Duration

	LogLevel  string
	LogFormat string
}

// LoadClient reads the journey client settings.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		APIURL:    strings.TrimRight(envOrDefault("PATHWAYS_API_URL", "http://localhost:8080/api/v1"), "/"),
		DBPath:    os.Getenv("PATHWAYS_DB"),
		LogLevel:  envOrDefault("LOG_LEVEL", "warn"),
		LogFormat: envOrDefault("LOG_FORMAT", "console"),
	}

	var err error
	if cfg.Timeout, err = durationOrDefault("PATHWAYS_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("PATHWAYS_TIMEOUT must be positive")
	}
	return cfg, nil
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intOrDefault(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
