package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/paneq/meta-search/pkg/executor"
	"github.com/paneq/meta-search/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis result cache configuration
	Redis RedisConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds the connection settings for the searched database
type DatabaseConfig struct {
	Driver       string // "postgres" or "sqlite3"
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// Dialect maps the configured driver to the executor's SQL dialect.
func (c DatabaseConfig) Dialect() executor.Dialect {
	if c.Driver == "postgres" {
		return executor.DialectPostgres
	}
	return executor.DialectSQLite
}

// RedisConfig holds the optional result cache settings
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("METASEARCH_HOST", "0.0.0.0"),
		Port:            getEnv("METASEARCH_PORT", "8080"),
		ReadTimeout:     getEnvDuration("METASEARCH_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("METASEARCH_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("METASEARCH_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("METASEARCH_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:       getEnv("METASEARCH_DB_DRIVER", "postgres"),
		URL:          getEnv("METASEARCH_DB_URL", ""),
		MaxOpenConns: getEnvInt("METASEARCH_DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns: getEnvInt("METASEARCH_DB_MAX_IDLE_CONNS", 5),
	}
}

// loadRedisConfig loads result cache configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  getEnvBool("METASEARCH_REDIS_ENABLED", false),
		Addr:     getEnv("METASEARCH_REDIS_ADDR", "localhost:6379"),
		Password: getEnv("METASEARCH_REDIS_PASSWORD", ""),
		DB:       getEnvInt("METASEARCH_REDIS_DB", 0),
		CacheTTL: getEnvDuration("METASEARCH_REDIS_CACHE_TTL", 30*time.Second),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("METASEARCH_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("METASEARCH_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required when the result cache is enabled")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
