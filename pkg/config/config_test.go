package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paneq/meta-search/pkg/executor"
	"github.com/paneq/meta-search/pkg/observability"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("METASEARCH_DB_URL", "postgres://localhost/app")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("METASEARCH_DB_DRIVER", "sqlite3")
	t.Setenv("METASEARCH_DB_URL", ":memory:")
	t.Setenv("METASEARCH_PORT", "9000")
	t.Setenv("METASEARCH_LOG_LEVEL", "debug")
	t.Setenv("METASEARCH_REDIS_ENABLED", "true")
	t.Setenv("METASEARCH_REDIS_CACHE_TTL", "2m")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Redis.CacheTTL)
}

func TestLoadConfig_MissingDatabaseURL(t *testing.T) {
	t.Setenv("METASEARCH_DB_URL", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL")
}

func TestValidate_InvalidDriver(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Driver: "oracle", URL: "x"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid database driver")
}

func TestDatabaseConfig_Dialect(t *testing.T) {
	assert.Equal(t, executor.DialectPostgres, DatabaseConfig{Driver: "postgres"}.Dialect())
	assert.Equal(t, executor.DialectSQLite, DatabaseConfig{Driver: "sqlite3"}.Dialect())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, observability.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, observability.WarnLevel, parseLogLevel("WARNING"))
	assert.Equal(t, observability.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, observability.InfoLevel, parseLogLevel("nonsense"))
}
