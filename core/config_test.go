package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig verifies that DefaultConfig returns valid defaults
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "grocery-api", cfg.Name)
	assert.Equal(t, 8000, cfg.Port)

	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
	assert.True(t, cfg.HTTP.EnableHealthCheck)
	assert.False(t, cfg.HTTP.CORS.Enabled)

	assert.Equal(t, "redis", cfg.Session.Provider)
	assert.Equal(t, RedisDBSessions, cfg.Session.DB)
	assert.Equal(t, "session", cfg.Session.Namespace)
	assert.Equal(t, 7*24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 20, cfg.Session.TxMaxAttempts)

	assert.Empty(t, cfg.Events.AMQPURL)
	assert.Equal(t, "orders.confirmed", cfg.Events.Queue)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("REDIS_URL", "redis://cache:6379")
	t.Setenv("GROCERY_REDIS_DB", "0")
	t.Setenv("GROCERY_SESSION_TTL", "1h")
	t.Setenv("RABBITMQ_URI", "amqp://guest:guest@mq:5672/")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317")
	t.Setenv("GROCERY_CORS_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("GROCERY_DEBUG", "yes")
	t.Setenv("GROCERY_SESSION_TX_ATTEMPTS", "not-a-number")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "redis://cache:6379", cfg.Session.RedisURL)
	assert.Equal(t, 0, cfg.Session.DB)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, "amqp://guest:guest@mq:5672/", cfg.Events.AMQPURL)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "otel-collector:4317", cfg.Telemetry.Endpoint)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.HTTP.CORS.AllowedOrigins)
	assert.True(t, cfg.Development.DebugLogging)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 20, cfg.Session.TxMaxAttempts, "invalid values keep the previous setting")
}

func TestLoadFromEnv_PrefixedWins(t *testing.T) {
	t.Setenv("GROCERY_PORT", "9200")
	t.Setenv("PORT", "9300")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())
	assert.Equal(t, 9200, cfg.Port)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "grocery.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
name: grocery-staging
port: 8100
session:
  provider: inmemory
  ttl: 48h
events:
  queue: staging.orders
`), 0o600))

		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(path))
		assert.Equal(t, "grocery-staging", cfg.Name)
		assert.Equal(t, 8100, cfg.Port)
		assert.Equal(t, "inmemory", cfg.Session.Provider)
		assert.Equal(t, 48*time.Hour, cfg.Session.TTL)
		assert.Equal(t, "staging.orders", cfg.Events.Queue)
		assert.Equal(t, "session", cfg.Session.Namespace, "absent fields keep defaults")
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "grocery.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"name":"grocery-json","session":{"db":5}}`), 0o600))

		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(path))
		assert.Equal(t, "grocery-json", cfg.Name)
		assert.Equal(t, 5, cfg.Session.DB)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		err := DefaultConfig().LoadFromFile(filepath.Join(dir, "grocery.toml"))
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yml")
		require.NoError(t, os.WriteFile(path, []byte("port: [oops"), 0o600))
		err := DefaultConfig().LoadFromFile(path)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("GROCERY_TEST_DOTENV=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("GROCERY_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("GROCERY_TEST_DOTENV"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid defaults", func(c *Config) {}, nil},
		{"bad port", func(c *Config) { c.Port = 0 }, ErrInvalidConfiguration},
		{"missing name", func(c *Config) { c.Name = "" }, ErrMissingConfiguration},
		{"redis without url", func(c *Config) { c.Session.RedisURL = "" }, ErrMissingConfiguration},
		{"inmemory without url", func(c *Config) { c.Session.Provider = "inmemory"; c.Session.RedisURL = "" }, nil},
		{"unknown provider", func(c *Config) { c.Session.Provider = "memcached" }, ErrInvalidConfiguration},
		{"zero ttl", func(c *Config) { c.Session.TTL = 0 }, ErrInvalidConfiguration},
		{"unknown exporter", func(c *Config) { c.Telemetry.Exporter = "zipkin" }, ErrInvalidConfiguration},
		{"otlp without endpoint", func(c *Config) { c.Telemetry.Enabled = true }, ErrMissingConfiguration},
		{"stdout exporter without endpoint", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "stdout"
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsConfigurationError(err))
		})
	}
}

func TestNewConfig_Options(t *testing.T) {
	cfg, err := NewConfig(
		WithName("grocery-tools"),
		WithPort(8001),
		WithConfigFile(""),
	)
	require.NoError(t, err)

	assert.Equal(t, "grocery-tools", cfg.Name)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "redis", cfg.Session.Provider)
}

func TestNewConfig_Layering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grocery.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 8100
session:
  provider: inmemory
events:
  queue: file.orders
`), 0o600))
	t.Setenv("GROCERY_AMQP_QUEUE", "env.orders")

	cfg, err := NewConfig(
		WithName("grocery-api"),
		WithPort(8001),
		WithConfigFile(path),
	)
	require.NoError(t, err)

	assert.Equal(t, "grocery-api", cfg.Name)
	assert.Equal(t, 8100, cfg.Port, "file overrides options")
	assert.Equal(t, "inmemory", cfg.Session.Provider)
	assert.Equal(t, "env.orders", cfg.Events.Queue, "env overrides file")
}

func TestNewConfig_EnvOverridesOptions(t *testing.T) {
	t.Setenv("GROCERY_PORT", "9400")

	cfg, err := NewConfig(WithPort(8001))
	require.NoError(t, err)
	assert.Equal(t, 9400, cfg.Port)
}

func TestNewConfig_Errors(t *testing.T) {
	t.Run("port out of range", func(t *testing.T) {
		_, err := NewConfig(WithPort(70000))
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := NewConfig(WithConfigFile(filepath.Join(t.TempDir(), "absent.yaml")))
		assert.Error(t, err)
	})

	t.Run("invalid file content", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("session:\n  provider: memcached\n"), 0o600))
		_, err := NewConfig(WithConfigFile(path))
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	})
}
