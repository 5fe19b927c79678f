package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the grocery services.
// Values are layered, lowest priority first:
//  1. Default values
//  2. Functional options (the binary's own defaults)
//  3. The config file named by WithConfigFile
//  4. Environment variables
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithName("grocery-api"),
//	    WithPort(8000),
//	    WithConfigFile(os.Getenv("GROCERY_CONFIG_FILE")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	Name    string `json:"name" yaml:"name" env:"GROCERY_SERVICE_NAME"`
	ID      string `json:"id" yaml:"id" env:"GROCERY_SERVICE_ID"`
	Port    int    `json:"port" yaml:"port" env:"GROCERY_PORT,PORT" default:"8000"`
	Address string `json:"address" yaml:"address" env:"GROCERY_ADDRESS"`

	HTTP        HTTPConfig        `json:"http" yaml:"http"`
	Session     SessionConfig     `json:"session" yaml:"session"`
	Events      EventsConfig      `json:"events" yaml:"events"`
	ShopAPI     ShopAPIConfig     `json:"shop_api" yaml:"shop_api"`
	Telemetry   TelemetryConfig   `json:"telemetry" yaml:"telemetry"`
	Resilience  ResilienceConfig  `json:"resilience" yaml:"resilience"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
	Development DevelopmentConfig `json:"development" yaml:"development"`

	configFile string
}

// HTTPConfig contains HTTP server settings.
type HTTPConfig struct {
	ReadTimeout       time.Duration `json:"read_timeout" yaml:"read_timeout" env:"GROCERY_HTTP_READ_TIMEOUT" default:"30s"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" yaml:"read_header_timeout" default:"10s"`
	WriteTimeout      time.Duration `json:"write_timeout" yaml:"write_timeout" env:"GROCERY_HTTP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout       time.Duration `json:"idle_timeout" yaml:"idle_timeout" default:"120s"`
	MaxHeaderBytes    int           `json:"max_header_bytes" yaml:"max_header_bytes" default:"1048576"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"GROCERY_HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	EnableHealthCheck bool          `json:"enable_health_check" yaml:"enable_health_check" default:"true"`
	HealthCheckPath   string        `json:"health_check_path" yaml:"health_check_path" default:"/health"`
	CORS              CORSConfig    `json:"cors" yaml:"cors"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled" env:"GROCERY_CORS_ENABLED" default:"false"`
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins" env:"GROCERY_CORS_ORIGINS"`
	AllowedMethods   []string `json:"allowed_methods" yaml:"allowed_methods" default:"GET,POST,OPTIONS"`
	AllowedHeaders   []string `json:"allowed_headers" yaml:"allowed_headers" default:"Content-Type,Authorization"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials" default:"false"`
	MaxAge           int      `json:"max_age" yaml:"max_age" default:"86400"`
}

// SessionConfig selects and tunes the per-user session store.
type SessionConfig struct {
	Provider      string        `json:"provider" yaml:"provider" env:"GROCERY_SESSION_PROVIDER" default:"redis"`
	RedisURL      string        `json:"redis_url" yaml:"redis_url" env:"GROCERY_REDIS_URL,REDIS_URL" default:"redis://localhost:6379"`
	DB            int           `json:"db" yaml:"db" env:"GROCERY_REDIS_DB" default:"2"`
	Namespace     string        `json:"namespace" yaml:"namespace" env:"GROCERY_SESSION_NAMESPACE" default:"session"`
	TTL           time.Duration `json:"ttl" yaml:"ttl" env:"GROCERY_SESSION_TTL" default:"168h"`
	TxMaxAttempts int           `json:"tx_max_attempts" yaml:"tx_max_attempts" env:"GROCERY_SESSION_TX_ATTEMPTS" default:"20"`
}

// EventsConfig configures the order event publisher.
// An empty AMQPURL disables publishing.
type EventsConfig struct {
	AMQPURL string `json:"amqp_url" yaml:"amqp_url" env:"GROCERY_AMQP_URL,RABBITMQ_URI"`
	Queue   string `json:"queue" yaml:"queue" env:"GROCERY_AMQP_QUEUE" default:"orders.confirmed"`
}

// ShopAPIConfig points tools at the grocery REST API.
type ShopAPIConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url" env:"GROCERY_SHOP_API_URL" default:"http://localhost:8000"`
	Timeout time.Duration `json:"timeout" yaml:"timeout" env:"GROCERY_SHOP_API_TIMEOUT" default:"10s"`
}

// TelemetryConfig contains tracing settings.
type TelemetryConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled" env:"GROCERY_TELEMETRY_ENABLED" default:"false"`
	Exporter     string  `json:"exporter" yaml:"exporter" env:"GROCERY_TELEMETRY_EXPORTER" default:"otlp"`
	Endpoint     string  `json:"endpoint" yaml:"endpoint" env:"GROCERY_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string  `json:"service_name" yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate" env:"GROCERY_TELEMETRY_SAMPLING_RATE" default:"1.0"`
	Insecure     bool    `json:"insecure" yaml:"insecure" default:"true"`

	// MetricsEndpoint enables OTLP/HTTP metric export when set.
	MetricsEndpoint string `json:"metrics_endpoint" yaml:"metrics_endpoint" env:"GROCERY_METRICS_ENDPOINT,OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"`
}

// ResilienceConfig contains retry and circuit breaker settings for outbound calls.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
	Retry          RetryConfig          `json:"retry" yaml:"retry"`
}

// CircuitBreakerConfig contains circuit breaker settings.
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled" env:"GROCERY_CB_ENABLED" default:"true"`
	Threshold        int           `json:"threshold" yaml:"threshold" env:"GROCERY_CB_THRESHOLD" default:"5"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout" env:"GROCERY_CB_TIMEOUT" default:"30s"`
	HalfOpenRequests int           `json:"half_open_requests" yaml:"half_open_requests" default:"1"`
}

// RetryConfig contains retry settings.
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts" env:"GROCERY_RETRY_MAX_ATTEMPTS" default:"3"`
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval" env:"GROCERY_RETRY_INITIAL_INTERVAL" default:"100ms"`
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval" default:"2s"`
	Multiplier      float64       `json:"multiplier" yaml:"multiplier" default:"2.0"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"GROCERY_LOG_LEVEL" default:"info"`
	Format string `json:"format" yaml:"format" env:"GROCERY_LOG_FORMAT" default:"json"`
	Output string `json:"output" yaml:"output" env:"GROCERY_LOG_OUTPUT" default:"stdout"`
}

// DevelopmentConfig contains development mode settings.
type DevelopmentConfig struct {
	Enabled      bool `json:"enabled" yaml:"enabled" env:"GROCERY_DEV_MODE" default:"false"`
	DebugLogging bool `json:"debug_logging" yaml:"debug_logging" env:"GROCERY_DEBUG" default:"false"`
	PrettyLogs   bool `json:"pretty_logs" yaml:"pretty_logs" env:"GROCERY_PRETTY_LOGS" default:"false"`
}

// Option is a functional option for configuring the services.
// Options are applied in order and can return an error if the configuration is invalid.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name: "grocery-api",
		Port: 8000,
		HTTP: HTTPConfig{
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
			ShutdownTimeout:   10 * time.Second,
			EnableHealthCheck: true,
			HealthCheckPath:   "/health",
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization"},
				MaxAge:         86400,
			},
		},
		Session: SessionConfig{
			Provider:      "redis",
			RedisURL:      "redis://localhost:6379",
			DB:            RedisDBSessions,
			Namespace:     "session",
			TTL:           DefaultSessionTTL,
			TxMaxAttempts: 20,
		},
		Events: EventsConfig{
			Queue: "orders.confirmed",
		},
		ShopAPI: ShopAPIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "otlp",
			SamplingRate: 1.0,
			Insecure:     true,
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				Threshold:        5,
				Timeout:          30 * time.Second,
				HalfOpenRequests: 1,
			},
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 100 * time.Millisecond,
				MaxInterval:     2 * time.Second,
				Multiplier:      2.0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadDotEnv loads KEY=VALUE pairs from dotenv files into the process
// environment. Variables already set in the environment win. Missing files
// are skipped; with no arguments ".env" in the working directory is tried.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Invalid numeric or duration values are ignored and the previous value kept.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("GROCERY_SERVICE_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("GROCERY_SERVICE_ID"); v != "" {
		c.ID = v
	}
	if v := firstEnv("GROCERY_PORT", "PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("GROCERY_ADDRESS"); v != "" {
		c.Address = v
	}

	// HTTP settings
	setDuration(&c.HTTP.ReadTimeout, "GROCERY_HTTP_READ_TIMEOUT")
	setDuration(&c.HTTP.WriteTimeout, "GROCERY_HTTP_WRITE_TIMEOUT")
	setDuration(&c.HTTP.ShutdownTimeout, "GROCERY_HTTP_SHUTDOWN_TIMEOUT")

	// CORS settings
	if v := os.Getenv("GROCERY_CORS_ENABLED"); v != "" {
		c.HTTP.CORS.Enabled = parseBool(v)
	}
	if v := os.Getenv("GROCERY_CORS_ORIGINS"); v != "" {
		c.HTTP.CORS.AllowedOrigins = parseStringList(v)
	}

	// Session settings
	if v := os.Getenv("GROCERY_SESSION_PROVIDER"); v != "" {
		c.Session.Provider = strings.ToLower(v)
	}
	if v := firstEnv("GROCERY_REDIS_URL", "REDIS_URL"); v != "" {
		c.Session.RedisURL = v
	}
	setInt(&c.Session.DB, "GROCERY_REDIS_DB")
	if v := os.Getenv("GROCERY_SESSION_NAMESPACE"); v != "" {
		c.Session.Namespace = v
	}
	setDuration(&c.Session.TTL, "GROCERY_SESSION_TTL")
	setInt(&c.Session.TxMaxAttempts, "GROCERY_SESSION_TX_ATTEMPTS")

	// Events
	if v := firstEnv("GROCERY_AMQP_URL", "RABBITMQ_URI"); v != "" {
		c.Events.AMQPURL = v
	}
	if v := os.Getenv("GROCERY_AMQP_QUEUE"); v != "" {
		c.Events.Queue = v
	}

	// Shop API (used by the tool service)
	if v := os.Getenv("GROCERY_SHOP_API_URL"); v != "" {
		c.ShopAPI.BaseURL = strings.TrimRight(v, "/")
	}
	setDuration(&c.ShopAPI.Timeout, "GROCERY_SHOP_API_TIMEOUT")

	// Telemetry
	if v := os.Getenv("GROCERY_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("GROCERY_TELEMETRY_EXPORTER"); v != "" {
		c.Telemetry.Exporter = strings.ToLower(v)
	}
	if v := firstEnv("GROCERY_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true // Auto-enable when a collector is configured
	}
	if v := firstEnv("GROCERY_METRICS_ENDPOINT", "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); v != "" {
		c.Telemetry.MetricsEndpoint = v
	}
	if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	}
	if v := os.Getenv("GROCERY_TELEMETRY_SAMPLING_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			c.Telemetry.SamplingRate = rate
		}
	}

	// Resilience
	if v := os.Getenv("GROCERY_CB_ENABLED"); v != "" {
		c.Resilience.CircuitBreaker.Enabled = parseBool(v)
	}
	setInt(&c.Resilience.CircuitBreaker.Threshold, "GROCERY_CB_THRESHOLD")
	setDuration(&c.Resilience.CircuitBreaker.Timeout, "GROCERY_CB_TIMEOUT")
	setInt(&c.Resilience.Retry.MaxAttempts, "GROCERY_RETRY_MAX_ATTEMPTS")
	setDuration(&c.Resilience.Retry.InitialInterval, "GROCERY_RETRY_INITIAL_INTERVAL")

	// Logging
	if v := os.Getenv("GROCERY_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("GROCERY_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	if v := os.Getenv("GROCERY_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}

	// Development
	if v := os.Getenv("GROCERY_DEV_MODE"); v != "" {
		c.Development.Enabled = parseBool(v)
	}
	if v := os.Getenv("GROCERY_DEBUG"); v != "" {
		c.Development.DebugLogging = parseBool(v)
		if c.Development.DebugLogging {
			c.Logging.Level = "debug"
		}
	}
	if v := os.Getenv("GROCERY_PRETTY_LOGS"); v != "" {
		c.Development.PrettyLogs = parseBool(v)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file.
// Fields absent from the file keep their current values.
//
//	name: grocery-api
//	port: 8000
//	session:
//	  provider: redis
//	  redis_url: redis://localhost:6379
//	  ttl: 168h
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	data, err := os.ReadFile(cleanPath) // nosec G304 -- operator-supplied path
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %v: %w", err, ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %v: %w", err, ErrInvalidConfiguration)
		}
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
// This method is called automatically by NewConfig().
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("invalid port: %d", c.Port),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Name == "" {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "service name is required",
			Err:     ErrMissingConfiguration,
		}
	}

	switch c.Session.Provider {
	case "redis":
		if c.Session.RedisURL == "" {
			return &FrameworkError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: "redis URL is required for the redis session provider",
				Err:     ErrMissingConfiguration,
			}
		}
	case "inmemory":
	default:
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown session provider: %q", c.Session.Provider),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Session.TTL <= 0 {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "session TTL must be positive",
			Err:     ErrInvalidConfiguration,
		}
	}

	switch c.Telemetry.Exporter {
	case "otlp", "otlphttp", "stdout":
	default:
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown telemetry exporter: %q", c.Telemetry.Exporter),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Telemetry.Enabled && c.Telemetry.Exporter != "stdout" && c.Telemetry.Endpoint == "" {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "telemetry endpoint is required for the otlp exporter",
			Err:     ErrMissingConfiguration,
		}
	}

	return nil
}

// Helper functions

// parseStringList splits a comma-separated string into a slice of strings.
// Whitespace is trimmed from each element, and empty strings are filtered out.
func parseStringList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseBool accepts "true", "1", "yes", "on" (case-insensitive) as true.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Functional Options

// WithName sets the service name used in logs and traces.
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithPort sets the HTTP server port.
func WithPort(port int) Option {
	return func(c *Config) error {
		if port < 1 || port > 65535 {
			return &FrameworkError{
				Op:      "WithPort",
				Kind:    "config",
				Message: fmt.Sprintf("invalid port: %d", port),
				Err:     ErrInvalidConfiguration,
			}
		}
		c.Port = port
		return nil
	}
}

// WithConfigFile names a JSON or YAML file loaded after the options and
// before the environment. An empty path is ignored.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		c.configFile = path
		return nil
	}
}

// NewConfig builds a validated configuration: defaults, then options, then
// the config file, then the environment.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if cfg.configFile != "" {
		if err := cfg.LoadFromFile(cfg.configFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
