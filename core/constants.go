package core

import "time"

// Common environment variables
const (
	EnvRedisURL   = "REDIS_URL"           // Redis connection URL for sessions
	EnvPort       = "PORT"                // HTTP server port
	EnvConfigFile = "GROCERY_CONFIG_FILE" // Optional JSON/YAML config file
)

// Session defaults
const (
	// DefaultSessionTTL is the sliding expiry of a session document,
	// reset on every write.
	DefaultSessionTTL = 7 * 24 * time.Hour

	// DefaultSessionNamespace prefixes session keys: session:{user_id}
	DefaultSessionNamespace = "session"
)

// SchemaEndpointSuffix is appended to capability endpoints to form schema endpoints
// Example: /api/capabilities/view_cart + SchemaEndpointSuffix = /api/capabilities/view_cart/schema
const SchemaEndpointSuffix = "/schema"
