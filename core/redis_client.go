// Package core provides the shared plumbing of the grocery services:
// configuration, structured logging, error protocol, HTTP middleware, the
// tool capability server and a namespaced Redis client.
//
// The Redis client isolates each use case in its own logical database and
// prefixes every key with a namespace, so "user-1" in the session namespace
// is stored as "session:user-1".
//
//	client, err := NewRedisClient(RedisClientOptions{
//	    RedisURL:  "redis://localhost:6379",
//	    DB:        RedisDBSessions,
//	    Namespace: "session",
//	})
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisClient provides a simplified Redis interface with DB isolation and key namespacing
type RedisClient struct {
	client    *redis.Client
	dbID      int
	namespace string
	logger    Logger // Optional logger
}

// RedisClientOptions configures the Redis client
type RedisClientOptions struct {
	RedisURL  string
	DB        int    // Redis DB number for isolation (0-15)
	Namespace string // Key namespace for organization
	Logger    Logger // Optional logger
}

// NewRedisClient creates a new Redis client and verifies connectivity with a PING.
func NewRedisClient(opts RedisClientOptions) (*RedisClient, error) {
	if opts.Logger != nil {
		opts.Logger.Debug("Initializing Redis client", map[string]interface{}{
			"db":        opts.DB,
			"namespace": opts.Namespace,
		})
	}

	if opts.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required: %w", ErrInvalidConfiguration)
	}

	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		if opts.Logger != nil {
			opts.Logger.Error("Failed to parse Redis URL", map[string]interface{}{
				"error":      err.Error(),
				"error_type": fmt.Sprintf("%T", err),
			})
		}
		return nil, fmt.Errorf("invalid Redis URL: %w", ErrInvalidConfiguration)
	}

	// Override DB for isolation
	if opts.DB >= 0 && opts.DB <= 15 {
		redisOpt.DB = opts.DB
	}

	client := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if opts.Logger != nil {
			opts.Logger.Error("Failed to connect to Redis", map[string]interface{}{
				"error":     err.Error(),
				"db":        opts.DB,
				"db_name":   GetRedisDBName(opts.DB),
				"namespace": opts.Namespace,
			})
		}
		return nil, fmt.Errorf("failed to connect to Redis DB %d: %v: %w", opts.DB, err, ErrConnectionFailed)
	}

	rc := &RedisClient{
		client:    client,
		dbID:      opts.DB,
		namespace: opts.Namespace,
		logger:    opts.Logger,
	}

	if rc.logger != nil {
		rc.logger.Info("Redis client connected", map[string]interface{}{
			"db":        opts.DB,
			"db_name":   GetRedisDBName(opts.DB),
			"namespace": opts.Namespace,
		})
	}

	return rc, nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	err := r.client.Close()
	if err != nil && r.logger != nil {
		r.logger.Error("Failed to close Redis client", map[string]interface{}{
			"error":     err.Error(),
			"db":        r.dbID,
			"namespace": r.namespace,
		})
	}
	return err
}

// Key returns the fully qualified key for a logical key.
func (r *RedisClient) Key(key string) string {
	if r.namespace == "" {
		return key
	}
	return r.namespace + ":" + key
}

// Get returns the raw value at key. A missing key yields redis.Nil.
func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, r.Key(key)).Result()
}

// SetEX stores value at key with the given expiry (SETEX semantics).
func (r *RedisClient) SetEX(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.client.SetEX(ctx, r.Key(key), value, ttl).Err()
}

// Watch runs fn in an optimistic transaction guarded by WATCH on the given
// logical keys. fn must queue its writes with tx.TxPipelined; if a watched
// key changed in the meantime the call fails with redis.TxFailedErr.
// Keys used inside fn must be qualified with Key.
func (r *RedisClient) Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.Key(k)
	}
	return r.client.Watch(ctx, fn, full...)
}

// HealthCheck verifies Redis connectivity
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	err := r.client.Ping(ctx).Err()
	if err != nil && r.logger != nil {
		r.logger.ErrorWithContext(ctx, "Redis health check failed", map[string]interface{}{
			"error":     err.Error(),
			"db":        r.dbID,
			"db_name":   GetRedisDBName(r.dbID),
			"namespace": r.namespace,
		})
	}
	return err
}

// --- Redis DB Allocation ---

const (
	// RedisDBDefault is the Redis default database
	RedisDBDefault = 0

	// RedisDBSessions is for session storage
	RedisDBSessions = 2
)

// GetRedisDBName returns a human-readable name for the Redis DB
func GetRedisDBName(db int) string {
	switch db {
	case RedisDBDefault:
		return "Default"
	case RedisDBSessions:
		return "Sessions"
	default:
		return fmt.Sprintf("DB %d", db)
	}
}
