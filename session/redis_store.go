package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/itsneelabh/gomind-grocery/core"
	"github.com/itsneelabh/gomind-grocery/resilience"
	"github.com/itsneelabh/gomind-grocery/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// RedisStore keeps sessions in Redis with SETEX expiry.
//
// Update serializes writers for one user inside the process with a keyed
// mutex and across processes with WATCH/MULTI/EXEC, retrying when another
// writer wins the race.
type RedisStore struct {
	client *core.RedisClient
	ttl    time.Duration
	locks  *keyedMutex
	retry  *resilience.RetryConfig
	logger core.Logger
}

// NewRedisStore wraps a namespaced client. The client's namespace forms
// the key prefix, normally "session".
func NewRedisStore(client *core.RedisClient, cfg core.SessionConfig, logger core.Logger) *RedisStore {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("grocery/session")
	}
	attempts := cfg.TxMaxAttempts
	if attempts < 1 {
		attempts = 20
	}
	return &RedisStore{
		client: client,
		ttl:    effectiveTTL(cfg.TTL, core.DefaultSessionTTL),
		locks:  newKeyedMutex(),
		retry: &resilience.RetryConfig{
			MaxAttempts:   attempts,
			InitialDelay:  2 * time.Millisecond,
			MaxDelay:      50 * time.Millisecond,
			BackoffFactor: 2,
			JitterEnabled: true,
		},
		logger: logger,
	}
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*Session, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, userID)
	if errors.Is(err, redis.Nil) {
		return Empty(), nil
	}
	if err != nil {
		return nil, storeError("session.Get", userID, err)
	}

	sess, err := decode([]byte(data))
	if err != nil {
		s.logger.ErrorWithContext(ctx, "Stored session could not be decoded", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return nil, err
	}
	return sess, nil
}

func (s *RedisStore) Save(ctx context.Context, userID string, sess *Session, ttl time.Duration) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	payload, err := encode(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.SetEX(ctx, userID, payload, effectiveTTL(ttl, s.ttl)); err != nil {
		return storeError("session.Save", userID, err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, userID string, fn UpdateFunc) (*Session, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "session.Update", attribute.String("user_id", userID))
	defer span.End()

	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	key := s.client.Key(userID)
	var (
		result   *Session
		abortErr error
		attempts int
	)

	retry := *s.retry
	retry.RetryIf = func(err error) bool {
		if !errors.Is(err, redis.TxFailedErr) {
			return false
		}
		telemetry.Counter(ctx, telemetry.MetricSessionTxConflicts)
		return true
	}

	err = resilience.Retry(ctx, &retry, func() error {
		attempts++
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			sess := Empty()
			data, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				if sess, err = decode(data); err != nil {
					abortErr = err
					return err
				}
			}

			if err := fn(sess); err != nil {
				abortErr = err
				return err
			}

			payload, err := encode(sess)
			if err != nil {
				abortErr = fmt.Errorf("encode session: %w", err)
				return abortErr
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.SetEX(ctx, key, payload, s.ttl)
				return nil
			})
			if err == nil {
				result = sess
			}
			return err
		}, userID)
	})

	switch {
	case err == nil:
		if attempts > 1 {
			s.logger.DebugWithContext(ctx, "Session update succeeded after conflicts", map[string]interface{}{
				"user_id":  userID,
				"attempts": attempts,
			})
		}
		return result, nil
	case abortErr != nil:
		return nil, abortErr
	case errors.Is(err, redis.TxFailedErr):
		telemetry.RecordSpanError(ctx, err)
		s.logger.WarnWithContext(ctx, "Session update gave up after repeated conflicts", map[string]interface{}{
			"user_id":  userID,
			"attempts": attempts,
		})
		return nil, fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		telemetry.RecordSpanError(ctx, err)
		return nil, storeError("session.Update", userID, err)
	}
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if err := s.client.HealthCheck(ctx); err != nil {
		return storeError("session.HealthCheck", "", err)
	}
	return nil
}
