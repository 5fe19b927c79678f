// Package resilience provides retry with backoff and a circuit breaker for
// calls that cross a process boundary: Redis optimistic transactions and
// HTTP calls from the tool service to the REST API.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/itsneelabh/gomind-grocery/core"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool

	// RetryIf decides whether an error is worth another attempt.
	// Nil retries every error.
	RetryIf func(error) bool
}

// DefaultRetryConfig provides sensible defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// RetryConfigFrom converts the service configuration into a RetryConfig.
func RetryConfigFrom(cfg core.RetryConfig) *RetryConfig {
	rc := DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		rc.InitialDelay = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		rc.MaxDelay = cfg.MaxInterval
	}
	if cfg.Multiplier >= 1 {
		rc.BackoffFactor = cfg.Multiplier
	}
	return rc
}

// Retry executes fn until it succeeds, RetryIf rejects the error, the
// context ends, or MaxAttempts is reached. Exhaustion wraps the last error
// and core.ErrMaxRetriesExceeded.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.RetryIf != nil && !config.RetryIf(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		if attempt > 1 {
			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if config.MaxDelay > 0 && delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		sleep := delay
		if config.JitterEnabled {
			sleep = jitter(delay)
		}
		if sleep <= 0 {
			continue
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w: %w", maxAttempts, lastErr, core.ErrMaxRetriesExceeded)
}

// jitter spreads d uniformly over +/-10% so concurrent callers that failed
// together do not retry in lockstep.
func jitter(d time.Duration) time.Duration {
	return d + time.Duration(float64(d)*(rand.Float64()*0.2-0.1))
}

// RetryWithCircuitBreaker runs fn under cb on every attempt. An open
// circuit stops the retry loop immediately.
func RetryWithCircuitBreaker(ctx context.Context, config *RetryConfig, cb *CircuitBreaker, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	cfg := *config
	userRetryIf := cfg.RetryIf
	cfg.RetryIf = func(err error) bool {
		if errors.Is(err, core.ErrCircuitBreakerOpen) {
			return false
		}
		return userRetryIf == nil || userRetryIf(err)
	}
	return Retry(ctx, &cfg, func() error {
		return cb.Execute(ctx, fn)
	})
}
