package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itsneelabh/gomind-grocery/core"
)

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// TestRetryBasicSuccess tests successful execution on first attempt
func TestRetryBasicSuccess(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		attempts++
		return nil
	})
	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

// TestRetryEventualSuccess tests success after multiple attempts
func TestRetryEventualSuccess(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Expected eventual success, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

// TestRetryMaxAttemptsExceeded tests failure after all retries exhausted
func TestRetryMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	testErr := errors.New("persistent error")

	err := Retry(context.Background(), fastRetry(3), func() error {
		attempts++
		return testErr
	})

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if !errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Errorf("Expected ErrMaxRetriesExceeded, got %v", err)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected last error to be wrapped, got %v", err)
	}
}

// TestRetryIfStopsOnPermanentError verifies the predicate short-circuits
func TestRetryIfStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad request")
	cfg := fastRetry(5)
	cfg.RetryIf = func(err error) bool { return !errors.Is(err, permanent) }

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return permanent
	})

	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
	if !errors.Is(err, permanent) || errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Errorf("Expected the permanent error unwrapped, got %v", err)
	}
}

// TestRetryContextCancellation tests that retry respects context cancellation
func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &RetryConfig{MaxAttempts: 10, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 1}

	var attempts int32
	go func() {
		for atomic.LoadInt32(&attempts) == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	err := Retry(ctx, cfg, func() error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("fail")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("Expected 1 attempt before cancellation, got %d", got)
	}
}

// TestRetryConfigFrom maps service configuration onto retry settings
func TestJitterStaysWithinTenPercent(t *testing.T) {
	base := 100 * time.Millisecond
	seen := make(map[time.Duration]bool)
	for i := 0; i < 200; i++ {
		d := jitter(base)
		if d < 90*time.Millisecond || d > 110*time.Millisecond {
			t.Fatalf("jitter(%v) = %v, want within 10%%", base, d)
		}
		seen[d] = true
	}
	if len(seen) < 2 {
		t.Errorf("jitter produced a single value over 200 draws")
	}
}

func TestRetryConfigFrom(t *testing.T) {
	rc := RetryConfigFrom(core.RetryConfig{
		MaxAttempts:     4,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      3,
	})
	if rc.MaxAttempts != 4 || rc.InitialDelay != 20*time.Millisecond || rc.MaxDelay != time.Second || rc.BackoffFactor != 3 {
		t.Errorf("Unexpected retry config: %+v", rc)
	}

	defaults := RetryConfigFrom(core.RetryConfig{})
	if defaults.MaxAttempts != 3 {
		t.Errorf("Expected default attempts 3, got %d", defaults.MaxAttempts)
	}
}

// TestRetryWithCircuitBreakerStopsWhenOpen verifies open circuits end the loop
func TestRetryWithCircuitBreakerStopsWhenOpen(t *testing.T) {
	cbCfg := DefaultConfig()
	cbCfg.Name = "shop-api"
	cbCfg.FailureThreshold = 2
	cb, err := NewCircuitBreaker(cbCfg)
	if err != nil {
		t.Fatalf("NewCircuitBreaker: %v", err)
	}

	calls := 0
	err = RetryWithCircuitBreaker(context.Background(), fastRetry(10), cb, func() error {
		calls++
		return core.ErrConnectionFailed
	})

	if calls != 2 {
		t.Errorf("Expected 2 calls before the circuit opened, got %d", calls)
	}
	if !errors.Is(err, core.ErrCircuitBreakerOpen) {
		t.Errorf("Expected ErrCircuitBreakerOpen, got %v", err)
	}
}
