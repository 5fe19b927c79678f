package resilience

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/itsneelabh/gomind-grocery/core"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows limited requests for testing
	StateHalfOpen
)

// String returns the string representation of the state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MetricsCollector receives circuit breaker events
type MetricsCollector interface {
	RecordSuccess(name string)
	RecordFailure(name string, errorType string)
	RecordStateChange(name string, from, to string)
	RecordRejection(name string)
}

type noopMetrics struct{}

func (n *noopMetrics) RecordSuccess(name string)                      {}
func (n *noopMetrics) RecordFailure(name string, errorType string)    {}
func (n *noopMetrics) RecordStateChange(name string, from, to string) {}
func (n *noopMetrics) RecordRejection(name string)                    {}

// ErrorClassifier determines which errors should count toward circuit breaker thresholds
type ErrorClassifier func(error) bool

// DefaultErrorClassifier only counts infrastructure errors, not user errors
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	if core.IsConfigurationError(err) || core.IsNotFound(err) || core.IsStateError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, core.ErrContextCanceled) {
		return false
	}
	return true
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	Name string

	// FailureThreshold is the number of consecutive counted failures
	// that opens the circuit.
	FailureThreshold int

	// SleepWindow is how long the circuit stays open before probing.
	SleepWindow time.Duration

	// HalfOpenRequests is the number of successful probes needed to close.
	HalfOpenRequests int

	ErrorClassifier ErrorClassifier
	Logger          core.Logger
	Metrics         MetricsCollector

	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

// DefaultConfig returns a default configuration
func DefaultConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             "default",
		FailureThreshold: 5,
		SleepWindow:      30 * time.Second,
		HalfOpenRequests: 1,
		ErrorClassifier:  DefaultErrorClassifier,
		Logger:           &core.NoOpLogger{},
		Metrics:          &noopMetrics{},
	}
}

// ConfigFrom builds a breaker configuration from the service configuration.
func ConfigFrom(name string, cfg core.CircuitBreakerConfig) *CircuitBreakerConfig {
	c := DefaultConfig()
	c.Name = name
	if cfg.Threshold > 0 {
		c.FailureThreshold = cfg.Threshold
	}
	if cfg.Timeout > 0 {
		c.SleepWindow = cfg.Timeout
	}
	if cfg.HalfOpenRequests > 0 {
		c.HalfOpenRequests = cfg.HalfOpenRequests
	}
	return c
}

// Validate checks the configuration
func (c *CircuitBreakerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("circuit breaker name is required: %w", core.ErrInvalidConfiguration)
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be at least 1: %w", core.ErrInvalidConfiguration)
	}
	if c.SleepWindow <= 0 {
		return fmt.Errorf("sleep window must be positive: %w", core.ErrInvalidConfiguration)
	}
	if c.HalfOpenRequests < 1 {
		return fmt.Errorf("half-open requests must be at least 1: %w", core.ErrInvalidConfiguration)
	}
	return nil
}

// CircuitBreaker stops calling a failing dependency until it has had
// time to recover.
type CircuitBreaker struct {
	config *CircuitBreakerConfig

	mu               sync.Mutex
	state            CircuitState
	stateChangedAt   time.Time
	failures         int
	halfOpenInFlight int
	halfOpenSuccess  int

	listeners []func(name string, from, to CircuitState)
}

// NewCircuitBreaker creates a circuit breaker in the closed state
func NewCircuitBreaker(config *CircuitBreakerConfig) (*CircuitBreaker, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultErrorClassifier
	}
	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &noopMetrics{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	cb := &CircuitBreaker{config: config, state: StateClosed}
	cb.stateChangedAt = config.Now()
	return cb, nil
}

// SetLogger sets the logger, tagged with the resilience component.
func (cb *CircuitBreaker) SetLogger(logger core.Logger) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if logger == nil {
		cb.config.Logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		cb.config.Logger = cal.WithComponent("grocery/resilience")
		return
	}
	cb.config.Logger = logger
}

// Execute runs fn with circuit breaker protection. A rejected call returns
// an error wrapping core.ErrCircuitBreakerOpen without invoking fn. Panics
// in fn are recovered and counted as failures.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	halfOpen, allowed := cb.acquire()
	if !allowed {
		cb.config.Metrics.RecordRejection(cb.config.Name)
		cb.config.Logger.InfoWithContext(ctx, "Circuit breaker rejected execution", map[string]interface{}{
			"name":  cb.config.Name,
			"state": cb.GetState(),
		})
		return fmt.Errorf("circuit breaker '%s' is open: %w", cb.config.Name, core.ErrCircuitBreakerOpen)
	}

	err := cb.call(fn)
	cb.release(ctx, halfOpen, err)
	return err
}

func (cb *CircuitBreaker) call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in circuit breaker %s: %v\n%s", cb.config.Name, r, debug.Stack())
		}
	}()
	return fn()
}

// acquire decides whether a call may proceed and reports whether it is a
// half-open probe.
func (cb *CircuitBreaker) acquire() (halfOpen bool, allowed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return false, true
	case StateOpen:
		if cb.config.Now().Sub(cb.stateChangedAt) < cb.config.SleepWindow {
			return false, false
		}
		cb.transitionLocked(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenInFlight+cb.halfOpenSuccess >= cb.config.HalfOpenRequests {
			return false, false
		}
		cb.halfOpenInFlight++
		return true, true
	}
	return false, false
}

func (cb *CircuitBreaker) release(ctx context.Context, halfOpen bool, err error) {
	counted := err != nil && cb.config.ErrorClassifier(err)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if halfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	if !counted {
		cb.config.Metrics.RecordSuccess(cb.config.Name)
		switch {
		case halfOpen && cb.state == StateHalfOpen:
			cb.halfOpenSuccess++
			if cb.halfOpenSuccess >= cb.config.HalfOpenRequests {
				cb.transitionLocked(StateClosed)
			}
		case cb.state == StateClosed:
			cb.failures = 0
		}
		return
	}

	cb.config.Metrics.RecordFailure(cb.config.Name, fmt.Sprintf("%T", err))
	switch cb.state {
	case StateHalfOpen:
		cb.transitionLocked(StateOpen)
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.config.Logger.WarnWithContext(ctx, "Circuit breaker opening", map[string]interface{}{
				"name":     cb.config.Name,
				"failures": cb.failures,
				"error":    err.Error(),
			})
			cb.transitionLocked(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.stateChangedAt = cb.config.Now()
	cb.failures = 0
	cb.halfOpenSuccess = 0
	if to != StateHalfOpen {
		cb.halfOpenInFlight = 0
	}

	cb.config.Metrics.RecordStateChange(cb.config.Name, from.String(), to.String())
	cb.config.Logger.Info("Circuit breaker state changed", map[string]interface{}{
		"name": cb.config.Name,
		"from": from.String(),
		"to":   to.String(),
	})
	for _, l := range cb.listeners {
		l(cb.config.Name, from, to)
	}
}

// AddStateChangeListener registers a callback for state transitions.
// Listeners run with the breaker lock held and must not call back into it.
func (cb *CircuitBreaker) AddStateChangeListener(listener func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, listener)
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetState returns the current state name
func (cb *CircuitBreaker) GetState() string {
	return cb.State().String()
}

// Reset closes the circuit and clears all counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionLocked(StateClosed)
	cb.failures = 0
}
