package resilience

import (
	"github.com/itsneelabh/gomind-grocery/core"
)

// Dependencies holds optional collaborators for breakers built by
// CreateCircuitBreaker.
type Dependencies struct {
	Logger  core.Logger
	Metrics MetricsCollector

	// Classifier decides which errors count as failures. Nil keeps
	// DefaultErrorClassifier.
	Classifier ErrorClassifier
}

// CreateCircuitBreaker builds a named breaker from configuration. Without
// explicit metrics it reports through the global OpenTelemetry meter,
// which stays a no-op until telemetry is initialized.
func CreateCircuitBreaker(name string, cfg core.CircuitBreakerConfig, deps Dependencies) (*CircuitBreaker, error) {
	config := ConfigFrom(name, cfg)
	if deps.Metrics != nil {
		config.Metrics = deps.Metrics
	} else {
		config.Metrics = NewOTelMetricsCollector()
	}

	if deps.Classifier != nil {
		config.ErrorClassifier = deps.Classifier
	}

	cb, err := NewCircuitBreaker(config)
	if err != nil {
		return nil, err
	}
	if deps.Logger != nil {
		cb.SetLogger(deps.Logger)
		cb.config.Logger.Info("Creating circuit breaker", map[string]interface{}{
			"name":              name,
			"failure_threshold": config.FailureThreshold,
			"sleep_window":      config.SleepWindow.String(),
		})
	}
	return cb, nil
}
