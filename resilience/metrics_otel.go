package resilience

import (
	"context"

	"github.com/itsneelabh/gomind-grocery/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetricsCollector reports circuit breaker events as OpenTelemetry counters.
type OTelMetricsCollector struct {
	metrics *telemetry.MetricInstruments
}

// NewOTelMetricsCollector records through the global meter provider.
func NewOTelMetricsCollector() *OTelMetricsCollector {
	return &OTelMetricsCollector{metrics: telemetry.NewMetricInstruments("grocery/resilience")}
}

// NewOTelMetricsCollectorWithMeter records through the given meter.
func NewOTelMetricsCollectorWithMeter(meter metric.Meter) *OTelMetricsCollector {
	return &OTelMetricsCollector{metrics: telemetry.NewMetricInstrumentsWithMeter(meter)}
}

// RecordSuccess is a no-op; successful calls are already visible in request spans.
func (o *OTelMetricsCollector) RecordSuccess(name string) {}

func (o *OTelMetricsCollector) RecordFailure(name string, errorType string) {
	_ = o.metrics.RecordCounter(context.Background(), telemetry.MetricCircuitBreakerFailure, 1,
		metric.WithAttributes(
			attribute.String("circuit_breaker", name),
			attribute.String("error_type", errorType),
		))
}

func (o *OTelMetricsCollector) RecordStateChange(name string, from, to string) {
	_ = o.metrics.RecordCounter(context.Background(), telemetry.MetricCircuitBreakerStateChange, 1,
		metric.WithAttributes(
			attribute.String("circuit_breaker", name),
			attribute.String("from_state", from),
			attribute.String("to_state", to),
		))
}

func (o *OTelMetricsCollector) RecordRejection(name string) {
	_ = o.metrics.RecordCounter(context.Background(), telemetry.MetricCircuitBreakerRejected, 1,
		metric.WithAttributes(attribute.String("circuit_breaker", name)))
}
