package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names recorded by the services.
const (
	MetricCartOperations     = "grocery.cart.operations"
	MetricOrdersConfirmed    = "grocery.orders.confirmed"
	MetricOrderAmount        = "grocery.orders.amount"
	MetricSessionTxConflicts = "grocery.session.tx_conflicts"
	MetricOperationDuration  = "grocery.operation.duration_ms"
	MetricEventsPublished    = "grocery.events.published"

	MetricCircuitBreakerStateChange = "grocery.circuit_breaker.state_change"
	MetricCircuitBreakerRejected    = "grocery.circuit_breaker.rejected"
	MetricCircuitBreakerFailure     = "grocery.circuit_breaker.failure"
)

// MetricInstruments holds cached metric instruments for efficient recording
type MetricInstruments struct {
	meter         metric.Meter
	counters      map[string]metric.Int64Counter
	floatCounters map[string]metric.Float64Counter
	histograms    map[string]metric.Float64Histogram
	mu            sync.RWMutex
}

// NewMetricInstruments creates an instrument cache on the global meter provider
func NewMetricInstruments(meterName string) *MetricInstruments {
	return NewMetricInstrumentsWithMeter(otel.Meter(meterName))
}

// NewMetricInstrumentsWithMeter creates an instrument cache on a specific meter
func NewMetricInstrumentsWithMeter(meter metric.Meter) *MetricInstruments {
	return &MetricInstruments{
		meter:         meter,
		counters:      make(map[string]metric.Int64Counter),
		floatCounters: make(map[string]metric.Float64Counter),
		histograms:    make(map[string]metric.Float64Histogram),
	}
}

// RecordCounter increments a counter metric
func (m *MetricInstruments) RecordCounter(ctx context.Context, name string, value int64, opts ...metric.AddOption) error {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		// Double-check after acquiring write lock
		if counter, exists = m.counters[name]; !exists {
			var err error
			counter, err = m.meter.Int64Counter(name)
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("failed to create counter %s: %w", name, err)
			}
			m.counters[name] = counter
		}
		m.mu.Unlock()
	}

	counter.Add(ctx, value, opts...)
	return nil
}

// RecordFloatCounter increments a float counter metric, e.g. order amounts
func (m *MetricInstruments) RecordFloatCounter(ctx context.Context, name string, value float64, opts ...metric.AddOption) error {
	m.mu.RLock()
	counter, exists := m.floatCounters[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if counter, exists = m.floatCounters[name]; !exists {
			var err error
			counter, err = m.meter.Float64Counter(name)
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("failed to create float counter %s: %w", name, err)
			}
			m.floatCounters[name] = counter
		}
		m.mu.Unlock()
	}

	counter.Add(ctx, value, opts...)
	return nil
}

// RecordHistogram records a value distribution (like latencies)
func (m *MetricInstruments) RecordHistogram(ctx context.Context, name string, value float64, opts ...metric.RecordOption) error {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if histogram, exists = m.histograms[name]; !exists {
			var err error
			histogram, err = m.meter.Float64Histogram(name)
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("failed to create histogram %s: %w", name, err)
			}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.Record(ctx, value, opts...)
	return nil
}

var (
	defaultInstruments     *MetricInstruments
	defaultInstrumentsOnce sync.Once
)

func instruments() *MetricInstruments {
	defaultInstrumentsOnce.Do(func() {
		defaultInstruments = NewMetricInstruments(tracerName)
	})
	return defaultInstruments
}

// Counter adds one to the named counter on the global meter.
func Counter(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	_ = instruments().RecordCounter(ctx, name, 1, metric.WithAttributes(attrs...))
}

// FloatCounter adds value to the named float counter on the global meter.
func FloatCounter(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	_ = instruments().RecordFloatCounter(ctx, name, value, metric.WithAttributes(attrs...))
}

// Duration records the milliseconds elapsed since start.
//
//	defer telemetry.Duration(ctx, time.Now(), attribute.String("operation", "cart.add"))
func Duration(ctx context.Context, start time.Time, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Microseconds()) / 1000
	_ = instruments().RecordHistogram(ctx, MetricOperationDuration, ms, metric.WithAttributes(attrs...))
}
