package telemetry

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TracingMiddlewareConfig configures the tracing middleware behavior.
type TracingMiddlewareConfig struct {
	// ExcludedPaths lists URL paths that are not traced, such as /health.
	ExcludedPaths []string

	// SpanNameFormatter customizes span names. Nil uses "HTTP {method} {path}".
	SpanNameFormatter func(operation string, r *http.Request) string
}

// TracingMiddleware returns HTTP middleware that extracts W3C trace context
// from incoming requests and opens a server span per request.
//
// Without Initialize the global no-op tracer is used, which is safe but
// records nothing.
//
//	router.Use(telemetry.TracingMiddleware("grocery-api"))
func TracingMiddleware(serviceName string) func(http.Handler) http.Handler {
	return TracingMiddlewareWithConfig(serviceName, &TracingMiddlewareConfig{
		ExcludedPaths: []string{"/health"},
	})
}

// TracingMiddlewareWithConfig returns tracing middleware with custom options.
func TracingMiddlewareWithConfig(serviceName string, config *TracingMiddlewareConfig) func(http.Handler) http.Handler {
	var opts []otelhttp.Option

	if config != nil && len(config.ExcludedPaths) > 0 {
		excluded := make(map[string]bool, len(config.ExcludedPaths))
		for _, path := range config.ExcludedPaths {
			excluded[path] = true
		}
		opts = append(opts, otelhttp.WithFilter(func(r *http.Request) bool {
			return !excluded[r.URL.Path]
		}))
	}

	if config != nil && config.SpanNameFormatter != nil {
		opts = append(opts, otelhttp.WithSpanNameFormatter(config.SpanNameFormatter))
	} else {
		opts = append(opts, otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Path
		}))
	}

	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName, opts...)
	}
}

// NewTracedHTTPClient creates an HTTP client that injects trace context
// into outgoing requests. A nil baseTransport uses a pooled transport.
//
//	client := telemetry.NewTracedHTTPClient(nil)
//	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
//	resp, err := client.Do(req)
func NewTracedHTTPClient(baseTransport http.RoundTripper) *http.Client {
	if baseTransport == nil {
		baseTransport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		}
	}

	return &http.Client{
		Transport: otelhttp.NewTransport(baseTransport),
	}
}
