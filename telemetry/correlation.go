package telemetry

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/itsneelabh/gomind-grocery/core"
	"go.opentelemetry.io/otel/attribute"
)

// CorrelationMiddleware reads X-Correlation-ID from the request, or
// generates one, stores it on the request context for the logger, echoes
// it on the response and tags the active span.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(core.CorrelationIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}

		ctx := core.WithCorrelationID(r.Context(), id)
		SetSpanAttributes(ctx, attribute.String("correlation_id", id))
		w.Header().Set(core.CorrelationIDHeader, id)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// correlationTransport copies the context correlation id onto outgoing requests.
type correlationTransport struct {
	base http.RoundTripper
}

func (t correlationTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if id := core.CorrelationIDFromContext(r.Context()); id != "" && r.Header.Get(core.CorrelationIDHeader) == "" {
		r = r.Clone(r.Context())
		r.Header.Set(core.CorrelationIDHeader, id)
	}
	return t.base.RoundTrip(r)
}

// WithCorrelation wraps a transport so the correlation id travels with
// outbound calls. A nil base uses http.DefaultTransport.
func WithCorrelation(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return correlationTransport{base: base}
}
