package observability

import (
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// HTTPMetrics returns middleware recording request duration, request count
// and error count (status >= 400), tagged with method, route pattern and
// status. A nil metrics set disables recording.
//
// Usage:
//
//	handler := observability.HTTPMetrics(metrics)(mux)
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" {
				route = r.URL.Path
			}

			attrs := otelmetric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("route", route),
				attribute.String("status", strconv.Itoa(rec.status)),
			)

			ctx := r.Context()
			metrics.HTTPRequestDuration.Record(ctx, Millis(time.Since(start)), attrs)
			metrics.HTTPRequestTotal.Add(ctx, 1, attrs)
			if rec.status >= 400 {
				metrics.HTTPRequestErrors.Add(ctx, 1, attrs)
			}
		})
	}
}
