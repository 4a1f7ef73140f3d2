package middleware

import (
	"net/http"
	"time"

	"relayloader/internal/observability"
)

// MetricsMiddleware records duration, count and in-flight requests. GET
// requests serving GraphiQL are not recorded.
func MetricsMiddleware(metrics *observability.RequestMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			metrics.IncrementActiveRequests(ctx)
			defer metrics.DecrementActiveRequests(ctx)

			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			metrics.RecordRequest(ctx, time.Since(start), rec.status)
		})
	}
}
