package middleware

import (
	"net/http"
	"time"

	"github.com/iudanet/salesnav/internal/metrics"
)

// MetricsMiddleware записывает счетчик и латентность запросов по шаблону маршрута.
// Метка route берется из r.Pattern, поэтому кардинальность не зависит от id в пути.
func MetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			m.ObserveHTTP(routeOf(r), r.Method, wrapped.statusCode, time.Since(start))
		})
	}
}
