package middleware

import (
	"net/http"

	"github.com/bryanwahyu/pdaudit/internal/infra/metrics"
)

// Metrics tracks request counts, latency and in-flight requests.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			done := m.StartRequest(r.Method)
			wrapped := wrap(w)
			next.ServeHTTP(wrapped, r)
			done(wrapped.statusCode)
		})
	}
}
