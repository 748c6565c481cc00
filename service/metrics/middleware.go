package metrics

import (
	"net/http"
	"time"
)

// HTTPMetricsMiddleware wraps an http.Handler and records request counts
// and latency under the given handler name. A nil Metrics disables recording
// so the middleware can be wired unconditionally.
func HTTPMetricsMiddleware(m *Metrics, handlerName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			if m != nil {
				m.RecordHTTPRequest(handlerName, r.Method, sw.status, time.Since(start).Seconds())
			}
		})
	}
}

// statusWriter captures the response status code for recording. Handlers that
// never call WriteHeader report the implicit 200.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
