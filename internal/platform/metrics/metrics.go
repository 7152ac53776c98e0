package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP holds the server-wide request metrics.
type HTTP struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewHTTP creates and registers the HTTP metrics.
func NewHTTP() *HTTP {
	return &HTTP{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		}, []string{"method", "path", "status"}),

		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "identity_http_request_duration_seconds",
			Help:    "HTTP request latency by method and path",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Middleware instruments every request. Paths are recorded by route pattern
// so path parameters do not explode label cardinality.
func (m *HTTP) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		m.RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		m.RequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
