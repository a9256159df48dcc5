package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "civicfix"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status code",
			// The mock store sleeps up to a second per call.
			Buckets: []float64{.005, .025, .1, .25, .5, .75, 1, 1.5, 2.5, 5},
		},
		[]string{"method", "route", "status"},
	)

	requestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_in_flight",
			Help:      "Requests currently being served",
		},
	)

	startedAt = time.Now()

	registerOnce sync.Once
)

// RegisterMetrics registers the HTTP collectors and a process start time gauge with the
// default registry. Safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(requestsTotal, requestDuration, requestsInFlight,
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "service_started_at_seconds",
				Help:      "Unix time the service started",
			}, func() float64 { return float64(startedAt.Unix()) }),
		)
	})
}

// routeLabel prefers the ServeMux pattern that matched. Unmatched requests fall back to
// the path with numeric segments collapsed.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		if _, path, ok := strings.Cut(r.Pattern, " "); ok {
			return path
		}
		return r.Pattern
	}
	return normalizePath(r.URL.Path)
}

// normalizePath collapses numeric ids so /api/complaints/12 and /api/complaints/13
// share a label.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if _, err := strconv.ParseInt(part, 10, 64); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

// MetricsMiddleware records count and latency for every request except scrapes.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		requestsInFlight.Inc()
		defer requestsInFlight.Dec()

		start := time.Now()
		rw := wrap(w)
		next.ServeHTTP(rw, r)

		labels := prometheus.Labels{
			"method": r.Method,
			"route":  routeLabel(r),
			"status": strconv.Itoa(rw.statusCode),
		}
		requestsTotal.With(labels).Inc()
		requestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}

func GetMetricsHandler() http.Handler {
	return promhttp.Handler()
}
