package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Go runtime and process metrics are registered by promhttp.Handler()
// automatically, so only gateway-specific collectors live here.

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmgate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmgate_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	completionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmgate_completion_requests_total",
			Help: "Completion requests by endpoint family and outcome",
		},
		[]string{"family", "model", "status"},
	)

	completionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmgate_completion_duration_seconds",
			Help:    "Completion latency in seconds, successful requests only",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"family", "model"},
	)

	upstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmgate_upstream_errors_total",
			Help: "Upstream failures by provider and upstream status, 0 when no response arrived",
		},
		[]string{"provider", "status"},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "llmgate_active_connections",
			Help: "Number of in-flight requests",
		},
	)
)

// MetricsMiddleware collects per-request Prometheus metrics.
func MetricsMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			activeConnections.Inc()
			defer activeConnections.Dec()

			// Streaming-aware wrapper preserves the Flusher interface.
			wrapped := NewStreamingResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			endpoint := getRoutePattern(r)
			status := strconv.Itoa(wrapped.StatusCode())
			httpRequestsTotal.WithLabelValues(r.Method, endpoint, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, endpoint, status).Observe(duration)

			if duration > 10 && !wrapped.Flushed() {
				logger.Warn("Slow request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Float64("duration", duration),
					zap.Int("status", wrapped.StatusCode()))
			}
		})
	}
}

// RecordCompletion records one completion request's outcome. Latency is only
// meaningful for successes; error paths return early.
func RecordCompletion(family, model, status string, seconds float64) {
	completionRequests.WithLabelValues(family, model, status).Inc()
	if status == "success" {
		completionDuration.WithLabelValues(family, model).Observe(seconds)
	}
}

// RecordUpstreamError records an upstream failure by provider and the status
// the upstream returned. Transport failures that produced no response record
// status 0.
func RecordUpstreamError(provider string, status int) {
	upstreamErrors.WithLabelValues(provider, strconv.Itoa(status)).Inc()
}

func getRoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}

// normalizePath collapses identifier segments so metric cardinality stays
// bounded when chi has no route pattern for the request.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if len(part) > 0 && (isUUID(part) || isNumeric(part) || strings.HasPrefix(part, "gw-")) {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func isUUID(s string) bool {
	if len(s) < 32 || len(s) > 36 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') || c == '-') {
			return false
		}
	}
	return true
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
