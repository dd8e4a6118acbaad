package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	trustRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truststack_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	trustRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "truststack_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	trustVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truststack_verifications_total",
		Help: "Verification requests by kind and outcome status.",
	}, []string{"kind", "status"})

	trustDailyRootsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "truststack_daily_roots_total",
		Help: "Total daily Merkle roots generated.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		trustRequestsTotal.WithLabelValues(method, path, status).Inc()
		trustRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordVerification records a verification request outcome.
func RecordVerification(kind, status string) {
	trustVerificationsTotal.WithLabelValues(kind, status).Inc()
}

// RecordDailyRoot records a daily Merkle root generation.
func RecordDailyRoot() {
	trustDailyRootsTotal.Inc()
}
