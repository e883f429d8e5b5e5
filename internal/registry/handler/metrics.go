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
	starBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "starchain_blocks_total",
		Help: "Total blocks appended to the chain (excluding genesis).",
	})

	starProofsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starchain_ownership_proofs_total",
		Help: "Total ownership proof submissions by outcome.",
	}, []string{"outcome"})

	starValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starchain_validations_total",
		Help: "Total full-chain validation scans by result.",
	}, []string{"result"})

	starRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starchain_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	starRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "starchain_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
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

		starRequestsTotal.WithLabelValues(method, path, status).Inc()
		starRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordBlockAppend records a successful star block append.
func RecordBlockAppend() {
	starBlocksTotal.Inc()
}

// RecordProof records an ownership proof submission outcome.
func RecordProof(accepted bool) {
	if accepted {
		starProofsTotal.WithLabelValues("accepted").Inc()
	} else {
		starProofsTotal.WithLabelValues("rejected").Inc()
	}
}

// RecordValidation records a full-chain validation result.
func RecordValidation(clean bool) {
	if clean {
		starValidationsTotal.WithLabelValues("clean").Inc()
	} else {
		starValidationsTotal.WithLabelValues("violations").Inc()
	}
}
