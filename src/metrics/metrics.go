// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stake-plus/groupguard/src/logging"
)

var (
	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupguard_verifications_total",
		Help: "Verification transitions by outcome.",
	}, []string{"outcome"})

	pendingVerifications = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groupguard_pending_verifications",
		Help: "Verification timers currently armed in this process.",
	})

	keywordHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupguard_keyword_hits_total",
		Help: "Messages removed by the keyword filter.",
	})

	platformErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupguard_platform_errors_total",
		Help: "Failed platform calls by operation and class.",
	}, []string{"op", "class"})

	purgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupguard_purged_verifications_total",
		Help: "Stale pending verifications removed by the janitor.",
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupguard_http_requests_total",
		Help: "Admin API requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "groupguard_http_request_duration_seconds",
		Help:    "Admin API request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// RecordVerification counts a verification transition such as "verified" or "superseded".
func RecordVerification(outcome string) {
	verificationsTotal.WithLabelValues(outcome).Inc()
}

func TimerArmed()    { pendingVerifications.Inc() }
func TimerReleased() { pendingVerifications.Dec() }

func RecordKeywordHit() {
	keywordHitsTotal.Inc()
}

// RecordPlatformError counts a failed platform call, splitting rate limits from other failures.
func RecordPlatformError(op string, err error) {
	if err == nil {
		return
	}
	platformErrorsTotal.WithLabelValues(op, logging.ErrorClass(err)).Inc()
}

func RecordPurged(n int64) {
	purgedTotal.Add(float64(n))
}

// GinMiddleware records per-request metrics.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		requestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
