// Package metrics provides Prometheus instrumentation for the coinback service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coinback",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coinback",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RewardsGrantedTotal counts successful grants by resulting risk level.
	RewardsGrantedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coinback",
			Name:      "rewards_granted_total",
			Help:      "Total reward grants by resulting risk level.",
		},
		[]string{"risk_level"},
	)

	// RewardsDeniedTotal counts denied grants by reason.
	RewardsDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coinback",
			Name:      "rewards_denied_total",
			Help:      "Total denied reward grants by reason.",
		},
		[]string{"reason"},
	)

	// RedeemsTotal counts redemption attempts by outcome.
	RedeemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coinback",
			Name:      "redeems_total",
			Help:      "Total redemption attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// AbuseEventsTotal counts abuse log entries by reason.
	AbuseEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coinback",
			Name:      "abuse_events_total",
			Help:      "Total abuse events recorded by reason.",
		},
		[]string{"reason"},
	)

	// RiskRecalcsTotal counts asynchronous risk recalculations by trigger.
	RiskRecalcsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coinback",
			Name:      "risk_recalcs_total",
			Help:      "Total asynchronous risk recalculations by trigger.",
		},
		[]string{"trigger"},
	)

	// UsersBannedTotal counts bans by which path set them.
	UsersBannedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coinback",
			Name:      "users_banned_total",
			Help:      "Total user bans by detection path.",
		},
		[]string{"path"},
	)

	// ActiveWebSocketClients tracks connected admin stream clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "coinback",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coinback", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coinback", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coinback", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coinback", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coinback", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coinback", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RewardsGrantedTotal,
		RewardsDeniedTotal,
		RedeemsTotal,
		AbuseEventsTotal,
		RiskRecalcsTotal,
		UsersBannedTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
