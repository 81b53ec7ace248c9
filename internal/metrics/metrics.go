package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "larder_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "larder_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	rewardClaims = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "larder_reward_claims_total",
		Help: "Reward claim attempts by result",
	}, []string{"result"})

	backupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "larder_backups_total",
		Help: "Backup runs by result",
	}, []string{"result"})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "larder_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	}, []string{"scope"})

	wsClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "larder_websocket_clients",
		Help: "Connected realtime clients",
	})
)

// ObserveHTTPRequest records an HTTP request metric.
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveClaim counts a reward claim by result ("ok", "insufficient", "error").
func ObserveClaim(result string) {
	rewardClaims.WithLabelValues(result).Inc()
}

// ObserveBackup counts a backup run by result.
func ObserveBackup(result string) {
	backupRuns.WithLabelValues(result).Inc()
}

// ObserveRateLimited counts a request rejected by the limiter for scope.
func ObserveRateLimited(scope string) {
	rateLimited.WithLabelValues(scope).Inc()
}

func SetWebsocketClients(n int) {
	wsClients.Set(float64(n))
}
