// Package metrics 定义进程内所有 Prometheus 指标，由 /metrics 暴露
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_cache_hits_total",
			Help: "Total number of query cache hits",
		},
		[]string{"backend"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_cache_misses_total",
			Help: "Total number of query cache misses",
		},
		[]string{"backend"},
	)

	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_stream_ticks_total",
			Help: "Trade ticks seen by the ingestion manager, by outcome (received, duplicate, forwarded, invalid)",
		},
		[]string{"outcome"},
	)
	StreamConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricewatch_stream_connections",
			Help: "Live market data websocket connections",
		},
	)
	StreamReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricewatch_stream_reconnects_total",
			Help: "Full rebuilds of the market data connections",
		},
	)

	AlertsTriggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_alerts_triggered_total",
			Help: "Alerts transitioned to triggered, by symbol",
		},
		[]string{"symbol"},
	)
	MatchPassesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricewatch_match_passes_skipped_total",
			Help: "Price ticks dropped because a pass for the same symbol was in flight",
		},
	)
	AlertsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricewatch_alerts_expired_total",
			Help: "ONE_DAY alerts deactivated by the expiration sweep",
		},
	)

	QueuePublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_queue_published_total",
			Help: "Messages published, by topic",
		},
		[]string{"topic"},
	)
	QueueDeadLetteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_queue_dead_lettered_total",
			Help: "Messages routed to the dead letter topic, by reason",
		},
		[]string{"reason"},
	)
	QueueReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricewatch_queue_reconnects_total",
			Help: "Broker reconnect attempts",
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_http_requests_total",
			Help: "HTTP requests, by method, route and status",
		},
		[]string{"method", "route", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricewatch_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(
		CacheHitsTotal,
		CacheMissesTotal,
		TicksTotal,
		StreamConnections,
		StreamReconnects,
		AlertsTriggeredTotal,
		MatchPassesSkipped,
		AlertsExpiredTotal,
		QueuePublishedTotal,
		QueueDeadLetteredTotal,
		QueueReconnectsTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
