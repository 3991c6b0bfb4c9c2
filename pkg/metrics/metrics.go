package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Simulator metrics
	SimulatorTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "treasury_simulator_ticks_total",
			Help: "Total market simulation steps",
		})
	SimulatorErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "treasury_simulator_errors_total",
			Help: "Simulation steps that failed to save or publish",
		})
	SimulatorLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "treasury_simulator_step_seconds",
			Help:    "Time to simulate, save and publish one step",
			Buckets: prometheus.DefBuckets,
		})

	// Trading metrics
	TradesBooked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_trades_booked_total",
			Help: "Total trades booked",
		},
		[]string{"side"},
	)
	TradesCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "treasury_trades_cancelled_total",
			Help: "Total trades cancelled",
		})
	TradeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_trade_errors_total",
			Help: "Trade operations rejected or failed",
		},
		[]string{"operation"},
	)

	// Feed metrics
	FeedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "treasury_feed_clients",
			Help: "Connected websocket clients",
		})
	FeedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_feed_messages_total",
			Help: "Messages fanned out to websocket clients",
		},
		[]string{"topic"},
	)
	FeedDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "treasury_feed_dropped_total",
			Help: "Messages dropped for slow websocket clients",
		})
	FeedReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "treasury_feed_reconnects_total",
			Help: "Websocket subscriber reconnect attempts",
		})

	// Curve metrics
	CurveRenderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "treasury_curve_render_seconds",
			Help:    "Yield curve layout and render duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"format"},
	)

	// API metrics
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	APIRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Redis metrics
	RedisOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	RedisErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Total Redis errors",
		},
		[]string{"operation"},
	)

	// Database metrics
	DatabaseHealthCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "database_health_check_duration_seconds",
			Help:    "Database health check duration",
			Buckets: prometheus.DefBuckets,
		})
	DatabaseHealthCheckErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "database_health_check_errors_total",
			Help: "Total database health check errors",
		})
	DatabaseOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_operation_duration_seconds",
			Help:    "Database operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	DatabaseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_errors_total",
			Help: "Total database errors",
		},
		[]string{"operation"},
	)

	// Authentication metrics
	AuthOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Total authentication operations",
		},
		[]string{"operation", "status"},
	)
	AuthMiddlewareErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_middleware_errors_total",
			Help: "Total authentication middleware errors",
		},
		[]string{"error_type"},
	)
)

func init() {
	// MustRegister panics if registration fails (e.g. duplicate)
	prometheus.MustRegister(
		SimulatorTicks, SimulatorErrors, SimulatorLatency,
		TradesBooked, TradesCancelled, TradeErrors,
		FeedClients, FeedMessages, FeedDrops, FeedReconnects,
		CurveRenderDuration,
		APIRequestDuration, APIRequestTotal,
		RedisOperationDuration, RedisErrors,
		DatabaseHealthCheckDuration, DatabaseHealthCheckErrors,
		DatabaseOperationDuration, DatabaseErrors,
		AuthOperations, AuthMiddlewareErrors,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Status returns "success" or "error" for metric labels.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
