package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the advisor.
type Metrics struct {
	PassesTotal  *prometheus.CounterVec // labels: result=ok|error
	PassDuration prometheus.Histogram
	LastPass     prometheus.Gauge // unix seconds of the last completed pass

	OrdersTotal      *prometheus.CounterVec // labels: type
	SkippedTotal     *prometheus.CounterVec // labels: reason
	UnresolvedTotal  prometheus.Counter
	TickersProcessed prometheus.Counter

	FetchFailures  prometheus.Counter
	BrokerFailures prometheus.Counter
	NotifyFailures prometheus.Counter
	SinkFailures   prometheus.Counter

	StoreCommitDur prometheus.Histogram

	// Order publisher circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedOrders      prometheus.Counter

	// Market session state
	MarketState prometheus.Gauge // 0=closed, 1=open
}

// NewMetrics creates every metric and registers it with reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		PassesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "advisor_passes_total",
			Help: "Advisor passes run, by result",
		}, []string{"result"}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "advisor_pass_duration_seconds",
			Help:    "Wall time of one advisor pass",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		LastPass: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "advisor_last_pass_timestamp_seconds",
			Help: "Unix time the last pass finished",
		}),

		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "advisor_orders_total",
			Help: "Orders committed, by type",
		}, []string{"type"}),
		SkippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "advisor_tickers_skipped_total",
			Help: "Tickers skipped by the strategy, by reason",
		}, []string{"reason"}),
		UnresolvedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "advisor_unresolved_orders_total",
			Help: "Orders recorded without a resolvable position",
		}),
		TickersProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "advisor_tickers_advanced_total",
			Help: "Tickers whose last-processed timestamp advanced",
		}),

		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "advisor_fetch_failures_total",
			Help: "Per-ticker market data fetch failures",
		}),
		BrokerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "advisor_broker_failures_total",
			Help: "Orders the broker failed to accept",
		}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "advisor_notify_failures_total",
			Help: "Advisory notifications that failed to send",
		}),
		SinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "advisor_sink_failures_total",
			Help: "Order sink publish failures",
		}),

		StoreCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "advisor_store_commit_duration_seconds",
			Help:    "Store commit latency per pass",
			Buckets: prometheus.DefBuckets,
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "advisor_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "advisor_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedOrders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "advisor_redis_buffered_orders_total",
			Help: "Orders buffered locally while the Redis breaker was open",
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "advisor_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
	}

	reg.MustRegister(
		m.PassesTotal,
		m.PassDuration,
		m.LastPass,
		m.OrdersTotal,
		m.SkippedTotal,
		m.UnresolvedTotal,
		m.TickersProcessed,
		m.FetchFailures,
		m.BrokerFailures,
		m.NotifyFailures,
		m.SinkFailures,
		m.StoreCommitDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedOrders,
		m.MarketState,
	)

	return m
}

// ObservePass records one finished pass.
func (m *Metrics) ObservePass(start, end time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PassesTotal.WithLabelValues(result).Inc()
	m.PassDuration.Observe(end.Sub(start).Seconds())
	m.LastPass.Set(float64(end.Unix()))
}
