// Package metrics exposes engine and node counters to Prometheus.
//
// Every recording method is safe on a nil *Metrics, so engine code can
// record unconditionally and tests can run without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hypercredit"

// Metrics holds every collector, registered on its own registry
type Metrics struct {
	Registry *prometheus.Registry

	Fills            *prometheus.CounterVec
	PoolExchanges    *prometheus.CounterVec
	MarginCloses     *prometheus.CounterVec
	LoanLiquidations prometheus.Counter
	LoanDefaults     prometheus.Counter
	BlackSwans       *prometheus.CounterVec
	RejectedTxs      *prometheus.CounterVec
	MaintenanceFails *prometheus.CounterVec

	BlockApply  prometheus.Histogram
	BlockHeight prometheus.Gauge
	BlockTxs    prometheus.Histogram
}

// New creates the collectors and registers them
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_total",
			Help:      "Order fills by order kind",
		}, []string{"kind"}),
		PoolExchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_exchanges_total",
			Help:      "Liquidity pool exchange hops by pool",
		}, []string{"pool"}),
		MarginCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "margin_closes_total",
			Help:      "Closed margin orders by reason",
		}, []string{"reason"}),
		LoanLiquidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loan_liquidations_total",
			Help:      "Liquidated credit loans",
		}),
		LoanDefaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loan_defaults_total",
			Help:      "Shortfalls covered with network credit",
		}),
		BlackSwans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "global_settlements_total",
			Help:      "Globally settled stablecoins",
		}, []string{"symbol"}),
		RejectedTxs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_operations_total",
			Help:      "Operations rolled back, by operation type",
		}, []string{"op"}),
		MaintenanceFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_failures_total",
			Help:      "Maintenance items rolled back, by task",
		}, []string{"task"}),
		BlockApply: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_apply_seconds",
			Help:      "Time to finalize a block",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		BlockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "block_height",
			Help:      "Last finalized block height",
		}),
		BlockTxs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "block_operations",
			Help:      "Operations per finalized block",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
	m.Registry.MustRegister(
		m.Fills,
		m.PoolExchanges,
		m.MarginCloses,
		m.LoanLiquidations,
		m.LoanDefaults,
		m.BlackSwans,
		m.RejectedTxs,
		m.MaintenanceFails,
		m.BlockApply,
		m.BlockHeight,
		m.BlockTxs,
	)
	return m
}

func (m *Metrics) Fill(kind string) {
	if m != nil {
		m.Fills.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) PoolExchange(pool string) {
	if m != nil {
		m.PoolExchanges.WithLabelValues(pool).Inc()
	}
}

func (m *Metrics) MarginClose(reason string) {
	if m != nil {
		m.MarginCloses.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) LoanLiquidation() {
	if m != nil {
		m.LoanLiquidations.Inc()
	}
}

func (m *Metrics) LoanDefault() {
	if m != nil {
		m.LoanDefaults.Inc()
	}
}

func (m *Metrics) BlackSwan(symbol string) {
	if m != nil {
		m.BlackSwans.WithLabelValues(symbol).Inc()
	}
}

func (m *Metrics) Rejected(op string) {
	if m != nil {
		m.RejectedTxs.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) MaintenanceFailed(task string) {
	if m != nil {
		m.MaintenanceFails.WithLabelValues(task).Inc()
	}
}

// Block records a finalized block
func (m *Metrics) Block(height int64, ops int, took time.Duration) {
	if m == nil {
		return
	}
	m.BlockHeight.Set(float64(height))
	m.BlockTxs.Observe(float64(ops))
	m.BlockApply.Observe(took.Seconds())
}
