// Package metrics exposes Prometheus counters and gauges for the trading
// engine, grounded on the pack's bot metrics.go: one CounterVec per labeled
// event and a handful of gauges for point-in-time account state. Unlike
// that file's package-level init()-time MustRegister, Metrics here is
// constructed explicitly against an injected prometheus.Registerer so
// tests (and a future multi-account process) never collide on the default
// registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/tradeoracle/engine/internal/models"
)

// Metrics bundles every series the engine emits.
type Metrics struct {
	TradesTotal          *prometheus.CounterVec
	OrdersPlacedTotal     *prometheus.CounterVec
	ExitReasonsTotal      *prometheus.CounterVec
	RiskDenialsTotal      *prometheus.CounterVec
	EquityUSD             prometheus.Gauge
	DailyPnLUSD           prometheus.Gauge
	UnrealizedPnLUSD       prometheus.Gauge
	OpenPositions          prometheus.Gauge
	ConsecutiveLosses      prometheus.Gauge
	MonitorCycleDuration   prometheus.Histogram
}

// New constructs and registers every series against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_trades_total",
			Help: "Closed trades by strategy and result.",
		}, []string{"strategy", "result"}),
		OrdersPlacedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_orders_placed_total",
			Help: "Orders submitted by strategy and side.",
		}, []string{"strategy", "side"}),
		ExitReasonsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_exit_reasons_total",
			Help: "Position closes by strategy and exit reason.",
		}, []string{"strategy", "reason"}),
		RiskDenialsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_risk_denials_total",
			Help: "Signals denied at the risk gate, by reason.",
		}, []string{"reason"}),
		EquityUSD: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_equity_usd",
			Help: "Current account balance.",
		}),
		DailyPnLUSD: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_daily_pnl_usd",
			Help: "Realized P&L for the current trading day.",
		}),
		UnrealizedPnLUSD: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_unrealized_pnl_usd",
			Help: "Sum of unrealized P&L across open positions as of the last monitor cycle.",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_open_positions",
			Help: "Count of currently OPEN positions.",
		}),
		ConsecutiveLosses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_consecutive_losses",
			Help: "Current consecutive-loss counter watched by the risk gate breaker.",
		}),
		MonitorCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oracle_monitor_cycle_duration_seconds",
			Help:    "Wall-clock duration of a full position-monitor cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.TradesTotal, m.OrdersPlacedTotal, m.ExitReasonsTotal, m.RiskDenialsTotal,
		m.EquityUSD, m.DailyPnLUSD, m.UnrealizedPnLUSD, m.OpenPositions, m.ConsecutiveLosses,
		m.MonitorCycleDuration,
	)
	return m
}

// RecordTrade increments the win/loss counter for a closed Trade.
func (m *Metrics) RecordTrade(strategy models.Strategy, pnl decimal.Decimal) {
	result := "loss"
	if pnl.IsPositive() {
		result = "win"
	}
	m.TradesTotal.WithLabelValues(string(strategy), result).Inc()
}

// RecordOrder increments the placed-order counter.
func (m *Metrics) RecordOrder(strategy models.Strategy, side models.Side) {
	m.OrdersPlacedTotal.WithLabelValues(string(strategy), string(side)).Inc()
}

// RecordExit increments the exit-reason counter.
func (m *Metrics) RecordExit(strategy models.Strategy, reason models.ExitReason) {
	m.ExitReasonsTotal.WithLabelValues(string(strategy), string(reason)).Inc()
}

// RecordRiskDenial increments the risk-gate denial counter.
func (m *Metrics) RecordRiskDenial(reason string) {
	m.RiskDenialsTotal.WithLabelValues(reason).Inc()
}

// SetAccountState refreshes the account-level gauges from a Portfolio
// snapshot.
func (m *Metrics) SetAccountState(p models.Portfolio) {
	bal, _ := p.Balance.Float64()
	daily, _ := p.DailyPnL.Float64()
	m.EquityUSD.Set(bal)
	m.DailyPnLUSD.Set(daily)
	m.OpenPositions.Set(float64(p.ActivePositions))
	m.ConsecutiveLosses.Set(float64(p.ConsecutiveLosses))
}

// SetUnrealizedPnL refreshes the unrealized-P&L gauge after a monitor cycle.
func (m *Metrics) SetUnrealizedPnL(total decimal.Decimal) {
	v, _ := total.Float64()
	m.UnrealizedPnLUSD.Set(v)
}

// ObserveMonitorCycle records how long a full position-monitor cycle took.
func (m *Metrics) ObserveMonitorCycle(d time.Duration) {
	m.MonitorCycleDuration.Observe(d.Seconds())
}
