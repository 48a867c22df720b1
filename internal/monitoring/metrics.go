package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_bot_signals_total",
			Help: "Signal intake outcomes",
		},
		[]string{"outcome"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_bot_risk_rejections_total",
			Help: "Risk rejections by failed check",
		},
		[]string{"reason"},
	)

	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_bot_orders_total",
			Help: "Orders reaching a terminal state",
		},
		[]string{"status"},
	)

	brokerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_bot_broker_errors_total",
			Help: "Broker call failures",
		},
		[]string{"op"},
	)

	balanceGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_bot_balance",
			Help: "Current portfolio balance",
		},
	)

	drawdownGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_bot_max_drawdown",
			Help: "Cumulative maximum drawdown fraction",
		},
	)

	haltedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_bot_halted",
			Help: "1 when the ledger refuses new reservations",
		},
	)
)

func init() {
	prometheus.MustRegister(signalsTotal)
	prometheus.MustRegister(rejectionsTotal)
	prometheus.MustRegister(ordersTotal)
	prometheus.MustRegister(brokerErrorsTotal)
	prometheus.MustRegister(balanceGauge)
	prometheus.MustRegister(drawdownGauge)
	prometheus.MustRegister(haltedGauge)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSignal records an intake outcome (accepted/rejected/duplicate).
func RecordSignal(outcome string) {
	signalsTotal.WithLabelValues(outcome).Inc()
}

// RecordRejection records the failed risk check name.
func RecordRejection(reason string) {
	rejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordOrderTerminal records an order terminal state.
func RecordOrderTerminal(status string) {
	ordersTotal.WithLabelValues(status).Inc()
}

// RecordBrokerError records a failed broker call.
func RecordBrokerError(op string) {
	brokerErrorsTotal.WithLabelValues(op).Inc()
}

// UpdateLedger refreshes the portfolio gauges.
func UpdateLedger(balance, maxDrawdown float64, halted bool) {
	balanceGauge.Set(balance)
	drawdownGauge.Set(maxDrawdown)
	if halted {
		haltedGauge.Set(1)
	} else {
		haltedGauge.Set(0)
	}
}
