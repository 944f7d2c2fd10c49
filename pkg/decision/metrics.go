package decision

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offload_decisions_total",
			Help: "Total offload decisions by decision, reason, and quality class",
		},
		[]string{"decision", "reason", "class"},
	)

	decisionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "offload_decision_duration_seconds",
			Help:    "Time spent evaluating one client tick, including the admission exchange",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	offloadedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "offload_active_clients",
			Help: "Clients currently in the OFFLOADING state",
		},
	)

	forecastRSSI = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "offload_forecast_rssi_dbm",
			Help: "Latest forecast RSSI per client",
		},
		[]string{"client"},
	)

	forecastPDR = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "offload_forecast_pdr",
			Help: "Latest forecast packet delivery ratio per client",
		},
		[]string{"client"},
	)
)

func record(result Result) Result {
	decisionsTotal.WithLabelValues(
		string(result.Decision),
		result.Reason,
		string(result.Class),
	).Inc()
	return result
}

func recordForecast(clientID string, rssiDBm, pdr float64) {
	forecastRSSI.WithLabelValues(clientID).Set(rssiDBm)
	forecastPDR.WithLabelValues(clientID).Set(pdr)
}

func forgetForecast(clientID string) {
	forecastRSSI.DeleteLabelValues(clientID)
	forecastPDR.DeleteLabelValues(clientID)
}
