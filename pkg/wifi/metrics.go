package wifi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	admissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wifi_admissions_total",
			Help: "Total admission decisions by outcome and rejection reason",
		},
		[]string{"outcome", "reason"},
	)

	admissionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wifi_admission_duration_seconds",
			Help:    "Time spent processing admission requests",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
	)

	admissionRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wifi_admission_rate_limited_total",
			Help: "Number of admission requests rejected due to rate limiting",
		},
	)

	loadGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wifi_aggregate_load",
			Help: "Current aggregate load fraction (0-1)",
		},
	)

	activeGrants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wifi_active_grants",
			Help: "Number of active offload grants",
		},
	)
)

func recordAdmission(accepted bool, reason string) {
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	admissionsTotal.WithLabelValues(outcome, reason).Inc()
}

func setLoadGauge(load float64, grants int) {
	loadGauge.Set(load)
	activeGrants.Set(float64(grants))
}
